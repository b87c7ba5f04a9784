package u2f

import (
	"crypto/elliptic"

	"github.com/MattGorko/U2F-Emulated/u2f/authkey"
)

// challengeParamSize and applicationParamSize are both SHA-256 digest
// lengths, fixed by the protocol.
const (
	challengeParamSize   = 32
	applicationParamSize = 32
)

// registeredKeyMarker is the reserved first byte of a REGISTER
// response, distinguishing it from other U2F response formats.
const registeredKeyMarker = 0x05

func (h *Handler) register(body []byte) []byte {
	if len(body) != challengeParamSize+applicationParamSize {
		return statusOnly(SWWrongLength)
	}
	var challenge, appParam [applicationParamSize]byte
	copy(challenge[:], body[:challengeParamSize])
	copy(appParam[:], body[challengeParamSize:])

	priv, err := authkey.NewCredentialKey()
	if err != nil {
		return statusOnly(SWWrongData)
	}

	keyHandle, err := h.material.Wrap(priv, appParam)
	if err != nil || len(keyHandle) > 0xFF {
		return statusOnly(SWWrongData)
	}

	pub := elliptic.Marshal(priv.Curve, priv.X, priv.Y)

	signBuf := make([]byte, 0, 1+applicationParamSize+challengeParamSize+len(keyHandle)+len(pub))
	signBuf = append(signBuf, 0x00)
	signBuf = append(signBuf, appParam[:]...)
	signBuf = append(signBuf, challenge[:]...)
	signBuf = append(signBuf, keyHandle...)
	signBuf = append(signBuf, pub...)

	sig, err := signDER(h.material.AttestationKey, signBuf)
	if err != nil {
		return statusOnly(SWWrongData)
	}

	resp := make([]byte, 0, 1+len(pub)+1+len(keyHandle)+len(h.material.AttestationCert)+len(sig)+2)
	resp = append(resp, registeredKeyMarker)
	resp = append(resp, pub...)
	resp = append(resp, byte(len(keyHandle)))
	resp = append(resp, keyHandle...)
	resp = append(resp, h.material.AttestationCert...)
	resp = append(resp, sig...)
	resp = appendSW(resp, SWNoError)
	return resp
}
