package u2f

import (
	"crypto/ecdsa"
	"encoding/binary"
)

// P1 sub-modes for AUTHENTICATE.
const (
	P1CheckOnly = 0x07
	P1Enforce   = 0x03
	P1NoEnforce = 0x08
)

// keyHandleLenSize is the width of the key-handle length prefix.
const keyHandleLenSize = 1

// userPresence is the fixed test-of-user-presence flag this emulator
// always reports once a request reaches the enforce path.
const userPresence = 0x01

func (h *Handler) authenticate(p1 byte, body []byte) []byte {
	headerFields := challengeParamSize + applicationParamSize + keyHandleLenSize
	if len(body) < headerFields {
		return statusOnly(SWWrongLength)
	}

	var challenge, appParam [applicationParamSize]byte
	copy(challenge[:], body[:challengeParamSize])
	copy(appParam[:], body[challengeParamSize:2*challengeParamSize])

	khLen := int(body[2*challengeParamSize])
	if len(body) != headerFields+khLen {
		return statusOnly(SWWrongLength)
	}
	keyHandle := body[headerFields : headerFields+khLen]

	priv, boundAppParam, err := h.material.Unwrap(keyHandle)
	if err != nil {
		return statusOnly(SWWrongData)
	}
	if boundAppParam != appParam {
		return statusOnly(SWWrongData)
	}

	switch p1 {
	case P1CheckOnly:
		return statusOnly(SWConditionsNotSatisfied)
	case P1Enforce, P1NoEnforce:
		return h.signAssertion(priv, appParam, challenge)
	default:
		return statusOnly(SWWrongData)
	}
}

func (h *Handler) signAssertion(priv *ecdsa.PrivateKey, appParam, challenge [applicationParamSize]byte) []byte {
	counter := h.material.NextCounter()

	var ctrBuf [4]byte
	binary.BigEndian.PutUint32(ctrBuf[:], counter)

	signBuf := make([]byte, 0, applicationParamSize+1+4+challengeParamSize)
	signBuf = append(signBuf, appParam[:]...)
	signBuf = append(signBuf, userPresence)
	signBuf = append(signBuf, ctrBuf[:]...)
	signBuf = append(signBuf, challenge[:]...)

	sig, err := signDER(priv, signBuf)
	if err != nil {
		return statusOnly(SWWrongData)
	}

	resp := make([]byte, 0, 1+4+len(sig)+2)
	resp = append(resp, userPresence)
	resp = append(resp, ctrBuf[:]...)
	resp = append(resp, sig...)
	resp = appendSW(resp, SWNoError)
	return resp
}
