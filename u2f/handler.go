package u2f

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"

	"github.com/MattGorko/U2F-Emulated/u2f/authkey"
)

// Handler dispatches U2FHID MSG payloads to the REGISTER, AUTHENTICATE,
// and VERSION operations, closing over the ambient attestation
// material.
type Handler struct {
	material *authkey.Material
}

// NewHandler constructs a Handler bound to the given key material.
func NewHandler(material *authkey.Material) *Handler {
	return &Handler{material: material}
}

// Handle parses payload as a U2F APDU and returns its response,
// including the trailing status word. It never returns an error: every
// failure mode is reported as a status word per spec.
func (h *Handler) Handle(payload []byte) []byte {
	hdr, body, err := parseHeader(payload)
	if err != nil {
		return statusOnly(SWWrongLength)
	}
	if hdr.CLA != ClaStandard {
		return statusOnly(SWClaNotSupported)
	}

	switch hdr.INS {
	case InsRegister:
		return h.register(body)
	case InsAuthenticate:
		return h.authenticate(hdr.P1, body)
	case InsVersion:
		return h.version()
	default:
		return statusOnly(SWInsNotSupported)
	}
}

func signDER(priv *ecdsa.PrivateKey, buf []byte) ([]byte, error) {
	hash := sha256.Sum256(buf)
	return ecdsa.SignASN1(rand.Reader, priv, hash[:])
}
