package authkey

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"sync/atomic"

	"github.com/MattGorko/U2F-Emulated/pkg"
)

// WrapKeySize is the required length, in bytes, of the ambient AES
// wrap key.
const WrapKeySize = 32

// privBytesSize is the length of a P-256 scalar, fixed-width, as
// stored in a wrapped key handle.
const privBytesSize = 32

// applicationParamSize is the length of a SHA-256 application
// parameter.
const applicationParamSize = 32

// Material holds the parsed ambient key material: the attestation
// identity used to sign REGISTER responses, the wrap key used to seal
// per-credential key handles, and the process-lifetime signature
// counter.
type Material struct {
	AttestationKey  *ecdsa.PrivateKey
	AttestationCert []byte // DER
	wrapKey         [WrapKeySize]byte
	counter         atomic.Uint32
}

// Load reads the attestation private key (PEM), attestation
// certificate (DER), and AES wrap key (raw 32 bytes) from the given
// paths.
func Load(keyPath, certPath, wrapKeyPath string) (*Material, error) {
	key, err := loadAttestationKey(keyPath)
	if err != nil {
		return nil, err
	}
	cert, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read attestation cert: %v", pkg.ErrInternal, err)
	}
	wrap, err := os.ReadFile(wrapKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read wrap key: %v", pkg.ErrInternal, err)
	}
	if len(wrap) != WrapKeySize {
		return nil, fmt.Errorf("%w: wrap key is %d bytes, want %d", pkg.ErrInternal, len(wrap), WrapKeySize)
	}

	m := &Material{AttestationKey: key, AttestationCert: cert}
	copy(m.wrapKey[:], wrap)
	return m, nil
}

func loadAttestationKey(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read attestation key: %v", pkg.ErrInternal, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: attestation key is not PEM-encoded", pkg.ErrInternal)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse attestation key: %v", pkg.ErrInternal, err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: attestation key is not P-256", pkg.ErrInternal)
	}
	return key, nil
}

// NewCredentialKey generates a fresh P-256 key pair for a REGISTER
// request.
func NewCredentialKey() (*ecdsa.PrivateKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate credential key: %v", pkg.ErrInternal, err)
	}
	return priv, nil
}

// Wrap seals priv and the application parameter it is bound to into a
// key handle.
func (m *Material) Wrap(priv *ecdsa.PrivateKey, applicationParam [applicationParamSize]byte) ([]byte, error) {
	gcm, err := m.aead()
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, 0, privBytesSize+applicationParamSize)
	plaintext = append(plaintext, priv.D.FillBytes(make([]byte, privBytesSize))...)
	plaintext = append(plaintext, applicationParam[:]...)

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", pkg.ErrInternal, err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// Unwrap opens a key handle, returning the bound private key and the
// application parameter it was issued for. A handle that fails to
// authenticate is reported as ErrWrongData, matching the status word
// the U2F handler reports for it.
func (m *Material) Unwrap(handle []byte) (priv *ecdsa.PrivateKey, applicationParam [applicationParamSize]byte, err error) {
	gcm, err := m.aead()
	if err != nil {
		return nil, applicationParam, err
	}

	nonceSize := gcm.NonceSize()
	if len(handle) < nonceSize {
		return nil, applicationParam, fmt.Errorf("%w: key handle too short", pkg.ErrWrongData)
	}
	nonce, ciphertext := handle[:nonceSize], handle[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, applicationParam, fmt.Errorf("%w: key handle failed to authenticate: %v", pkg.ErrWrongData, err)
	}
	if len(plaintext) != privBytesSize+applicationParamSize {
		return nil, applicationParam, fmt.Errorf("%w: key handle decoded to unexpected length", pkg.ErrWrongData)
	}

	curve := elliptic.P256()
	d := new(big.Int).SetBytes(plaintext[:privBytesSize])
	x, y := curve.ScalarBaseMult(plaintext[:privBytesSize])
	priv = &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
		D:         d,
	}
	copy(applicationParam[:], plaintext[privBytesSize:])
	return priv, applicationParam, nil
}

func (m *Material) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.wrapKey[:])
	if err != nil {
		return nil, fmt.Errorf("%w: construct aes cipher: %v", pkg.ErrInternal, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: construct gcm: %v", pkg.ErrInternal, err)
	}
	return gcm, nil
}

// NextCounter atomically increments and returns the signature counter.
// The counter starts at 1 for the first AUTHENTICATE of the process
// lifetime and is never persisted across restarts.
func (m *Material) NextCounter() uint32 {
	return m.counter.Add(1)
}
