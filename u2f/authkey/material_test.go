package authkey

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func writeAttestationMaterial(t *testing.T) (keyPath, certPath, wrapPath string, m *Material) {
	t.Helper()
	dir := t.TempDir()

	priv, err := NewCredentialKey()
	if err != nil {
		t.Fatalf("NewCredentialKey: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}
	keyPath = filepath.Join(dir, "attestation.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(keyPath, pemBytes, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	certPath = filepath.Join(dir, "attestation.der")
	if err := os.WriteFile(certPath, []byte("fake-cert-der-bytes"), 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}

	wrapPath = filepath.Join(dir, "wrap.key")
	wrapKey := make([]byte, WrapKeySize)
	for i := range wrapKey {
		wrapKey[i] = byte(i)
	}
	if err := os.WriteFile(wrapPath, wrapKey, 0o600); err != nil {
		t.Fatalf("write wrap key: %v", err)
	}

	m, err = Load(keyPath, certPath, wrapPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return keyPath, certPath, wrapPath, m
}

func TestLoad(t *testing.T) {
	_, _, _, m := writeAttestationMaterial(t)
	if m.AttestationKey == nil {
		t.Fatal("AttestationKey is nil")
	}
	if string(m.AttestationCert) != "fake-cert-der-bytes" {
		t.Fatal("AttestationCert mismatch")
	}
}

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	_, _, _, m := writeAttestationMaterial(t)

	priv, err := NewCredentialKey()
	if err != nil {
		t.Fatalf("NewCredentialKey: %v", err)
	}
	var appParam [32]byte
	for i := range appParam {
		appParam[i] = byte(0xBB)
	}

	handle, err := m.Wrap(priv, appParam)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	gotPriv, gotApp, err := m.Unwrap(handle)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if gotApp != appParam {
		t.Fatal("application param mismatch after unwrap")
	}
	if gotPriv.D.Cmp(priv.D) != 0 {
		t.Fatal("private scalar mismatch after unwrap")
	}
	if gotPriv.X.Cmp(priv.X) != 0 || gotPriv.Y.Cmp(priv.Y) != 0 {
		t.Fatal("public point mismatch after unwrap")
	}
}

func TestUnwrap_TamperedHandleFails(t *testing.T) {
	_, _, _, m := writeAttestationMaterial(t)

	priv, _ := NewCredentialKey()
	var appParam [32]byte
	handle, err := m.Wrap(priv, appParam)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	handle[len(handle)-1] ^= 0xFF

	if _, _, err := m.Unwrap(handle); err == nil {
		t.Fatal("expected Unwrap to fail on tampered handle")
	}
}

func TestNextCounter_Monotonic(t *testing.T) {
	_, _, _, m := writeAttestationMaterial(t)
	first := m.NextCounter()
	second := m.NextCounter()
	if second != first+1 {
		t.Fatalf("counter did not increment: %d then %d", first, second)
	}
}
