// Package authkey loads the ambient attestation key material and
// implements key-handle wrapping and the per-process signature
// counter.
//
// Key handles are wrapped with AES-256-GCM rather than a hand-rolled
// RFC 3394 key wrap: [crypto/cipher.AEAD] is the standard-library,
// idiomatic way to authenticate-and-encrypt a short blob in Go. A
// wrapped handle is nonce(12) || ciphertext || tag(16); the plaintext
// is priv_bytes(32) || application_param(32).
package authkey
