// SPDX-License-Identifier: MIT

package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// embedKeyInfo is fixed HKDF-style context for deriving the AEAD key from
// the operator-configured embed secret; it is not itself secret.
const embedKeyInfo = "phi-backend/session-auth/embed-v1"

func deriveEmbedKey(secret string) [32]byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(embedKeyInfo))
	var key [32]byte
	copy(key[:], mac.Sum(nil))
	return key
}

func newGCM(secret string) (cipher.AEAD, error) {
	key := deriveEmbedKey(secret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// sealCredential encrypts credJSON with AES-256-GCM under a key derived
// from embedSecret. The nonce is the first 12 bytes of a fresh UUIDv4 (not
// a counter — one-shot per call, uniqueness comes from randomness rather
// than a tracked sequence), and the AAD binds the ciphertext to this one
// token ("<jti>:<sub>"), so a decrypted envelope cannot be replayed under a
// different session. Returns a URL-safe-base64, unpadded string.
func sealCredential(credJSON []byte, jti, sub, embedSecret string) (string, error) {
	aead, err := newGCM(embedSecret)
	if err != nil {
		return "", fmt.Errorf("session: build AEAD: %w", err)
	}
	nonceBytes := uuid.New()
	nonce := nonceBytes[:12]
	aad := []byte(jti + ":" + sub)
	ciphertext := aead.Seal(nil, nonce, credJSON, aad)

	payload := make([]byte, 0, 12+len(ciphertext))
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// openCredential is the inverse of sealCredential.
func openCredential(sealed string, jti, sub, embedSecret string) ([]byte, error) {
	aead, err := newGCM(embedSecret)
	if err != nil {
		return nil, fmt.Errorf("session: build AEAD: %w", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("session: invalid embedded credential encoding: %w", err)
	}
	if len(raw) < 13 {
		return nil, fmt.Errorf("session: embedded credential too short")
	}
	nonce, ciphertext := raw[:12], raw[12:]
	aad := []byte(jti + ":" + sub)
	plain, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("session: embedded credential decrypt failed: %w", err)
	}
	return plain, nil
}

// sealCredentialJSON is a convenience wrapper marshaling cred before sealing.
func sealCredentialJSON(cred Credential, jti, sub, embedSecret string) (string, error) {
	raw, err := json.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("session: marshal credential: %w", err)
	}
	return sealCredential(raw, jti, sub, embedSecret)
}

// openCredentialJSON is the inverse of sealCredentialJSON.
func openCredentialJSON(sealed, jti, sub, embedSecret string) (Credential, error) {
	raw, err := openCredential(sealed, jti, sub, embedSecret)
	if err != nil {
		return Credential{}, err
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, fmt.Errorf("session: unmarshal credential: %w", err)
	}
	return cred, nil
}
