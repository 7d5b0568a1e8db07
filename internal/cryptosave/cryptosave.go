// SPDX-License-Identifier: MIT

// Package cryptosave decrypts per-entry encrypted cloud save archives. Two
// cipher suites are supported: AES-256-CBC/PKCS7 (the default, with an
// optional PBKDF2-SHA1 derived key) and AES-128-GCM (authenticated).
package cryptosave

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by the save format, not a security choice
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultKey and DefaultIV are the fallback AES-256-CBC key/IV used when no
// PBKDF2 key derivation is configured for a save entry.
var (
	DefaultKey = [32]byte{
		0xe8, 0x96, 0x9a, 0xd2, 0xa5, 0x40, 0x25, 0x9b, 0x97, 0x91, 0x90, 0x8b, 0x88, 0xe6, 0xbf, 0x03,
		0x1e, 0x6d, 0x21, 0x95, 0x6e, 0xfa, 0xd6, 0x8a, 0x50, 0xdd, 0x55, 0xd6, 0x7a, 0xb0, 0x92, 0x4b,
	}
	DefaultIV = [16]byte{
		0x2a, 0x4f, 0xf0, 0x8a, 0xc8, 0x0d, 0x63, 0x07, 0x00, 0x57, 0xc5, 0x95, 0x18, 0xc8, 0x32, 0x53,
	}
)

var (
	ErrInvalidHeader   = errors.New("cryptosave: invalid or empty entry header")
	ErrDecrypt         = errors.New("cryptosave: decryption failed")
	ErrTagVerification = errors.New("cryptosave: AEAD tag verification failed")
	ErrUnsupported     = errors.New("cryptosave: unsupported cipher parameters")
	ErrIntegrity       = errors.New("cryptosave: integrity check failed")
)

// CipherSuite selects the per-entry symmetric cipher.
type CipherSuite struct {
	Kind   CipherKind
	IV     [16]byte // AES256CBCPKCS7
	Nonce  []byte   // AES128GCM, must be 12 bytes
	TagLen int
}

type CipherKind int8

const (
	AES256CBCPKCS7 CipherKind = iota
	AES128GCM
)

// KDFSpec selects the key-derivation function applied before decryption.
// None reuses DefaultKey verbatim.
type KDFSpec struct {
	Enabled  bool
	Salt     []byte
	Rounds   int
	Password []byte
}

// Integrity selects the post-decryption HMAC check, if any.
type Integrity struct {
	Kind IntegrityKind
	Key  []byte
}

type IntegrityKind int8

const (
	IntegrityNone IntegrityKind = iota
	IntegrityHMACSHA1
	IntegrityHMACSHA256
)

// DecryptionMeta bundles the cipher/KDF/integrity parameters for one entry.
// The zero value selects AES-256-CBC with an all-zero IV, no KDF and no
// integrity check; DefaultMeta returns the format's default, which uses
// DefaultIV.
type DecryptionMeta struct {
	Cipher    CipherSuite
	KDF       KDFSpec
	Integrity Integrity
}

// DefaultMeta returns the save format's default decryption parameters.
func DefaultMeta() DecryptionMeta {
	return DecryptionMeta{Cipher: CipherSuite{Kind: AES256CBCPKCS7, IV: DefaultIV}}
}

// DeriveKey computes the symmetric key from the configured KDF, or returns
// DefaultKey when none is configured.
func DeriveKey(kdf KDFSpec, length int) ([]byte, error) {
	if !kdf.Enabled {
		out := make([]byte, len(DefaultKey))
		copy(out, DefaultKey[:])
		return out, nil
	}
	return pbkdf2.Key(kdf.Password, kdf.Salt, kdf.Rounds, length, sha1.New), nil
}

// DecryptZipEntry decrypts one encrypted ZIP entry's bytes. The first byte
// of encryptedData is an unencrypted format-version prefix carried through
// unchanged.
func DecryptZipEntry(encryptedData []byte, meta DecryptionMeta) ([]byte, error) {
	if len(encryptedData) == 0 {
		return nil, ErrInvalidHeader
	}
	prefix := encryptedData[0]

	switch meta.Cipher.Kind {
	case AES256CBCPKCS7:
		keyArr := DefaultKey
		if meta.KDF.Enabled {
			derived, err := DeriveKey(meta.KDF, 32)
			if err != nil {
				return nil, err
			}
			copy(keyArr[:], derived)
		}
		if len(encryptedData) < 2 {
			return nil, ErrInvalidHeader
		}
		ciphertext := encryptedData[1:]
		plain, err := decryptAES256CBCPKCS7(ciphertext, keyArr[:], meta.Cipher.IV[:])
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, 1+len(plain))
		out = append(out, prefix)
		out = append(out, plain...)
		return out, nil

	case AES128GCM:
		tagLen := meta.Cipher.TagLen
		if len(encryptedData) <= 1+tagLen {
			return nil, ErrInvalidHeader
		}
		if len(meta.Cipher.Nonce) != 12 {
			return nil, fmt.Errorf("%w: AES-GCM nonce must be 12 bytes", ErrUnsupported)
		}
		ctEnd := len(encryptedData) - tagLen
		ct := encryptedData[1:ctEnd]
		tag := encryptedData[ctEnd:]

		block, err := aes.NewCipher(DefaultKey[:16])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
		}
		aead, err := cipher.NewGCMWithTagSize(block, tagLen)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
		}
		sealed := make([]byte, 0, len(ct)+len(tag))
		sealed = append(sealed, ct...)
		sealed = append(sealed, tag...)
		pt, err := aead.Open(nil, meta.Cipher.Nonce, sealed, nil)
		if err != nil {
			return nil, ErrTagVerification
		}
		out := make([]byte, 0, 1+len(pt))
		out = append(out, prefix)
		out = append(out, pt...)
		return out, nil

	default:
		return nil, ErrUnsupported
	}
}

func decryptAES256CBCPKCS7(ciphertext, key, iv []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block-aligned", ErrDecrypt)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	mode := cipher.NewCBCDecrypter(block, iv)
	out := make([]byte, len(ciphertext))
	mode.CryptBlocks(out, ciphertext)
	return unpadPKCS7(out)
}

func unpadPKCS7(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecrypt)
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > n || padLen > aes.BlockSize {
		return nil, fmt.Errorf("%w: invalid PKCS7 padding", ErrDecrypt)
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: invalid PKCS7 padding", ErrDecrypt)
		}
	}
	return data[:n-padLen], nil
}

// VerifyIntegrity checks providedTag against the HMAC of data under the
// configured integrity scheme. Integrity{} (the zero value) always passes.
func VerifyIntegrity(data []byte, integrity Integrity, providedTag []byte) error {
	switch integrity.Kind {
	case IntegrityNone:
		return nil
	case IntegrityHMACSHA1:
		return verifyHMAC(sha1.New, integrity.Key, data, providedTag)
	case IntegrityHMACSHA256:
		return verifyHMAC(sha256.New, integrity.Key, data, providedTag)
	default:
		return ErrUnsupported
	}
}

func verifyHMAC(newHash func() hash.Hash, key, data, providedTag []byte) error {
	if providedTag == nil {
		return fmt.Errorf("%w: HMAC tag missing", ErrIntegrity)
	}
	mac := hmac.New(newHash, key)
	mac.Write(data)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, providedTag) {
		return fmt.Errorf("%w: HMAC verification failed", ErrIntegrity)
	}
	return nil
}
