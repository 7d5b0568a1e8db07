// SPDX-License-Identifier: MIT

package cryptosave

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptAES256CBCPKCS7(t *testing.T, plain, key, iv []byte) []byte {
	t.Helper()
	padLen := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), make([]byte, padLen)...)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	mode := cipher.NewCBCEncrypter(block, iv)
	out := make([]byte, len(padded))
	mode.CryptBlocks(out, padded)
	return out
}

func TestDecryptZipEntry_AES256CBCPKCS7_DefaultKey(t *testing.T) {
	plain := []byte("hello phigros save")
	ciphertext := encryptAES256CBCPKCS7(t, plain, DefaultKey[:], DefaultIV[:])

	entry := append([]byte{0x07}, ciphertext...)
	meta := DefaultMeta()

	out, err := DecryptZipEntry(entry, meta)
	require.NoError(t, err)
	assert.Equal(t, byte(0x07), out[0])
	assert.Equal(t, plain, out[1:])
}

func TestDecryptZipEntry_EmptyInput(t *testing.T) {
	_, err := DecryptZipEntry(nil, DefaultMeta())
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestDecryptZipEntry_PBKDF2DerivedKey(t *testing.T) {
	plain := []byte("derived key path")
	kdf := KDFSpec{Enabled: true, Salt: []byte("salt"), Rounds: 1000, Password: []byte("pw")}
	key, err := DeriveKey(kdf, 32)
	require.NoError(t, err)

	ciphertext := encryptAES256CBCPKCS7(t, plain, key, DefaultIV[:])
	entry := append([]byte{0x01}, ciphertext...)

	meta := DecryptionMeta{Cipher: CipherSuite{Kind: AES256CBCPKCS7, IV: DefaultIV}, KDF: kdf}
	out, err := DecryptZipEntry(entry, meta)
	require.NoError(t, err)
	assert.Equal(t, plain, out[1:])
}

func TestDecryptZipEntry_AES128GCM_BadTag(t *testing.T) {
	meta := DecryptionMeta{Cipher: CipherSuite{
		Kind:   AES128GCM,
		Nonce:  make([]byte, 12),
		TagLen: 16,
	}}
	entry := make([]byte, 1+16+16)
	_, err := DecryptZipEntry(entry, meta)
	assert.ErrorIs(t, err, ErrTagVerification)
}

func TestVerifyIntegrity_None(t *testing.T) {
	assert.NoError(t, VerifyIntegrity([]byte("data"), Integrity{}, nil))
}

func TestVerifyIntegrity_HMACSHA256(t *testing.T) {
	data := []byte("payload")
	key := []byte("key")
	meta := Integrity{Kind: IntegrityHMACSHA256, Key: key}

	// compute the expected tag the same way VerifyIntegrity would
	goodTag := mustHMAC(t, data, key)
	assert.NoError(t, VerifyIntegrity(data, meta, goodTag))
	assert.Error(t, VerifyIntegrity(data, meta, []byte("wrong")))
}

func mustHMAC(t *testing.T, data, key []byte) []byte {
	t.Helper()
	err := VerifyIntegrity(data, Integrity{Kind: IntegrityHMACSHA256, Key: key}, nil)
	require.Error(t, err) // sanity: nil tag must fail
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
