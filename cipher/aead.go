package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"fmt"
)

// Encrypt seals plaintext under a 32-byte key with AES-256-GCM and returns
// the encoded version 2 record. Every call draws a new random nonce.
func Encrypt(plaintext, key []byte) (string, error) {
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize
	rec := &AEADRecord{
		Nonce:      nonce,
		Ciphertext: sealed[:split],
		Tag:        sealed[split:],
	}
	return rec.String(), nil
}

// Decrypt parses a version 2 record and opens it. A legacy or otherwise
// malformed record fails with ErrFormat; a tag mismatch with
// ErrAuthentication.
func Decrypt(record string, key []byte) ([]byte, error) {
	rec, err := ParseRecord(record)
	if err != nil {
		return nil, err
	}
	aeadRec, ok := rec.(*AEADRecord)
	if !ok {
		return nil, fmt.Errorf("%w: not a version 2 record", ErrFormat)
	}
	return aeadRec.Open(key)
}

// Open authenticates and decrypts the record.
func (r *AEADRecord) Open(key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(r.Ciphertext)+len(r.Tag))
	sealed = append(sealed, r.Ciphertext...)
	sealed = append(sealed, r.Tag...)

	plaintext, err := aead.Open(nil, r.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func newGCM(key []byte) (stdcipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return stdcipher.NewGCM(block)
}
