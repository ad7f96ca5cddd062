// Package kdf turns a user PIN plus a per-holder salt into symmetric key
// material and into the PIN hash used as the verification anchor.
//
// The default scheme is a single SHA-256 over "{pin}:{salt}". It is fast on
// purpose: brute-force resistance is delegated to the platform keystore,
// which is expected to rate-limit attempts and bind items to the device.
// Deployments without such a limiter should select SchemeArgon2id.
package kdf

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// SaltSize is the number of random bytes in a holder salt (hex-encoded to 64 chars).
const SaltSize = 32

// KeySize is the length of every derived symmetric key.
const KeySize = 32

// Argon2id parameters for the hardened scheme (mobile-friendly memory cost)
const (
	Argon2idTime    = 3
	Argon2idMemory  = 64 * 1024 // 64 MB
	Argon2idThreads = 4
)

// Scheme names a key derivation scheme. It is persisted alongside the PIN
// anchor so that a vault always reads with the scheme it was written with.
type Scheme string

const (
	SchemeSHA256   Scheme = "sha256"
	SchemeArgon2id Scheme = "argon2id"
)

// Deriver derives a KeySize key from a PIN (or backup password) and a salt.
type Deriver interface {
	Scheme() Scheme
	DeriveKey(pin, salt string) []byte
}

// ForScheme returns the deriver for a persisted scheme name. An empty name
// selects SHA-256, which is what every vault written before the marker used.
func ForScheme(name string) (Deriver, error) {
	switch Scheme(name) {
	case "", SchemeSHA256:
		return SHA256{}, nil
	case SchemeArgon2id:
		return Argon2id{}, nil
	default:
		return nil, fmt.Errorf("unknown kdf scheme %q", name)
	}
}

// SHA256 is the fast single-digest scheme.
type SHA256 struct{}

func (SHA256) Scheme() Scheme { return SchemeSHA256 }

func (SHA256) DeriveKey(pin, salt string) []byte {
	return DeriveKey(pin, salt)
}

// Argon2id is the deliberately slow scheme for environments without a
// hardware-backed attempt limiter.
type Argon2id struct{}

func (Argon2id) Scheme() Scheme { return SchemeArgon2id }

func (Argon2id) DeriveKey(pin, salt string) []byte {
	return argon2.IDKey([]byte(pin), []byte(salt), Argon2idTime, Argon2idMemory, Argon2idThreads, KeySize)
}

// DeriveKey returns SHA-256 of the UTF-8 bytes of "{pin}:{salt}".
func DeriveKey(pin, salt string) []byte {
	sum := sha256.Sum256(pinInput(pin, salt))
	return sum[:]
}

// PinHash returns the lowercase hex SHA-256 of "{pin}:{salt}". It is only
// ever compared for equality and never fed to a cipher.
func PinHash(pin, salt string) string {
	sum := sha256.Sum256(pinInput(pin, salt))
	return hex.EncodeToString(sum[:])
}

// NewSalt generates a fresh hex-encoded holder salt.
func NewSalt() (string, error) {
	b := make([]byte, SaltSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Zero overwrites key material in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func pinInput(pin, salt string) []byte {
	return []byte(pin + ":" + salt)
}
