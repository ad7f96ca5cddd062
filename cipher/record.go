// Package cipher implements the versioned symmetric encryption format used
// for every record in the vault.
//
// Version 2 (current) is AES-256-GCM with a fresh 12-byte nonce per record:
//
//	2:{nonce_hex}:{ciphertext_hex}:{tag_hex}
//
// Version 1 (legacy) is a bare hex payload produced by a repeating-key XOR
// stream. It is only ever decoded, never written, and exists so old records
// can be migrated on read.
package cipher

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	VersionLegacy = 1
	VersionAEAD   = 2

	// versionTag prefixes every version 2 record
	versionTag = "2"

	NonceSize = 12
	TagSize   = 16
	KeySize   = 32
)

var (
	// ErrFormat means the record is malformed: wrong field count, unknown
	// version tag or bad hex. It signals corruption, not a wrong key.
	ErrFormat = errors.New("malformed encrypted record")

	// ErrAuthentication means the AEAD tag did not verify: wrong key or
	// tampered data.
	ErrAuthentication = errors.New("record authentication failed")
)

// Record is a decoded EncryptedRecord. It is either a LegacyRecord or an
// AEADRecord; the concrete type alone decides the decode path.
type Record interface {
	Version() int
	String() string
}

// LegacyRecord is an untagged version 1 payload.
type LegacyRecord struct {
	Payload []byte
}

func (r *LegacyRecord) Version() int { return VersionLegacy }

func (r *LegacyRecord) String() string { return hex.EncodeToString(r.Payload) }

// AEADRecord is a version 2 record.
type AEADRecord struct {
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

func (r *AEADRecord) Version() int { return VersionAEAD }

func (r *AEADRecord) String() string {
	return strings.Join([]string{
		versionTag,
		hex.EncodeToString(r.Nonce),
		hex.EncodeToString(r.Ciphertext),
		hex.EncodeToString(r.Tag),
	}, ":")
}

// ParseRecord detects the format of a stored value and decodes it once.
// Legacy payloads are plain hex and never contain a colon, so the presence
// of a separator is what selects the version 2 parser.
func ParseRecord(raw string) (Record, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty record", ErrFormat)
	}

	if !strings.Contains(raw, ":") {
		payload, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: legacy payload is not hex", ErrFormat)
		}
		return &LegacyRecord{Payload: payload}, nil
	}

	fields := strings.Split(raw, ":")
	if len(fields) != 4 {
		return nil, fmt.Errorf("%w: expected 4 fields, got %d", ErrFormat, len(fields))
	}
	if fields[0] != versionTag {
		return nil, fmt.Errorf("%w: unknown version tag %q", ErrFormat, fields[0])
	}

	nonce, err := hex.DecodeString(fields[1])
	if err != nil || len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: invalid nonce", ErrFormat)
	}
	ciphertext, err := hex.DecodeString(fields[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext", ErrFormat)
	}
	tag, err := hex.DecodeString(fields[3])
	if err != nil || len(tag) != TagSize {
		return nil, fmt.Errorf("%w: invalid tag", ErrFormat)
	}

	return &AEADRecord{Nonce: nonce, Ciphertext: ciphertext, Tag: tag}, nil
}
