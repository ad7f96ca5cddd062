package cipher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// LegacyKeyRounds is the number of SHA-256 rounds in the legacy key stream.
const LegacyKeyRounds = 1000

// LegacyKey derives the version 1 key string. The first round hashes the
// UTF-8 bytes of "{pin}:{salt}"; every later round hashes the lowercase hex
// digest of the round before it.
func LegacyKey(pin, salt string) string {
	sum := sha256.Sum256([]byte(pin + ":" + salt))
	digest := hex.EncodeToString(sum[:])
	for i := 1; i < LegacyKeyRounds; i++ {
		sum = sha256.Sum256([]byte(digest))
		digest = hex.EncodeToString(sum[:])
	}
	return digest
}

// LegacyDecrypt XORs a hex payload against the repeating bytes of
// legacyKey. A wrong key is undetectable here and yields garbage; callers
// have to judge the plaintext themselves.
func LegacyDecrypt(hexPayload, legacyKey string) (string, error) {
	payload, err := hex.DecodeString(hexPayload)
	if err != nil {
		return "", fmt.Errorf("%w: legacy payload is not hex", ErrFormat)
	}
	out, err := xorStream(payload, legacyKey)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// LegacyEncrypt produces a version 1 payload. The vault never writes these;
// it exists for fixtures and tooling that need to fabricate old records.
func LegacyEncrypt(plaintext, legacyKey string) (string, error) {
	out, err := xorStream([]byte(plaintext), legacyKey)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(out), nil
}

func xorStream(in []byte, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("legacy key must not be empty")
	}
	out := make([]byte, len(in))
	for i := range in {
		out[i] = in[i] ^ key[i%len(key)]
	}
	return out, nil
}
