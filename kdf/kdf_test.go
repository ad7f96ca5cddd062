package kdf

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestDeriveKey_MatchesSHA256OfPinAndSalt(t *testing.T) {
	want := sha256.Sum256([]byte("1234:abcd"))

	key := DeriveKey("1234", "abcd")
	if !bytes.Equal(key, want[:]) {
		t.Fatalf("Expected %x, got %x", want, key)
	}
	if len(key) != KeySize {
		t.Errorf("Expected %d byte key, got %d", KeySize, len(key))
	}
}

func TestPinHash_IsHexOfSameDigest(t *testing.T) {
	want := sha256.Sum256([]byte("0000:" + "ff"))

	if got := PinHash("0000", "ff"); got != hex.EncodeToString(want[:]) {
		t.Errorf("Unexpected pin hash %s", got)
	}
	if PinHash("0000", "ff") == PinHash("0001", "ff") {
		t.Error("Different PINs must hash differently")
	}
	if PinHash("0000", "ff") == PinHash("0000", "fe") {
		t.Error("Different salts must hash differently")
	}
}

func TestNewSalt(t *testing.T) {
	a, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}
	b, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}

	if len(a) != 2*SaltSize {
		t.Errorf("Expected %d hex chars, got %d", 2*SaltSize, len(a))
	}
	if _, err := hex.DecodeString(a); err != nil {
		t.Errorf("Salt is not hex: %v", err)
	}
	if a == b {
		t.Error("Two salts should never collide")
	}
}

func TestForScheme(t *testing.T) {
	tests := []struct {
		name    string
		want    Scheme
		wantErr bool
	}{
		{name: "", want: SchemeSHA256},
		{name: "sha256", want: SchemeSHA256},
		{name: "argon2id", want: SchemeArgon2id},
		{name: "scrypt", wantErr: true},
	}

	for _, tt := range tests {
		d, err := ForScheme(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ForScheme(%q): expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ForScheme(%q) failed: %v", tt.name, err)
		}
		if d.Scheme() != tt.want {
			t.Errorf("ForScheme(%q) = %s, want %s", tt.name, d.Scheme(), tt.want)
		}
	}
}

func TestArgon2id_DiffersFromSHA256(t *testing.T) {
	fast := SHA256{}.DeriveKey("1234", "salt")
	slow := Argon2id{}.DeriveKey("1234", "salt")

	if len(slow) != KeySize {
		t.Fatalf("Expected %d byte key, got %d", KeySize, len(slow))
	}
	if bytes.Equal(fast, slow) {
		t.Error("Schemes must not produce the same key")
	}
	if !bytes.Equal(slow, Argon2id{}.DeriveKey("1234", "salt")) {
		t.Error("Argon2id must be deterministic")
	}
}

func TestLockUnlock_ZeroesKey(t *testing.T) {
	key := DeriveKey("1234", "salt")
	_ = Lock(key) // may fail under a tight RLIMIT_MEMLOCK
	Unlock(key)

	for _, b := range key {
		if b != 0 {
			t.Fatal("Key should be zeroed after Unlock")
		}
	}
}
