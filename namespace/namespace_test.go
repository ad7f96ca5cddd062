package namespace

import (
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestKey_StableNames(t *testing.T) {
	tests := []struct {
		kind  Kind
		scope Scope
		want  string
	}{
		{KindSeed, Legacy(), "encrypted_seed"},
		{KindSalt, Legacy(), "encryption_salt"},
		{KindPassphrase, Legacy(), "encrypted_passphrase"},
		{KindDescriptor, Legacy(), "multisig_descriptor"},
		{KindXprv, Legacy(), "encrypted_xprv"},
		{KindSeed, Account(3), "account_seed_3"},
		{KindSalt, Account(3), "account_salt_3"},
		{KindPassphrase, Account(0), "account_passphrase_0"},
		{KindSeed, Wallet("w1"), "wallet_seed_w1"},
		{KindSalt, Wallet("w1"), "wallet_salt_w1"},
		{KindPassphrase, Wallet("w1"), "wallet_passphrase_w1"},
		{KindDescriptor, Wallet("w1"), "wallet_descriptor_w1"},
		{KindXprv, Wallet("w1"), "wallet_xprv_w1"},
		{KindSeedHex, Wallet("w1"), "wallet_seedhex_w1"},
		{KindPrivKey, Wallet("w1"), "wallet_privkey_w1"},
		{KindSeed, Cosigner(2), "cosigner_seed_2"},
		{KindSalt, Cosigner(2), "cosigner_salt_2"},
	}

	for _, tt := range tests {
		got, err := Key(tt.kind, tt.scope)
		if err != nil {
			t.Fatalf("Key(%s, %s) failed: %v", tt.kind, tt.scope, err)
		}
		if got != tt.want {
			t.Errorf("Key(%s, %s) = %q, want %q", tt.kind, tt.scope, got, tt.want)
		}
	}

	if VersionKey("encrypted_seed") != "encversion:encrypted_seed" {
		t.Errorf("Unexpected version key %q", VersionKey("encrypted_seed"))
	}
}

func TestKey_InvalidInput(t *testing.T) {
	if _, err := Key(KindSeed, Account(-1)); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("Expected ErrInvalidScope for negative account, got %v", err)
	}
	if _, err := Key(KindSeed, Wallet("")); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("Expected ErrInvalidScope for empty wallet id, got %v", err)
	}
	if _, err := Key(KindSeed, Cosigner(-2)); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("Expected ErrInvalidScope for negative cosigner, got %v", err)
	}
	if _, err := Key(Kind("mnemonic"), Legacy()); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

func genScope() *rapid.Generator[Scope] {
	return rapid.Custom(func(t *rapid.T) Scope {
		switch rapid.IntRange(0, 3).Draw(t, "type") {
		case 0:
			return Legacy()
		case 1:
			return Account(rapid.IntRange(0, 1<<20).Draw(t, "account"))
		case 2:
			// wallet ids may contain anything, separators included
			return Wallet(rapid.StringN(1, 24, -1).Draw(t, "wallet"))
		default:
			return Cosigner(rapid.IntRange(0, 64).Draw(t, "index"))
		}
	})
}

func TestKey_Injective(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		k1 := rapid.SampledFrom(Kinds).Draw(t, "kind1")
		k2 := rapid.SampledFrom(Kinds).Draw(t, "kind2")
		s1 := genScope().Draw(t, "scope1")
		s2 := genScope().Draw(t, "scope2")

		if k1 == k2 && s1 == s2 {
			return
		}
		a := MustKey(k1, s1)
		b := MustKey(k2, s2)
		if a == b {
			t.Fatalf("(%s, %s) and (%s, %s) both map to %q", k1, s1, k2, s2, a)
		}
		if VersionKey(a) == b || a == PinHashKey || a == BiometricPinKey ||
			a == KDFSchemeKey || a == HolderIndexKey {
			t.Fatalf("%q collides with a fixed key", a)
		}
	})
}

func TestKey_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom(Kinds).Draw(t, "kind")
		scope := genScope().Draw(t, "scope")
		if MustKey(kind, scope) != MustKey(kind, scope) {
			t.Fatal("Key must be deterministic")
		}
	})
}

func TestParseScope_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scope := genScope().Draw(t, "scope")
		parsed, err := ParseScope(scope.String())
		if err != nil {
			t.Fatalf("ParseScope(%q) failed: %v", scope.String(), err)
		}
		if parsed != scope {
			t.Fatalf("Round trip mismatch: %+v != %+v", parsed, scope)
		}
	})
}

func TestParseScope_Invalid(t *testing.T) {
	for _, s := range []string{"", "account", "account:x", "wallet:", "cosigner:-1", "vault:1"} {
		if _, err := ParseScope(s); err == nil {
			t.Errorf("ParseScope(%q): expected error", s)
		}
	}
}

func TestScopeKeys(t *testing.T) {
	keys, err := ScopeKeys(Wallet("abc"))
	if err != nil {
		t.Fatalf("ScopeKeys failed: %v", err)
	}

	want := map[string]bool{
		"wallet_seed_abc":                  false,
		"wallet_salt_abc":                  false,
		"wallet_xprv_abc":                  false,
		"encversion:wallet_seed_abc":       false,
		"encversion:wallet_descriptor_abc": false,
	}
	for _, k := range keys {
		if !strings.HasSuffix(k, "_abc") {
			t.Errorf("Key %q escapes the wallet scope", k)
		}
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, found := range want {
		if !found {
			t.Errorf("Expected %q in scope keys", k)
		}
	}
}

func TestParseKey_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom(Kinds).Draw(t, "kind")
		scope := genScope().Draw(t, "scope")
		key := MustKey(kind, scope)

		gotKind, gotScope, ok := ParseKey(key)
		if !ok {
			t.Fatalf("ParseKey(%q) failed", key)
		}
		if gotKind != kind || gotScope != scope {
			t.Fatalf("Expected (%s, %+v), got (%s, %+v)", kind, scope, gotKind, gotScope)
		}
	})
}

func TestParseKey_Foreign(t *testing.T) {
	for _, key := range []string{
		PinHashKey, BiometricPinKey, KDFSchemeKey, HolderIndexKey,
		"encversion:account_seed_3", "encrypted_salt", "encrypted_bogus",
		"account_seed_x", "account_seed_07", "account_bogus_3", "wallet_seed_", "vault_seed_1",
	} {
		if _, _, ok := ParseKey(key); ok {
			t.Errorf("Expected ParseKey(%q) to fail", key)
		}
	}

	kind, scope, ok := ParseKey("wallet_salt_abc_def")
	if !ok || kind != KindSalt || scope != Wallet("abc_def") {
		t.Errorf("Expected (salt, wallet:abc_def), got (%s, %s, %v)", kind, scope, ok)
	}
}
