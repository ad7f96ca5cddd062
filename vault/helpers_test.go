package vault

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devdasx/satryn-sub001/cipher"
	"github.com/devdasx/satryn-sub001/kdf"
	"github.com/devdasx/satryn-sub001/keystore"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	testSeed     = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testCosigner = "legal winner thank year wave sausage worth useful legal winner thank yellow"
	testSeed2    = "zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo wrong"
	testWIF      = "5HueCGU8rMjxEXxiPuD5BDku4MkFqeZyd4dZ1jvhTVqvbTLvyTJ"
	testXprv     = "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"
	testSeedHex  = "000102030405060708090a0b0c0d0e0f"

	legacySalt = "abababababababababababababababababababababababababababababababab"
)

var testClock = time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.UTC)

func newTestService(t *testing.T, opts ...Option) (*Service, *keystore.MemoryStore) {
	t.Helper()
	store := keystore.NewMemoryStore()
	opts = append([]Option{WithClock(func() time.Time { return testClock })}, opts...)
	return New(store, DefaultConfig(), opts...), store
}

func newMeteredService(t *testing.T, store keystore.Store) (*Service, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	return New(store, DefaultConfig(), WithMetrics(m)), m
}

func mustGet(t *testing.T, store keystore.Store, key string) string {
	t.Helper()
	v, err := store.GetItem(context.Background(), key)
	if err != nil {
		t.Fatalf("Expected %s in store: %v", key, err)
	}
	return v
}

func assertMissing(t *testing.T, store keystore.Store, key string) {
	t.Helper()
	if _, err := store.GetItem(context.Background(), key); !errors.Is(err, keystore.ErrNotFound) {
		t.Errorf("Expected %s to be absent, got %v", key, err)
	}
}

// writeLegacy stores a version 1 record and its salt the way old builds did:
// bare hex and no version marker.
func writeLegacy(t *testing.T, store keystore.Store, recordKey, saltKey, salt, plaintext, pin string) {
	t.Helper()
	ctx := context.Background()
	payload, err := cipher.LegacyEncrypt(plaintext, cipher.LegacyKey(pin, salt))
	if err != nil {
		t.Fatalf("LegacyEncrypt failed: %v", err)
	}
	if err := store.SetItem(ctx, saltKey, salt, nil); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if err := store.SetItem(ctx, recordKey, payload, nil); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
}

// seedLegacyVault fabricates a pre-AEAD primary wallet with its anchor
func seedLegacyVault(t *testing.T, store keystore.Store, seed, pin string) {
	t.Helper()
	writeLegacy(t, store, "encrypted_seed", "encryption_salt", legacySalt, seed, pin)
	if err := store.SetItem(context.Background(), "pin_hash", kdf.PinHash(pin, legacySalt), nil); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
}

// faultyStore fails selected operations
type faultyStore struct {
	*keystore.MemoryStore

	mu         sync.Mutex
	failGet    func(key string) bool
	failSet    func(key string) bool
	failDelete func(key string) bool
}

var errDiskOnFire = errors.New("disk on fire at /var/keystore")

func (f *faultyStore) GetItem(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	fail := f.failGet != nil && f.failGet(key)
	f.mu.Unlock()
	if fail {
		return "", errDiskOnFire
	}
	return f.MemoryStore.GetItem(ctx, key)
}

func (f *faultyStore) SetItem(ctx context.Context, key, value string, policy *keystore.AccessPolicy) error {
	f.mu.Lock()
	fail := f.failSet != nil && f.failSet(key)
	f.mu.Unlock()
	if fail {
		return errDiskOnFire
	}
	return f.MemoryStore.SetItem(ctx, key, value, policy)
}

func (f *faultyStore) DeleteItem(ctx context.Context, key string) error {
	f.mu.Lock()
	fail := f.failDelete != nil && f.failDelete(key)
	f.mu.Unlock()
	if fail {
		return errDiskOnFire
	}
	return f.MemoryStore.DeleteItem(ctx, key)
}

func isCurrentRecord(v string) bool {
	return strings.HasPrefix(v, "2:")
}

// unlistedStore hides the backend's key listing
type unlistedStore struct {
	keystore.Store
}

// seedUnindexedAccount fabricates a legacy primary wallet plus account 3
// the way builds without a holder index left them
func seedUnindexedAccount(t *testing.T, store keystore.Store) {
	t.Helper()
	seedLegacyVault(t, store, testSeed, "1234")
	writeLegacy(t, store, "account_seed_3", "account_salt_3", legacySalt, testSeed2, "1234")
}

func snapshot(t *testing.T, store *keystore.MemoryStore) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, k := range store.Keys() {
		out[k] = mustGet(t, store, k)
	}
	return out
}
