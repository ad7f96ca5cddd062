package vault

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/devdasx/satryn-sub001/kdf"
	"github.com/devdasx/satryn-sub001/keystore"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// dropAnchor removes both anchor items, the corruption recovery exists for
func dropAnchor(t *testing.T, store keystore.Store) {
	t.Helper()
	ctx := context.Background()
	store.DeleteItem(ctx, "encryption_salt")
	store.DeleteItem(ctx, "pin_hash")
}

func TestRecovery_FromWalletSeed(t *testing.T) {
	ctx := context.Background()
	store := keystore.NewMemoryStore()
	writer := New(store, DefaultConfig())
	if err := writer.StoreWalletSeed(ctx, "w1", testSeed, "2468"); err != nil {
		t.Fatalf("StoreWalletSeed failed: %v", err)
	}
	dropAnchor(t, store)

	svc, m := newMeteredService(t, store)
	if set, _ := svc.HasPinSet(ctx); set {
		t.Fatal("Expected anchor to be gone")
	}
	if err := svc.VerifyPin(ctx, "2468"); err != nil {
		t.Fatalf("Expected recovery to accept the PIN, got %v", err)
	}

	walletSalt := mustGet(t, store, "wallet_salt_w1")
	if mustGet(t, store, "encryption_salt") != walletSalt {
		t.Error("Expected the recovered holder salt to become the global salt")
	}
	if mustGet(t, store, "pin_hash") != kdf.PinHash("2468", walletSalt) {
		t.Error("Expected PIN hash to be rebuilt from the recovered salt")
	}
	if got := testutil.ToFloat64(m.recoveries.WithLabelValues("recovered")); got != 1 {
		t.Errorf("Expected 1 recovery, got %v", got)
	}

	// the fast path is back in charge
	if err := svc.VerifyPin(ctx, "1111"); !errors.Is(err, ErrWrongPin) {
		t.Errorf("Expected ErrWrongPin after recovery, got %v", err)
	}
	if got := testutil.ToFloat64(m.recoveries.WithLabelValues("failed")); got != 0 {
		t.Errorf("Recovery must not run once the anchor exists, got %v failures", got)
	}
}

func TestRecovery_WrongPinLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	store := keystore.NewMemoryStore()
	New(store, DefaultConfig()).StoreAccountSeed(ctx, 0, testSeed, "2468")
	dropAnchor(t, store)

	svc, m := newMeteredService(t, store)
	if err := svc.VerifyPin(ctx, "0000"); !errors.Is(err, ErrWrongPin) {
		t.Fatalf("Expected ErrWrongPin, got %v", err)
	}
	assertMissing(t, store, "pin_hash")
	assertMissing(t, store, "encryption_salt")
	if got := testutil.ToFloat64(m.recoveries.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed recovery, got %v", got)
	}

	// a write under the wrong PIN is refused the same way
	if err := svc.StoreSeed(ctx, testSeed2, "0000"); !errors.Is(err, ErrWrongPin) {
		t.Errorf("Expected ErrWrongPin for a write, got %v", err)
	}
	assertMissing(t, store, "encrypted_seed")

	// and the right PIN re-anchors through the write path
	if err := svc.StoreSeed(ctx, testSeed2, "2468"); err != nil {
		t.Fatalf("StoreSeed failed: %v", err)
	}
	if err := svc.VerifyPin(ctx, "2468"); err != nil {
		t.Errorf("Expected recovered PIN to verify, got %v", err)
	}
}

func TestRecovery_LegacyCosignerWithoutIndex(t *testing.T) {
	ctx := context.Background()
	store := keystore.NewMemoryStore()
	salt := strings.Repeat("ef", 32)
	writeLegacy(t, store, "cosigner_seed_2", "cosigner_salt_2", salt, testCosigner, "9999")

	svc := New(store, DefaultConfig())
	if err := svc.VerifyPin(ctx, "9999"); err != nil {
		t.Fatalf("Expected recovery through the unindexed cosigner slot, got %v", err)
	}
	if mustGet(t, store, "encryption_salt") != salt {
		t.Error("Expected cosigner salt to become the global salt")
	}
	if has, _ := svc.HasLocalCosignerSeed(ctx, 2); !has {
		t.Error("Expected recovered slot to be indexed")
	}
	if mustGet(t, store, "holder_index") != `["cosigner:2"]` {
		t.Errorf("Unexpected holder index %s", mustGet(t, store, "holder_index"))
	}
}

func TestRecovery_NoCandidates(t *testing.T) {
	ctx := context.Background()
	svc, m := newMeteredService(t, keystore.NewMemoryStore())

	if err := svc.VerifyPin(ctx, "1234"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if got := testutil.ToFloat64(m.recoveries.WithLabelValues("no_candidates")); got != 1 {
		t.Errorf("Expected no_candidates to be counted, got %v", got)
	}
}

func TestRecovery_OnlyWhenBothAnchorItemsMissing(t *testing.T) {
	ctx := context.Background()
	store := keystore.NewMemoryStore()
	New(store, DefaultConfig()).StoreWalletSeed(ctx, "w1", testSeed, "2468")

	// hash without salt is corruption, not a recovery case
	store.DeleteItem(ctx, "encryption_salt")
	svc, m := newMeteredService(t, store)
	if err := svc.VerifyPin(ctx, "2468"); !errors.Is(err, ErrFormat) {
		t.Errorf("Expected ErrFormat, got %v", err)
	}

	// salt without hash means no PIN is set
	store2 := keystore.NewMemoryStore()
	New(store2, DefaultConfig()).StoreWalletSeed(ctx, "w1", testSeed, "2468")
	store2.DeleteItem(ctx, "pin_hash")
	svc2 := New(store2, DefaultConfig())
	if err := svc2.VerifyPin(ctx, "2468"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	for _, result := range []string{"recovered", "failed", "no_candidates"} {
		if got := testutil.ToFloat64(m.recoveries.WithLabelValues(result)); got != 0 {
			t.Errorf("Recovery must not run, got %v %s", got, result)
		}
	}
}

func TestReanchor_SaltWithoutHashChecksPrimary(t *testing.T) {
	ctx := context.Background()
	store := keystore.NewMemoryStore()
	New(store, DefaultConfig()).StoreSeed(ctx, testSeed, "1234")
	store.DeleteItem(ctx, "pin_hash")

	svc := New(store, DefaultConfig())
	if err := svc.StorePassphrase(ctx, "x", "0000"); !errors.Is(err, ErrWrongPin) {
		t.Errorf("Expected a PIN that cannot open the primary seed to be refused, got %v", err)
	}
	assertMissing(t, store, "pin_hash")

	if err := svc.StorePassphrase(ctx, "x", "1234"); err != nil {
		t.Fatalf("StorePassphrase failed: %v", err)
	}
	if err := svc.VerifyPin(ctx, "1234"); err != nil {
		t.Errorf("Expected anchor to be restored, got %v", err)
	}
}
