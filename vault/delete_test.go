package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/devdasx/satryn-sub001/keystore"
)

// populate fills every kind of holder under pin
func populate(t *testing.T, svc *Service, pin string) {
	t.Helper()
	ctx := context.Background()
	steps := []func() error{
		func() error { return svc.StoreSeed(ctx, testSeed, pin) },
		func() error { return svc.StorePassphrase(ctx, "hunter2", pin) },
		func() error { return svc.StoreAccountSeed(ctx, 1, testSeed2, pin) },
		func() error { return svc.StoreWalletSeed(ctx, "w1", testSeed, pin) },
		func() error { return svc.StoreWalletPrivateKey(ctx, "w2", testWIF, pin) },
		func() error { return svc.StoreLocalCosignerSeed(ctx, 3, testCosigner, pin) },
		func() error { return svc.StorePinForBiometrics(ctx, pin) },
		func() error { return svc.StoreAccountMetadata(ctx, AccountMetadata{AccountID: 1, Name: "savings"}) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("Populate step %d failed: %v", i, err)
		}
	}
}

func TestDeleteWallet_WipesEverything(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	populate(t, svc, "1234")

	report := svc.DeleteWallet(ctx)
	if report.Failed != 0 {
		t.Errorf("Expected no failures, got %+v", report)
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty keystore, %d items left: %v", store.Len(), store.Keys())
	}

	if set, _ := svc.HasPinSet(ctx); set {
		t.Error("Expected PIN to be gone")
	}
	if _, err := svc.RetrieveSeed(ctx, "1234"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// the vault is reusable with a new PIN
	if err := svc.StoreSeed(ctx, testSeed2, "5555"); err != nil {
		t.Fatalf("StoreSeed after wipe failed: %v", err)
	}
	if err := svc.VerifyPin(ctx, "5555"); err != nil {
		t.Errorf("Expected new PIN to verify, got %v", err)
	}
}

func TestDeleteWallet_WipesHoldersMissingFromTheIndex(t *testing.T) {
	for _, index := range []string{"", `["account:3"]`} {
		ctx := context.Background()
		store := keystore.NewMemoryStore()
		seedUnindexedAccount(t, store)
		writeLegacy(t, store, "wallet_seed_old", "wallet_salt_old", legacySalt, testCosigner, "1234")
		if index != "" {
			store.SetItem(ctx, "holder_index", index, nil)
		}
		svc := New(store, DefaultConfig())

		svc.DeleteWallet(ctx)
		if store.Len() != 0 {
			t.Errorf("index %q: expected empty keystore, %d items left: %v", index, store.Len(), store.Keys())
		}
	}
}

func TestDeleteWallet_BestEffort(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{MemoryStore: keystore.NewMemoryStore()}
	svc := New(store, DefaultConfig())
	populate(t, svc, "1234")

	store.failDelete = func(key string) bool { return key == "wallet_seed_w1" }
	report := svc.DeleteWallet(ctx)
	if report.Failed != 1 {
		t.Errorf("Expected exactly 1 failed delete, got %+v", report)
	}
	if report.Attempted <= report.Failed {
		t.Errorf("Expected the rest of the wipe to be attempted, got %+v", report)
	}

	// the stray record cannot be opened once its salt is gone
	if store.Len() != 1 {
		t.Errorf("Expected only the failed key to remain, got %v", store.Keys())
	}
	assertMissing(t, store, "wallet_salt_w1")
	assertMissing(t, store, "pin_hash")
}

func TestDeleteWalletData(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	populate(t, svc, "1234")

	report, err := svc.DeleteWalletData(ctx, "w1")
	if err != nil {
		t.Fatalf("DeleteWalletData failed: %v", err)
	}
	if report.Failed != 0 {
		t.Errorf("Unexpected report %+v", report)
	}
	assertMissing(t, store, "wallet_seed_w1")
	assertMissing(t, store, "wallet_salt_w1")
	assertMissing(t, store, "encversion:wallet_seed_w1")

	if _, err := svc.RetrieveWalletSeed(ctx, "w1", "1234"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if wif, err := svc.RetrieveWalletPrivateKey(ctx, "w2", "1234"); err != nil || wif != testWIF {
		t.Errorf("Other wallets must survive, got %q (%v)", wif, err)
	}
	if seed, err := svc.RetrieveSeed(ctx, "1234"); err != nil || seed != testSeed {
		t.Errorf("Primary wallet must survive, got %q (%v)", seed, err)
	}
	if err := svc.VerifyPin(ctx, "1234"); err != nil {
		t.Errorf("PIN anchor must survive, got %v", err)
	}

	if _, err := svc.DeleteWalletData(ctx, ""); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("Expected ErrInvalidScope, got %v", err)
	}
}

func TestDeleteAccountData(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	populate(t, svc, "1234")

	if _, err := svc.DeleteAccountData(ctx, 1); err != nil {
		t.Fatalf("DeleteAccountData failed: %v", err)
	}
	assertMissing(t, store, "account_seed_1")
	assertMissing(t, store, "account_salt_1")
	assertMissing(t, store, "account_metadata_1")

	if _, err := svc.AccountMetadata(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected metadata to be gone, got %v", err)
	}
	accounts, err := svc.ListAccountMetadata(ctx)
	if err != nil || len(accounts) != 0 {
		t.Errorf("Expected no accounts, got %+v (%v)", accounts, err)
	}
	if has, _ := svc.HasLocalCosignerSeed(ctx, 3); !has {
		t.Error("Cosigners must survive an account wipe")
	}
}
