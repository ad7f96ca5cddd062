package vault

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/devdasx/satryn-sub001/keystore"
)

func TestCosignerImportAndRemove(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	if err := svc.StoreLocalCosignerSeed(ctx, 2, testCosigner, "9999"); err != nil {
		t.Fatalf("StoreLocalCosignerSeed failed: %v", err)
	}

	seeds, err := svc.RetrieveAllLocalCosignerSeeds(ctx, "9999")
	if err != nil {
		t.Fatalf("RetrieveAllLocalCosignerSeeds failed: %v", err)
	}
	want := []CosignerSeed{{Index: 2, Seed: testCosigner}}
	if !reflect.DeepEqual(seeds, want) {
		t.Fatalf("Expected %+v, got %+v", want, seeds)
	}
	if has, _ := svc.HasLocalCosignerSeed(ctx, 2); !has {
		t.Error("Expected slot 2 to be occupied")
	}

	report, err := svc.DeleteLocalCosignerSeed(ctx, 2)
	if err != nil {
		t.Fatalf("DeleteLocalCosignerSeed failed: %v", err)
	}
	if report.Failed != 0 {
		t.Errorf("Expected no failed deletes, got %d", report.Failed)
	}

	seeds, err = svc.RetrieveAllLocalCosignerSeeds(ctx, "9999")
	if err != nil {
		t.Fatalf("RetrieveAllLocalCosignerSeeds failed: %v", err)
	}
	if len(seeds) != 0 {
		t.Errorf("Expected slot 2 to be gone, got %+v", seeds)
	}
	if has, _ := svc.HasLocalCosignerSeed(ctx, 2); has {
		t.Error("Expected slot 2 to be free")
	}
	assertMissing(t, store, "cosigner_seed_2")
	assertMissing(t, store, "cosigner_salt_2")
	assertMissing(t, store, "encversion:cosigner_seed_2")

	// removal is permanent until re-import
	if _, err := svc.RetrieveLocalCosignerSeed(ctx, 2, "9999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRetrieveAllCosigners_SortedAndTolerant(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	for _, i := range []int{9, 0, 4} {
		if err := svc.StoreLocalCosignerSeed(ctx, i, testCosigner, "1234"); err != nil {
			t.Fatalf("StoreLocalCosignerSeed(%d) failed: %v", i, err)
		}
	}
	store.SetItem(ctx, "cosigner_seed_4", "2:zz:00:00", nil)

	seeds, err := svc.RetrieveAllLocalCosignerSeeds(ctx, "1234")
	if err != nil {
		t.Fatalf("RetrieveAllLocalCosignerSeeds failed: %v", err)
	}
	var indexes []int
	for _, s := range seeds {
		indexes = append(indexes, s.Index)
	}
	if !reflect.DeepEqual(indexes, []int{0, 9}) {
		t.Errorf("Expected corrupt slot to be skipped and order kept, got %v", indexes)
	}

	all, _ := svc.LocalCosignerIndexes(ctx)
	if !reflect.DeepEqual(all, []int{0, 4, 9}) {
		t.Errorf("Expected indexes [0 4 9], got %v", all)
	}

	if _, err := svc.RetrieveAllLocalCosignerSeeds(ctx, "0000"); !errors.Is(err, ErrWrongPin) {
		t.Errorf("Expected ErrWrongPin, got %v", err)
	}
}

func TestCosignerIndex_RebuiltOnceForOldVaults(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{MemoryStore: keystore.NewMemoryStore()}
	seedLegacyVault(t, store.MemoryStore, testSeed, "1234")
	writeLegacy(t, store.MemoryStore, "cosigner_seed_1", "cosigner_salt_1", strings.Repeat("01", 32), testCosigner, "1234")
	writeLegacy(t, store.MemoryStore, "cosigner_seed_14", "cosigner_salt_14", strings.Repeat("02", 32), testSeed2, "1234")

	svc := New(store, DefaultConfig())
	indexes, err := svc.LocalCosignerIndexes(ctx)
	if err != nil {
		t.Fatalf("LocalCosignerIndexes failed: %v", err)
	}
	if !reflect.DeepEqual(indexes, []int{1, 14}) {
		t.Fatalf("Expected rebuilt slots [1 14], got %v", indexes)
	}
	if mustGet(t, store, "holder_index") != `["cosigner:1","cosigner:14"]` {
		t.Errorf("Unexpected persisted index %s", mustGet(t, store, "holder_index"))
	}

	// a fresh service reads the persisted set instead of rebuilding it
	seedReads := 0
	store.failGet = func(key string) bool {
		if strings.HasPrefix(key, "cosigner_seed_") {
			seedReads++
		}
		return false
	}
	fresh := New(store, DefaultConfig())
	if has, _ := fresh.HasLocalCosignerSeed(ctx, 14); !has {
		t.Error("Expected slot 14 from the persisted index")
	}
	if seedReads != 0 {
		t.Errorf("Expected no slot reads, got %d", seedReads)
	}

	seeds, err := fresh.RetrieveAllLocalCosignerSeeds(ctx, "1234")
	if err != nil || len(seeds) != 2 {
		t.Fatalf("Expected both legacy cosigners, got %+v (%v)", seeds, err)
	}
	if !isCurrentRecord(mustGet(t, store, "cosigner_seed_14")) {
		t.Error("Expected cosigner record to be migrated on read")
	}
}

func TestDeleteAllLocalCosignerSeeds(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	svc.StoreSeed(ctx, testSeed, "1234")
	for i := 0; i < 3; i++ {
		svc.StoreLocalCosignerSeed(ctx, i, testCosigner, "1234")
	}

	report, err := svc.DeleteAllLocalCosignerSeeds(ctx)
	if err != nil {
		t.Fatalf("DeleteAllLocalCosignerSeeds failed: %v", err)
	}
	if report.Attempted == 0 || report.Failed != 0 {
		t.Errorf("Unexpected report %+v", report)
	}
	for _, k := range store.Keys() {
		if strings.HasPrefix(k, "cosigner_") || strings.Contains(k, ":cosigner_") {
			t.Errorf("Expected %s to be wiped", k)
		}
	}
	if idx, _ := svc.LocalCosignerIndexes(ctx); len(idx) != 0 {
		t.Errorf("Expected empty index, got %v", idx)
	}
	if seed, err := svc.RetrieveSeed(ctx, "1234"); err != nil || seed != testSeed {
		t.Error("Primary wallet must survive a cosigner wipe")
	}
}

func TestCosignerIndex_ScansSlotsWhenBackendCannotList(t *testing.T) {
	ctx := context.Background()
	mem := keystore.NewMemoryStore()
	seedLegacyVault(t, mem, testSeed, "1234")
	writeLegacy(t, mem, "cosigner_seed_5", "cosigner_salt_5", strings.Repeat("03", 32), testCosigner, "1234")
	writeLegacy(t, mem, "account_seed_3", "account_salt_3", legacySalt, testSeed2, "1234")

	svc := New(unlistedStore{mem}, DefaultConfig())
	indexes, err := svc.LocalCosignerIndexes(ctx)
	if err != nil {
		t.Fatalf("LocalCosignerIndexes failed: %v", err)
	}
	if !reflect.DeepEqual(indexes, []int{5}) {
		t.Errorf("Expected slots [5], got %v", indexes)
	}
	if got := mustGet(t, mem, "holder_index"); got != `["cosigner:5"]` {
		t.Errorf("Expected only the scanned slot in the index, got %s", got)
	}
}
