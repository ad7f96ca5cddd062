package vault

import (
	"context"
	"sort"
	"sync"

	"github.com/devdasx/satryn-sub001/namespace"
	"golang.org/x/sync/errgroup"
)

// maxParallelReads bounds concurrent keystore reads in bulk operations
const maxParallelReads = 8

// CosignerSeed is a multisig cosigner mnemonic held on this device
type CosignerSeed struct {
	Index int    `json:"index"`
	Seed  string `json:"seed"`
}

// StoreLocalCosignerSeed imports a cosigner seed into slot index
func (s *Service) StoreLocalCosignerSeed(ctx context.Context, index int, mnemonic, pin string) error {
	return s.storeSecret(ctx, "store_cosigner_seed", namespace.KindSeed, namespace.Cosigner(index), mnemonic, pin)
}

// RetrieveLocalCosignerSeed decrypts the seed in slot index
func (s *Service) RetrieveLocalCosignerSeed(ctx context.Context, index int, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_cosigner_seed", namespace.KindSeed, namespace.Cosigner(index), pin)
}

// RetrieveAllLocalCosignerSeeds reads every occupied slot concurrently.
// Slots that fail to open are left out; the result is sorted by index.
func (s *Service) RetrieveAllLocalCosignerSeeds(ctx context.Context, pin string) ([]CosignerSeed, error) {
	seeds, err := s.retrieveAllCosigners(ctx, pin)
	return seeds, s.track("retrieve_all_cosigner_seeds", err)
}

func (s *Service) retrieveAllCosigners(ctx context.Context, pin string) ([]CosignerSeed, error) {
	if _, err := s.checkPin(ctx, pin); err != nil {
		return nil, err
	}
	slots, err := s.holders(ctx, namespace.ScopeCosigner)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		seeds = make([]CosignerSeed, 0, len(slots))
		g     errgroup.Group
	)
	g.SetLimit(maxParallelReads)
	for _, scope := range slots {
		g.Go(func() error {
			var seed string
			err := s.withHolder(scope, func() error {
				var err error
				seed, err = s.readSecret(ctx, namespace.KindSeed, scope, pin)
				return err
			})
			if err != nil {
				s.log.Debug().Err(err).Int("index", scope.Index).Msg("Skipping cosigner slot")
				return nil
			}
			mu.Lock()
			seeds = append(seeds, CosignerSeed{Index: scope.Index, Seed: seed})
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	sort.Slice(seeds, func(i, j int) bool { return seeds[i].Index < seeds[j].Index })
	return seeds, nil
}

// HasLocalCosignerSeed answers from the holder index without touching the
// slot itself.
func (s *Service) HasLocalCosignerSeed(ctx context.Context, index int) (bool, error) {
	scope := namespace.Cosigner(index)
	if err := s.checkScope(scope); err != nil {
		return false, err
	}
	return s.hasHolder(ctx, scope)
}

// LocalCosignerIndexes lists the occupied cosigner slots in order
func (s *Service) LocalCosignerIndexes(ctx context.Context) ([]int, error) {
	slots, err := s.holders(ctx, namespace.ScopeCosigner)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(slots))
	for i, scope := range slots {
		out[i] = scope.Index
	}
	return out, nil
}

// DeleteLocalCosignerSeed wipes one slot, demoting that cosigner to
// watch-only. Only re-import brings it back.
func (s *Service) DeleteLocalCosignerSeed(ctx context.Context, index int) (WipeReport, error) {
	scope := namespace.Cosigner(index)
	if err := s.checkScope(scope); err != nil {
		return WipeReport{}, s.track("delete_cosigner_seed", err)
	}

	var report WipeReport
	err := s.withHolder(scope, func() error {
		var err error
		report, err = s.wipeScopes(ctx, scope)
		return err
	})
	return report, s.track("delete_cosigner_seed", err)
}

// DeleteAllLocalCosignerSeeds wipes every slot up to the configured
// capacity, indexed or not.
func (s *Service) DeleteAllLocalCosignerSeeds(ctx context.Context) (WipeReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scopes := make([]namespace.Scope, s.cfg.CosignerCapacity)
	for i := range scopes {
		scopes[i] = namespace.Cosigner(i)
	}
	report, err := s.wipeScopes(ctx, scopes...)
	return report, s.track("delete_all_cosigner_seeds", err)
}
