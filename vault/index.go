package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/devdasx/satryn-sub001/keystore"
	"github.com/devdasx/satryn-sub001/namespace"
	"golang.org/x/sync/errgroup"
)

// The holder index is a JSON list of scope strings stored under
// holder_index. It makes cosigner membership an O(1) lookup and lets a PIN
// change find every holder without scanning the keystore. Vaults written
// before the index existed get it rebuilt from a key listing when the
// backend can list, and from the cosigner slots otherwise. Holders the
// rebuild cannot see are added the first time one of their secrets opens.

func (s *Service) loadIndexLocked(ctx context.Context) (map[string]namespace.Scope, error) {
	if s.index != nil {
		return s.index, nil
	}

	raw, err := s.get(ctx, namespace.HolderIndexKey)
	switch {
	case err == nil:
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			return nil, fmt.Errorf("%w: holder index: %v", ErrFormat, err)
		}
		index := make(map[string]namespace.Scope, len(names))
		for _, name := range names {
			scope, err := namespace.ParseScope(name)
			if err != nil {
				s.log.Warn().Str("holder", name).Msg("Skipping unparseable holder index entry")
				continue
			}
			index[name] = scope
		}
		s.index = index

	case errors.Is(err, ErrNotFound):
		index, listed := s.listHolders(ctx)
		if !listed {
			if index, err = s.findCosigners(ctx); err != nil {
				return nil, err
			}
		}
		s.index = index
		if err := s.saveIndexLocked(ctx); err != nil {
			return nil, err
		}
		if len(index) > 0 {
			s.log.Info().Int("holders", len(index)).Bool("listed", listed).Msg("Rebuilt holder index")
		}

	default:
		return nil, err
	}
	return s.index, nil
}

// listHolders collects the holders the backend's key listing shows. An
// account or wallet counts when any of its keys exists, its salt included;
// a cosigner slot only when it holds a seed. ok is false when the backend
// cannot list.
func (s *Service) listHolders(ctx context.Context) (map[string]namespace.Scope, bool) {
	lister, ok := s.store.(keystore.Lister)
	if !ok {
		return nil, false
	}
	keys, err := lister.ListKeys(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Keystore listing failed")
		return nil, false
	}

	found := make(map[string]namespace.Scope)
	for _, key := range keys {
		kind, scope, ok := namespace.ParseKey(key)
		if !ok || scope.Type == namespace.ScopeLegacy {
			continue
		}
		if scope.Type == namespace.ScopeCosigner && kind != namespace.KindSeed {
			continue
		}
		if s.checkScope(scope) != nil {
			continue
		}
		found[scope.String()] = scope
	}
	return found, true
}

func (s *Service) findCosigners(ctx context.Context) (map[string]namespace.Scope, error) {
	var (
		mu    sync.Mutex
		found = make(map[string]namespace.Scope)
		g     errgroup.Group
	)
	for i := 0; i < s.cfg.CosignerCapacity; i++ {
		scope := namespace.Cosigner(i)
		g.Go(func() error {
			ok, err := s.exists(ctx, namespace.MustKey(namespace.KindSeed, scope))
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				found[scope.String()] = scope
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

func (s *Service) saveIndexLocked(ctx context.Context) error {
	names := make([]string, 0, len(s.index))
	for name := range s.index {
		names = append(names, name)
	}
	sort.Strings(names)

	raw, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return s.set(ctx, namespace.HolderIndexKey, string(raw), nil)
}

func (s *Service) addHolder(ctx context.Context, scope namespace.Scope) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	index, err := s.loadIndexLocked(ctx)
	if err != nil {
		return err
	}
	if _, ok := index[scope.String()]; ok {
		return nil
	}
	index[scope.String()] = scope
	return s.saveIndexLocked(ctx)
}

func (s *Service) removeHolders(ctx context.Context, scopes ...namespace.Scope) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	index, err := s.loadIndexLocked(ctx)
	if err != nil {
		return err
	}
	changed := false
	for _, scope := range scopes {
		if _, ok := index[scope.String()]; ok {
			delete(index, scope.String())
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveIndexLocked(ctx)
}

func (s *Service) hasHolder(ctx context.Context, scope namespace.Scope) (bool, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	index, err := s.loadIndexLocked(ctx)
	if err != nil {
		return false, err
	}
	_, ok := index[scope.String()]
	return ok, nil
}

// holders returns the indexed holders of one scope type, or of every type
// when types is empty, in a stable order.
func (s *Service) holders(ctx context.Context, types ...namespace.ScopeType) ([]namespace.Scope, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	index, err := s.loadIndexLocked(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]namespace.Scope, 0, len(index))
	for _, scope := range index {
		if len(types) == 0 || containsType(types, scope.Type) {
			out = append(out, scope)
		}
	}
	sort.Slice(out, func(i, j int) bool { return scopeLess(out[i], out[j]) })
	return out, nil
}

// knownHolders is holders plus anything the key listing shows that the
// index missed. Newly seen holders are added to the index. The vault-wide
// operations use it so a stale index cannot hide a holder from them.
func (s *Service) knownHolders(ctx context.Context) ([]namespace.Scope, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	index, err := s.loadIndexLocked(ctx)
	if err != nil {
		return nil, err
	}
	if listed, ok := s.listHolders(ctx); ok {
		added := 0
		for name, scope := range listed {
			if _, ok := index[name]; !ok {
				index[name] = scope
				added++
			}
		}
		if added > 0 {
			s.log.Info().Int("holders", added).Msg("Found holders missing from the index")
			if err := s.saveIndexLocked(ctx); err != nil {
				s.log.Warn().Err(err).Msg("Failed to save holder index")
			}
		}
	}

	out := make([]namespace.Scope, 0, len(index))
	for _, scope := range index {
		out = append(out, scope)
	}
	sort.Slice(out, func(i, j int) bool { return scopeLess(out[i], out[j]) })
	return out, nil
}

func (s *Service) resetIndex() {
	s.indexMu.Lock()
	s.index = nil
	s.indexMu.Unlock()
}

func containsType(types []namespace.ScopeType, t namespace.ScopeType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

func scopeLess(a, b namespace.Scope) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	switch a.Type {
	case namespace.ScopeAccount:
		return a.Account < b.Account
	case namespace.ScopeWallet:
		return a.WalletID < b.WalletID
	default:
		return a.Index < b.Index
	}
}
