package vault

import (
	"context"
	"sync/atomic"

	"github.com/devdasx/satryn-sub001/namespace"
	"golang.org/x/sync/errgroup"
)

// maxParallelDeletes bounds concurrent deletes in a bulk wipe
const maxParallelDeletes = 16

// WipeReport summarises a best-effort bulk delete
type WipeReport struct {
	Attempted int
	Failed    int
}

// wipeKeys issues every delete concurrently. Individual failures are
// counted and logged but never stop the wipe: a stray record is unreadable
// once its salt is gone.
func (s *Service) wipeKeys(ctx context.Context, keys []string) WipeReport {
	var (
		failed atomic.Int64
		g      errgroup.Group
	)
	g.SetLimit(maxParallelDeletes)
	for _, key := range keys {
		g.Go(func() error {
			if err := s.del(ctx, key); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	return WipeReport{Attempted: len(keys), Failed: int(failed.Load())}
}

// wipeScopes deletes every key the scopes can own and drops them from the
// holder index.
func (s *Service) wipeScopes(ctx context.Context, scopes ...namespace.Scope) (WipeReport, error) {
	var keys []string
	for _, scope := range scopes {
		scopeKeys, err := namespace.ScopeKeys(scope)
		if err != nil {
			return WipeReport{}, err
		}
		keys = append(keys, scopeKeys...)
	}

	report := s.wipeKeys(ctx, keys)
	if err := s.removeHolders(ctx, scopes...); err != nil {
		s.log.Warn().Err(err).Msg("Failed to update holder index after wipe")
	}
	return report, nil
}

// DeleteAccountData wipes everything stored for an account, metadata
// included.
func (s *Service) DeleteAccountData(ctx context.Context, accountID int) (WipeReport, error) {
	scope := namespace.Account(accountID)
	if err := s.checkScope(scope); err != nil {
		return WipeReport{}, s.track("delete_account_data", err)
	}

	var report WipeReport
	err := s.withHolder(scope, func() error {
		var err error
		report, err = s.wipeScopes(ctx, scope)
		return err
	})
	return report, s.track("delete_account_data", err)
}

// DeleteWalletData wipes everything stored for a wallet
func (s *Service) DeleteWalletData(ctx context.Context, walletID string) (WipeReport, error) {
	scope := namespace.Wallet(walletID)
	if err := s.checkScope(scope); err != nil {
		return WipeReport{}, s.track("delete_wallet_data", err)
	}

	var report WipeReport
	err := s.withHolder(scope, func() error {
		var err error
		report, err = s.wipeScopes(ctx, scope)
		return err
	})
	return report, s.track("delete_wallet_data", err)
}

// DeleteWallet wipes the whole vault: the primary wallet, the PIN anchor,
// the biometric PIN, every holder in the index or the key listing and every
// cosigner slot. It always completes; the report says how many deletes
// failed.
func (s *Service) DeleteWallet(ctx context.Context) WipeReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	scopes := []namespace.Scope{namespace.Legacy()}
	if known, err := s.knownHolders(ctx); err == nil {
		scopes = append(scopes, known...)
	} else {
		s.log.Warn().Err(err).Msg("Holder index unreadable, wiping known slots only")
	}
	for i := 0; i < s.cfg.CosignerCapacity; i++ {
		scopes = append(scopes, namespace.Cosigner(i))
	}

	keys := []string{
		namespace.PinHashKey,
		namespace.BiometricPinKey,
		namespace.KDFSchemeKey,
		namespace.HolderIndexKey,
	}
	seen := make(map[string]struct{})
	for _, scope := range scopes {
		if _, dup := seen[scope.String()]; dup {
			continue
		}
		seen[scope.String()] = struct{}{}
		scopeKeys, err := namespace.ScopeKeys(scope)
		if err != nil {
			continue
		}
		keys = append(keys, scopeKeys...)
	}

	report := s.wipeKeys(ctx, keys)
	s.resetAnchor()
	s.resetIndex()

	s.track("delete_wallet", nil)
	s.log.Info().Int("attempted", report.Attempted).Int("failed", report.Failed).Msg("Vault wiped")
	return report
}
