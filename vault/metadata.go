package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/devdasx/satryn-sub001/namespace"
)

// AccountMetadata is the non-secret description of an account. It is
// stored in plaintext and is what metadata backups carry.
type AccountMetadata struct {
	AccountID      int               `json:"accountId"`
	Name           string            `json:"name,omitempty"`
	Type           string            `json:"type,omitempty"`
	Xpubs          map[string]string `json:"xpubs,omitempty"`
	Descriptor     string            `json:"descriptor,omitempty"`
	WatchAddresses []string          `json:"watchAddresses,omitempty"`
	Multisig       *MultisigConfig   `json:"multisig,omitempty"`
}

// MultisigConfig describes an m-of-n wallet
type MultisigConfig struct {
	Threshold int            `json:"threshold"`
	Cosigners []CosignerInfo `json:"cosigners"`
}

// CosignerInfo is the public side of a cosigner. LocalIndex is set when the
// cosigner seed lives in this vault.
type CosignerInfo struct {
	Name           string `json:"name,omitempty"`
	Fingerprint    string `json:"fingerprint"`
	Xpub           string `json:"xpub"`
	DerivationPath string `json:"derivationPath,omitempty"`
	LocalIndex     *int   `json:"localIndex,omitempty"`
}

// Validate checks the structural invariants of the metadata
func (m *AccountMetadata) Validate() error {
	if m.AccountID < 0 {
		return fmt.Errorf("%w: negative account id %d", ErrInvalidScope, m.AccountID)
	}
	if ms := m.Multisig; ms != nil {
		if ms.Threshold < 1 || ms.Threshold > len(ms.Cosigners) {
			return fmt.Errorf("%w: threshold %d of %d cosigners", ErrFormat, ms.Threshold, len(ms.Cosigners))
		}
	}
	return nil
}

// StoreAccountMetadata saves non-secret account data. No PIN is involved.
func (s *Service) StoreAccountMetadata(ctx context.Context, meta AccountMetadata) error {
	if err := meta.Validate(); err != nil {
		return s.track("store_account_metadata", err)
	}
	scope := namespace.Account(meta.AccountID)

	err := s.withHolder(scope, func() error {
		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := s.set(ctx, namespace.MustKey(namespace.KindMetadata, scope), string(raw), nil); err != nil {
			return err
		}
		return s.addHolder(ctx, scope)
	})
	return s.track("store_account_metadata", err)
}

// AccountMetadata loads the metadata of one account
func (s *Service) AccountMetadata(ctx context.Context, accountID int) (*AccountMetadata, error) {
	scope := namespace.Account(accountID)
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.loadMetadata(ctx, scope)
}

func (s *Service) loadMetadata(ctx context.Context, scope namespace.Scope) (*AccountMetadata, error) {
	raw, err := s.get(ctx, namespace.MustKey(namespace.KindMetadata, scope))
	if err != nil {
		return nil, err
	}
	var meta AccountMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("%w: account metadata: %v", ErrFormat, err)
	}
	return &meta, nil
}

// ListAccountMetadata returns the metadata of every indexed account, sorted
// by account id. Accounts without metadata are skipped.
func (s *Service) ListAccountMetadata(ctx context.Context) ([]AccountMetadata, error) {
	accounts, err := s.holders(ctx, namespace.ScopeAccount)
	if err != nil {
		return nil, err
	}

	out := make([]AccountMetadata, 0, len(accounts))
	for _, scope := range accounts {
		meta, err := s.loadMetadata(ctx, scope)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *meta)
	}
	return out, nil
}
