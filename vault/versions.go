package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/devdasx/satryn-sub001/cipher"
	"github.com/devdasx/satryn-sub001/keystore"
	"github.com/devdasx/satryn-sub001/namespace"
)

// VersionRegistry tracks which cipher version produced each record through
// "encversion:{name}" side-car items.
type VersionRegistry struct {
	store keystore.Store
}

// NewVersionRegistry creates a registry over store
func NewVersionRegistry(store keystore.Store) *VersionRegistry {
	return &VersionRegistry{store: store}
}

// GetVersion returns the recorded version of key. An absent marker means
// the record predates versioning and is legacy.
func (r *VersionRegistry) GetVersion(ctx context.Context, key string) (int, error) {
	v, err := r.store.GetItem(ctx, namespace.VersionKey(key))
	if errors.Is(err, keystore.ErrNotFound) {
		return cipher.VersionLegacy, nil
	}
	if err != nil {
		return 0, err
	}

	switch v {
	case "1":
		return cipher.VersionLegacy, nil
	case "2":
		return cipher.VersionAEAD, nil
	default:
		return 0, fmt.Errorf("%w: unknown version marker %q for %s", ErrFormat, v, key)
	}
}

// MarkCurrent records that key now holds a version 2 record
func (r *VersionRegistry) MarkCurrent(ctx context.Context, key string) error {
	return r.store.SetItem(ctx, namespace.VersionKey(key), "2", nil)
}
