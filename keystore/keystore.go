// Package keystore defines the persistent string store the vault is layered
// on, plus the backends and decorators that implement it.
package keystore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by GetItem when the key holds no value.
	ErrNotFound = errors.New("keystore: item not found")

	// ErrPolicyUnsupported is returned when a backend cannot honour the
	// requested access policy.
	ErrPolicyUnsupported = errors.New("keystore: access policy not supported by backend")
)

// AccessPolicy controls where and when an item is readable.
type AccessPolicy struct {
	// ThisDeviceOnlyWhenUnlocked keeps the item on this device and makes it
	// unreadable while the device is locked. Such items are never synced or
	// included in device backups.
	ThisDeviceOnlyWhenUnlocked bool
}

// DeviceOnly is the policy used for the biometric PIN copy.
var DeviceOnly = &AccessPolicy{ThisDeviceOnlyWhenUnlocked: true}

// Store is an atomic get/set/delete string store.
//
// Implementations propagate their own timeout and cancellation behaviour
// through ctx. Deleting an absent key is not an error.
type Store interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string, policy *AccessPolicy) error
	DeleteItem(ctx context.Context, key string) error
}

// Lister is implemented by backends that can enumerate their keys. The
// vault uses it to find holders written before it kept an index.
type Lister interface {
	ListKeys(ctx context.Context) ([]string, error)
}

func deviceOnly(policy *AccessPolicy) bool {
	return policy != nil && policy.ThisDeviceOnlyWhenUnlocked
}
