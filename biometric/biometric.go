// Package biometric unlocks the vault with a platform biometric challenge
// instead of a typed PIN.
//
// The platform prompt itself lives outside this module. Callers supply a
// Capability; Unlock runs the challenge and, only on success, reads the PIN
// the vault stored for biometric unlock.
package biometric

import (
	"context"
	"errors"
	"fmt"

	"github.com/devdasx/satryn-sub001/vault"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotEnrolled means the device has no biometric enrolled or no PIN
	// was stored for biometric unlock.
	ErrNotEnrolled = errors.New("biometric: not enrolled")

	// ErrRejected means the challenge failed or the user cancelled it.
	ErrRejected = errors.New("biometric: authentication rejected")

	// ErrStalePin means the stored PIN no longer opens the vault. It has
	// been cleared and the user must type the PIN.
	ErrStalePin = errors.New("biometric: stored PIN is stale")
)

// Result is the outcome of a biometric challenge
type Result int

const (
	ResultSuccess Result = iota
	ResultFailed
	ResultCancelled
	ResultLockedOut
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailed:
		return "failed"
	case ResultCancelled:
		return "cancelled"
	case ResultLockedOut:
		return "locked_out"
	default:
		return "unknown"
	}
}

// Capability is the platform biometric prompt
type Capability interface {
	IsEnrolled(ctx context.Context) (bool, error)
	Authenticate(ctx context.Context, prompt string) (Result, error)
}

// Vault is the part of vault.Service biometric unlock needs
type Vault interface {
	HasBiometricPin(ctx context.Context) (bool, error)
	GetPinForBiometrics(ctx context.Context) (string, error)
	VerifyPin(ctx context.Context, pin string) error
	ClearBiometricPin(ctx context.Context) error
}

// PinStorer saves the PIN used for biometric unlock
type PinStorer interface {
	StorePinForBiometrics(ctx context.Context, pin string) error
}

var (
	_ Vault     = (*vault.Service)(nil)
	_ PinStorer = (*vault.Service)(nil)
)

// Unlock runs the biometric challenge and returns the vault PIN.
//
// The stored PIN is never read before the challenge succeeds. A PIN that no
// longer verifies is cleared so the next unlock falls back to typing.
func Unlock(ctx context.Context, bio Capability, v Vault, prompt string) (string, error) {
	enrolled, err := bio.IsEnrolled(ctx)
	if err != nil {
		return "", fmt.Errorf("biometric enrollment check: %w", err)
	}
	if !enrolled {
		return "", ErrNotEnrolled
	}
	stored, err := v.HasBiometricPin(ctx)
	if err != nil {
		return "", err
	}
	if !stored {
		return "", ErrNotEnrolled
	}

	result, err := bio.Authenticate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("biometric challenge: %w", err)
	}
	if result != ResultSuccess {
		log.Info().Str("result", result.String()).Msg("Biometric challenge not passed")
		return "", fmt.Errorf("%w: %s", ErrRejected, result)
	}

	pin, err := v.GetPinForBiometrics(ctx)
	if errors.Is(err, vault.ErrNotFound) {
		return "", ErrNotEnrolled
	}
	if err != nil {
		return "", err
	}

	if err := v.VerifyPin(ctx, pin); err != nil {
		if !errors.Is(err, vault.ErrWrongPin) {
			return "", err
		}
		if cerr := v.ClearBiometricPin(ctx); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to clear stale biometric PIN")
		}
		return "", ErrStalePin
	}
	return pin, nil
}

// Enroll stores pin for biometric unlock after the user passes one
// challenge, so a PIN is never saved for a biometric the user cannot
// present.
func Enroll(ctx context.Context, bio Capability, v PinStorer, pin, prompt string) error {
	enrolled, err := bio.IsEnrolled(ctx)
	if err != nil {
		return fmt.Errorf("biometric enrollment check: %w", err)
	}
	if !enrolled {
		return ErrNotEnrolled
	}
	result, err := bio.Authenticate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("biometric challenge: %w", err)
	}
	if result != ResultSuccess {
		return fmt.Errorf("%w: %s", ErrRejected, result)
	}
	return v.StorePinForBiometrics(ctx, pin)
}
