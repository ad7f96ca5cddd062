package vault

import (
	"errors"
	"fmt"

	"github.com/devdasx/satryn-sub001/namespace"
)

// Every error returned by Service matches one of these with errors.Is.
var (
	// ErrNotFound means nothing is stored for the requested secret.
	ErrNotFound = errors.New("vault: not found")

	// ErrWrongPin covers a PIN hash mismatch, an AEAD authentication failure
	// and an implausible legacy decode. Callers are never told which.
	ErrWrongPin = errors.New("vault: incorrect PIN")

	// ErrWrongPassword is the backup flavour of ErrWrongPin.
	ErrWrongPassword = fmt.Errorf("%w: wrong backup password", ErrWrongPin)

	// ErrFormat means stored data is corrupt, not that the PIN is wrong.
	ErrFormat = errors.New("vault: malformed record")

	// ErrChecksumMismatch means a backup file failed its integrity check.
	// It is raised before any decryption is attempted.
	ErrChecksumMismatch = errors.New("vault: backup checksum mismatch")

	// ErrStorage hides keystore failures. The underlying error is logged
	// and never returned.
	ErrStorage = errors.New("vault: storage unavailable")

	// ErrInvalidScope is returned for holders outside the supported domain.
	ErrInvalidScope = namespace.ErrInvalidScope

	// ErrInvalidPin rejects an empty PIN.
	ErrInvalidPin = errors.New("vault: PIN must not be empty")
)

// UserMessage collapses an error to the text shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrChecksumMismatch):
		return "Backup file is corrupted"
	case errors.Is(err, ErrWrongPassword):
		return "Incorrect backup password"
	case errors.Is(err, ErrWrongPin), errors.Is(err, ErrFormat):
		return "Incorrect PIN"
	case errors.Is(err, ErrNotFound):
		return "No wallet data found"
	case errors.Is(err, ErrInvalidPin):
		return "PIN must not be empty"
	default:
		return "Something went wrong. Please try again."
	}
}
