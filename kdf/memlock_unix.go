//go:build linux || darwin

package kdf

import "golang.org/x/sys/unix"

// Lock pins key material in RAM so it is not written to swap. It is best
// effort: RLIMIT_MEMLOCK may be too small, and the caller keeps going.
func Lock(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mlock(b)
}

// Unlock zeroes the buffer and releases the page lock taken by Lock.
func Unlock(b []byte) {
	Zero(b)
	if len(b) == 0 {
		return
	}
	_ = unix.Munlock(b)
}
