package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/devdasx/satryn-sub001/kdf"
	"github.com/devdasx/satryn-sub001/namespace"
)

// secretKinds are the kinds a PIN change has to re-encrypt
var secretKinds = []namespace.Kind{
	namespace.KindSeed,
	namespace.KindPassphrase,
	namespace.KindPrivKey,
	namespace.KindXprv,
	namespace.KindSeedHex,
	namespace.KindDescriptor,
}

// HasPinSet reports whether the global PIN hash exists
func (s *Service) HasPinSet(ctx context.Context) (bool, error) {
	ok, err := s.exists(ctx, namespace.PinHashKey)
	return ok, s.track("has_pin_set", err)
}

// VerifyPin checks pin against the global anchor. When the anchor is
// entirely absent the recovery fallback runs; ErrNotFound then means no PIN
// was ever set.
func (s *Service) VerifyPin(ctx context.Context, pin string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.track("verify_pin", s.verifyPin(ctx, pin))
}

func (s *Service) verifyPin(ctx context.Context, pin string) error {
	s.anchorMu.Lock()
	defer s.anchorMu.Unlock()

	a, err := s.anchorForLocked(ctx, pin)
	if err != nil {
		return err
	}
	switch {
	case a.anchored():
		if !a.verify(pin) {
			return ErrWrongPin
		}
		return nil
	case a.hash != "":
		return fmt.Errorf("%w: PIN hash present without its salt", ErrFormat)
	case a.salt != "":
		return ErrNotFound
	}

	_, err = s.recoverLocked(ctx, pin)
	if errors.Is(err, errNoCandidates) {
		return ErrNotFound
	}
	return err
}

// holderSecrets is one holder's plaintext secrets during a PIN change
type holderSecrets struct {
	scope   namespace.Scope
	secrets map[namespace.Kind]string
	salt    string
	records map[namespace.Kind]string
}

// pinChange remembers what a PIN change is about to overwrite so that a
// failed commit can put every key back.
type pinChange struct {
	s       *Service
	prior   map[string]priorValue
	written []string
}

type priorValue struct {
	value   string
	present bool
}

func (c *pinChange) remember(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		v, err := c.s.get(ctx, key)
		switch {
		case err == nil:
			c.prior[key] = priorValue{value: v, present: true}
		case errors.Is(err, ErrNotFound):
			c.prior[key] = priorValue{}
		default:
			return err
		}
	}
	return nil
}

func (c *pinChange) set(ctx context.Context, key, value string) error {
	if err := c.s.set(ctx, key, value, nil); err != nil {
		return err
	}
	c.written = append(c.written, key)
	return nil
}

// commit writes one holder: records and their markers first, salt last.
func (c *pinChange) commit(ctx context.Context, h *holderSecrets) error {
	for kind, record := range h.records {
		key := namespace.MustKey(kind, h.scope)
		if err := c.set(ctx, key, record); err != nil {
			return err
		}
		c.written = append(c.written, namespace.VersionKey(key))
		c.s.markCurrent(ctx, key)
	}
	return c.set(ctx, namespace.MustKey(namespace.KindSalt, h.scope), h.salt)
}

// rollback restores every written key, newest first.
func (c *pinChange) rollback(ctx context.Context) {
	failed := 0
	for i := len(c.written) - 1; i >= 0; i-- {
		key := c.written[i]
		p := c.prior[key]
		var err error
		if p.present {
			err = c.s.set(ctx, key, p.value, nil)
		} else {
			err = c.s.del(ctx, key)
		}
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		c.s.log.Error().Int("failed", failed).Int("written", len(c.written)).Msg("PIN change rollback incomplete")
		return
	}
	c.s.log.Warn().Int("restored", len(c.written)).Msg("PIN change rolled back")
}

// ChangePin re-keys the whole vault from oldPin to newPin.
//
// Every secret of the primary wallet and of every known holder is decrypted
// under oldPin first, which also flushes pending legacy migrations. Nothing
// is written until all of them have opened. Each holder then gets a fresh
// salt and its records are re-encrypted; the global anchor is written last.
// If any write fails, every key already written is restored and the vault
// stays on oldPin. A stored biometric PIN is replaced with newPin.
func (s *Service) ChangePin(ctx context.Context, oldPin, newPin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track("change_pin", s.changePin(ctx, oldPin, newPin))
}

func (s *Service) changePin(ctx context.Context, oldPin, newPin string) error {
	if newPin == "" {
		return ErrInvalidPin
	}
	if err := s.verifyPin(ctx, oldPin); err != nil {
		return err
	}
	a, err := s.loadAnchor(ctx)
	if err != nil {
		return err
	}

	scopes, err := s.knownHolders(ctx)
	if err != nil {
		return err
	}
	scopes = append([]namespace.Scope{namespace.Legacy()}, scopes...)

	change := &pinChange{s: s, prior: make(map[string]priorValue)}
	if err := change.remember(ctx, namespace.PinHashKey); err != nil {
		return err
	}

	var plan []*holderSecrets
	for _, scope := range scopes {
		h := &holderSecrets{scope: scope, secrets: make(map[namespace.Kind]string)}
		for _, kind := range secretKinds {
			plaintext, err := s.readSecret(ctx, kind, scope, oldPin)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				s.log.Warn().Err(err).Str("holder", scope.String()).Str("kind", string(kind)).Msg("PIN change aborted")
				return err
			}
			h.secrets[kind] = plaintext

			// read after readSecret so a migrated record is what gets restored
			key := namespace.MustKey(kind, scope)
			if err := change.remember(ctx, key, namespace.VersionKey(key)); err != nil {
				return err
			}
		}
		if len(h.secrets) > 0 || scope.Type == namespace.ScopeLegacy {
			if err := change.remember(ctx, namespace.MustKey(namespace.KindSalt, scope)); err != nil {
				return err
			}
			plan = append(plan, h)
		}
	}

	for _, h := range plan {
		if h.salt, err = kdf.NewSalt(); err != nil {
			return err
		}
		h.records = make(map[namespace.Kind]string, len(h.secrets))
		for kind, plaintext := range h.secrets {
			if h.records[kind], err = s.seal(plaintext, newPin, h.salt, a.deriver); err != nil {
				return err
			}
		}
	}

	if err := s.commitPinChange(ctx, change, plan, newPin); err != nil {
		change.rollback(ctx)
		s.resetAnchor()
		return err
	}

	hasBiometric, err := s.exists(ctx, namespace.BiometricPinKey)
	if err == nil && hasBiometric {
		err = s.set(ctx, namespace.BiometricPinKey, newPin, &s.cfg.BiometricPolicy)
	}
	if err != nil {
		// the PIN change itself stands; a stale copy would unlock nothing
		s.log.Warn().Err(err).Msg("Failed to replace biometric PIN, clearing it")
		_ = s.del(ctx, namespace.BiometricPinKey)
	}

	s.log.Info().Int("holders", len(plan)).Bool("biometric", hasBiometric).Msg("PIN changed")
	return nil
}

// commitPinChange writes holders other than the primary first, then the
// primary whose salt is the global salt, then the PIN hash.
func (s *Service) commitPinChange(ctx context.Context, change *pinChange, plan []*holderSecrets, newPin string) error {
	var primary *holderSecrets
	for _, h := range plan {
		if h.scope.Type == namespace.ScopeLegacy {
			primary = h
			continue
		}
		if err := change.commit(ctx, h); err != nil {
			return err
		}
	}
	if err := change.commit(ctx, primary); err != nil {
		return err
	}

	s.anchorMu.Lock()
	defer s.anchorMu.Unlock()
	s.anchor = nil
	return change.set(ctx, namespace.PinHashKey, kdf.PinHash(newPin, primary.salt))
}

// StorePinForBiometrics keeps a copy of pin for biometric unlock under the
// configured access policy. The PIN must match the anchor when one exists.
func (s *Service) StorePinForBiometrics(ctx context.Context, pin string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pin == "" {
		return s.track("store_biometric_pin", ErrInvalidPin)
	}
	if _, err := s.checkPin(ctx, pin); err != nil {
		return s.track("store_biometric_pin", err)
	}
	return s.track("store_biometric_pin", s.set(ctx, namespace.BiometricPinKey, pin, &s.cfg.BiometricPolicy))
}

// GetPinForBiometrics returns the stored PIN copy. Callers must have passed
// a biometric challenge first; the vault never invokes the sensor itself.
func (s *Service) GetPinForBiometrics(ctx context.Context) (string, error) {
	pin, err := s.get(ctx, namespace.BiometricPinKey)
	return pin, s.track("get_biometric_pin", err)
}

// HasBiometricPin reports whether a biometric PIN copy exists
func (s *Service) HasBiometricPin(ctx context.Context) (bool, error) {
	return s.exists(ctx, namespace.BiometricPinKey)
}

// ClearBiometricPin removes the biometric PIN copy
func (s *Service) ClearBiometricPin(ctx context.Context) error {
	return s.track("clear_biometric_pin", s.del(ctx, namespace.BiometricPinKey))
}
