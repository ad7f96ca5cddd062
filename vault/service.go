// Package vault is the encrypted secrets vault of the wallet.
//
// A Service layers PIN-gated encryption, version tracking, legacy migration
// and per-holder namespacing on top of a keystore.Store. Secrets are held
// by one of four kinds of holder (the legacy singleton wallet, numbered
// accounts, string-keyed wallets and multisig cosigner slots). Each holder
// has its own salt; one global PIN anchor (encryption_salt + pin_hash)
// gates every holder.
package vault

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devdasx/satryn-sub001/cipher"
	"github.com/devdasx/satryn-sub001/kdf"
	"github.com/devdasx/satryn-sub001/keystore"
	"github.com/devdasx/satryn-sub001/namespace"
	"github.com/rs/zerolog"
)

// Service is the vault façade. It is safe for concurrent use.
type Service struct {
	store    keystore.Store
	cfg      Config
	versions *VersionRegistry
	log      zerolog.Logger
	metrics  *Metrics
	now      func() time.Time

	// mu is held shared by per-holder operations and exclusively by
	// ChangePin and DeleteWallet
	mu    sync.RWMutex
	locks *keyMutex

	// anchorMu guards the cached global PIN anchor
	anchorMu sync.Mutex
	anchor   *anchor

	// indexMu guards the cached holder index
	indexMu sync.Mutex
	index   map[string]namespace.Scope
}

// New creates a Service over store.
//
// The Service caches the PIN anchor and the holder index. A PIN check that
// fails against the cached anchor rereads it, so a PIN changed through
// another Service is picked up, but the index cache assumes this Service is
// the only writer of new holders. Vault-wide operations reconcile it with a
// key listing when the backend supports one.
func New(store keystore.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cfg:      cfg.withDefaults(),
		versions: NewVersionRegistry(store),
		log:      defaultLogger(),
		now:      time.Now,
		locks:    newKeyMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.cfg
}

// Versions exposes the version registry
func (s *Service) Versions() *VersionRegistry {
	return s.versions
}

// ===============================
// Keystore access
// ===============================

// get maps a missing item to ErrNotFound and any other keystore failure to
// ErrStorage after logging it.
func (s *Service) get(ctx context.Context, key string) (string, error) {
	v, err := s.store.GetItem(ctx, key)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, keystore.ErrNotFound) {
		return "", ErrNotFound
	}
	s.log.Error().Err(err).Str("key", key).Msg("Keystore read failed")
	return "", ErrStorage
}

func (s *Service) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) set(ctx context.Context, key, value string, policy *keystore.AccessPolicy) error {
	if err := s.store.SetItem(ctx, key, value, policy); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Keystore write failed")
		return ErrStorage
	}
	return nil
}

func (s *Service) del(ctx context.Context, key string) error {
	if err := s.store.DeleteItem(ctx, key); err != nil && !errors.Is(err, keystore.ErrNotFound) {
		s.log.Warn().Err(err).Str("key", key).Msg("Keystore delete failed")
		return ErrStorage
	}
	return nil
}

func (s *Service) markCurrent(ctx context.Context, key string) {
	if err := s.versions.MarkCurrent(ctx, key); err != nil {
		// the record itself carries its version tag, so a missing marker
		// is repaired on the next read
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to write version marker")
	}
}

// ===============================
// PIN anchor
// ===============================

// anchor is the global PIN verification pair plus the KDF scheme in force.
type anchor struct {
	salt    string
	hash    string
	deriver kdf.Deriver
}

func (a *anchor) anchored() bool {
	return a.salt != "" && a.hash != ""
}

func (a *anchor) verify(pin string) bool {
	return subtle.ConstantTimeCompare([]byte(kdf.PinHash(pin, a.salt)), []byte(a.hash)) == 1
}

func (s *Service) loadAnchor(ctx context.Context) (*anchor, error) {
	s.anchorMu.Lock()
	defer s.anchorMu.Unlock()
	return s.loadAnchorLocked(ctx)
}

func (s *Service) loadAnchorLocked(ctx context.Context) (*anchor, error) {
	if s.anchor != nil {
		return s.anchor, nil
	}

	a := &anchor{}
	var err error
	if a.hash, err = s.get(ctx, namespace.PinHashKey); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if a.salt, err = s.get(ctx, namespace.MustKey(namespace.KindSalt, namespace.Legacy())); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	scheme, err := s.get(ctx, namespace.KDFSchemeKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if a.deriver, err = kdf.ForScheme(scheme); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	s.anchor = a
	return a, nil
}

func (s *Service) resetAnchor() {
	s.anchorMu.Lock()
	s.anchor = nil
	s.anchorMu.Unlock()
}

// anchorForLocked is loadAnchorLocked for a caller about to check pin. A
// cached anchor that is unanchored or rejects pin is reread once, since
// another Service over the same store may have set or changed the PIN.
func (s *Service) anchorForLocked(ctx context.Context, pin string) (*anchor, error) {
	cached := s.anchor != nil
	a, err := s.loadAnchorLocked(ctx)
	if err != nil || !cached || (a.anchored() && a.verify(pin)) {
		return a, err
	}
	s.anchor = nil
	return s.loadAnchorLocked(ctx)
}

// checkPin verifies pin against the global anchor when one exists.
func (s *Service) checkPin(ctx context.Context, pin string) (*anchor, error) {
	s.anchorMu.Lock()
	a, err := s.anchorForLocked(ctx, pin)
	s.anchorMu.Unlock()
	if err != nil {
		return nil, err
	}
	if a.anchored() && !a.verify(pin) {
		return nil, ErrWrongPin
	}
	return a, nil
}

// ensureAnchor makes sure pin is the vault PIN before anything is written
// under it. An anchored vault verifies; an unanchored one is claimed by the
// first writer. Concurrent first writers serialise on anchorMu, so a second
// writer with a different PIN is rejected instead of silently forking the
// vault.
func (s *Service) ensureAnchor(ctx context.Context, pin string) (*anchor, error) {
	s.anchorMu.Lock()
	defer s.anchorMu.Unlock()

	a, err := s.anchorForLocked(ctx, pin)
	if err != nil {
		return nil, err
	}
	if a.anchored() {
		if !a.verify(pin) {
			return nil, ErrWrongPin
		}
		return a, nil
	}
	if a.hash != "" {
		return nil, fmt.Errorf("%w: PIN hash present without its salt", ErrFormat)
	}

	fresh := false
	salt := a.salt
	if salt == "" {
		recovered, err := s.recoverLocked(ctx, pin)
		if err == nil {
			return recovered, nil
		}
		if !errors.Is(err, errNoCandidates) {
			return nil, err
		}
		if salt, err = kdf.NewSalt(); err != nil {
			return nil, err
		}
		fresh = true
	} else if err := s.checkPrimaryLocked(ctx, pin, salt, a.deriver); err != nil {
		// the salt survived but the hash did not; an existing primary seed
		// must open under pin before pin becomes the anchor
		return nil, err
	}

	claimed := &anchor{salt: salt, hash: kdf.PinHash(pin, salt), deriver: a.deriver}
	if fresh {
		if claimed.deriver, err = kdf.ForScheme(string(s.cfg.KDF)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		if err := s.set(ctx, namespace.KDFSchemeKey, string(s.cfg.KDF), nil); err != nil {
			return nil, err
		}
		if err := s.set(ctx, namespace.MustKey(namespace.KindSalt, namespace.Legacy()), salt, nil); err != nil {
			return nil, err
		}
	}
	if err := s.set(ctx, namespace.PinHashKey, claimed.hash, nil); err != nil {
		return nil, err
	}

	s.log.Info().Bool("fresh", fresh).Str("kdf", string(claimed.deriver.Scheme())).Msg("PIN anchor established")
	s.anchor = claimed
	return claimed, nil
}

// checkPrimaryLocked opens the primary seed, if there is one, under pin.
func (s *Service) checkPrimaryLocked(ctx context.Context, pin, salt string, d kdf.Deriver) error {
	raw, err := s.get(ctx, namespace.MustKey(namespace.KindSeed, namespace.Legacy()))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rec, err := cipher.ParseRecord(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	_, err = s.decode(namespace.KindSeed, rec, pin, salt, d)
	return err
}

// ===============================
// Read / write protocol
// ===============================

// checkScope applies the limits namespace cannot know about.
func (s *Service) checkScope(scope namespace.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if scope.Type == namespace.ScopeCosigner && scope.Index >= s.cfg.CosignerCapacity {
		return fmt.Errorf("%w: cosigner index %d exceeds capacity %d", ErrInvalidScope, scope.Index, s.cfg.CosignerCapacity)
	}
	return nil
}

// readSecret runs the read protocol: load, verify, decode by version,
// migrate legacy records, return. Callers hold the holder lock or the
// exclusive service lock.
func (s *Service) readSecret(ctx context.Context, kind namespace.Kind, scope namespace.Scope, pin string) (string, error) {
	if err := s.checkScope(scope); err != nil {
		return "", err
	}
	key := namespace.MustKey(kind, scope)

	raw, err := s.get(ctx, key)
	if err != nil {
		return "", err
	}
	salt, err := s.get(ctx, namespace.MustKey(namespace.KindSalt, scope))
	if err != nil {
		return "", err
	}

	a, err := s.checkPin(ctx, pin)
	if err != nil {
		return "", err
	}

	version, err := s.versions.GetVersion(ctx, key)
	if err != nil {
		if errors.Is(err, ErrFormat) {
			return "", err
		}
		s.log.Error().Err(err).Str("key", key).Msg("Failed to read version marker")
		return "", ErrStorage
	}

	rec, err := cipher.ParseRecord(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFormat, key, err)
	}
	if version == cipher.VersionAEAD && rec.Version() == cipher.VersionLegacy {
		return "", fmt.Errorf("%w: %s is marked current but holds a legacy payload", ErrFormat, key)
	}

	plaintext, err := s.decode(kind, rec, pin, salt, a.deriver)
	if err != nil {
		return "", err
	}

	switch {
	case rec.Version() == cipher.VersionLegacy:
		s.migrate(ctx, kind, key, plaintext, pin, salt, a.deriver)
	case version != cipher.VersionAEAD:
		s.markCurrent(ctx, key)
	}

	if scope.Type != namespace.ScopeLegacy {
		if err := s.addHolder(ctx, scope); err != nil {
			s.log.Warn().Err(err).Str("holder", scope.String()).Msg("Failed to index holder")
		}
	}
	return plaintext, nil
}

// decode opens a parsed record. It never writes.
func (s *Service) decode(kind namespace.Kind, rec cipher.Record, pin, salt string, d kdf.Deriver) (string, error) {
	switch r := rec.(type) {
	case *cipher.AEADRecord:
		key := d.DeriveKey(pin, salt)
		_ = kdf.Lock(key)
		defer kdf.Unlock(key)

		plaintext, err := r.Open(key)
		if errors.Is(err, cipher.ErrAuthentication) {
			return "", ErrWrongPin
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return string(plaintext), nil

	case *cipher.LegacyRecord:
		plaintext, err := cipher.LegacyDecrypt(r.String(), cipher.LegacyKey(pin, salt))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrFormat, err)
		}
		if !plausible(kind, plaintext) {
			return "", ErrWrongPin
		}
		return plaintext, nil

	default:
		return "", fmt.Errorf("%w: unsupported record version %d", ErrFormat, rec.Version())
	}
}

// migrate rewrites a legacy record with the current cipher. Failures are
// logged and swallowed; the caller already has its plaintext and the next
// read simply tries again.
func (s *Service) migrate(ctx context.Context, kind namespace.Kind, key, plaintext, pin, salt string, d kdf.Deriver) {
	record, err := s.seal(plaintext, pin, salt, d)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Legacy migration failed")
		return
	}
	if err := s.set(ctx, key, record, nil); err != nil {
		return
	}
	s.markCurrent(ctx, key)
	s.metrics.migration(string(kind))
	s.log.Info().Str("key", key).Msg("Migrated legacy record to current cipher")
}

func (s *Service) seal(plaintext, pin, salt string, d kdf.Deriver) (string, error) {
	key := d.DeriveKey(pin, salt)
	_ = kdf.Lock(key)
	defer kdf.Unlock(key)
	return cipher.Encrypt([]byte(plaintext), key)
}

// writeSecret runs the write protocol. Callers hold the holder lock.
func (s *Service) writeSecret(ctx context.Context, kind namespace.Kind, scope namespace.Scope, pin, value string) error {
	if err := s.checkScope(scope); err != nil {
		return err
	}
	if pin == "" {
		return ErrInvalidPin
	}

	a, err := s.ensureAnchor(ctx, pin)
	if err != nil {
		return err
	}
	salt, err := s.ensureSalt(ctx, scope)
	if err != nil {
		return err
	}

	record, err := s.seal(value, pin, salt, a.deriver)
	if err != nil {
		s.log.Error().Err(err).Msg("Encryption failed")
		return err
	}
	key := namespace.MustKey(kind, scope)
	if err := s.set(ctx, key, record, nil); err != nil {
		return err
	}
	s.markCurrent(ctx, key)

	if scope.Type != namespace.ScopeLegacy {
		return s.addHolder(ctx, scope)
	}
	return nil
}

// ensureSalt returns the holder salt, generating it on first use. Salts
// only change on an explicit PIN change.
func (s *Service) ensureSalt(ctx context.Context, scope namespace.Scope) (string, error) {
	key := namespace.MustKey(namespace.KindSalt, scope)
	salt, err := s.get(ctx, key)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	if salt, err = kdf.NewSalt(); err != nil {
		return "", err
	}
	if err := s.set(ctx, key, salt, nil); err != nil {
		return "", err
	}
	return salt, nil
}

// ===============================
// Operation wrappers
// ===============================

// withHolder serialises fn against other operations on the same holder
func (s *Service) withHolder(scope namespace.Scope, fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := scope.String()
	s.locks.Lock(name)
	defer s.locks.Unlock(name)
	return fn()
}

func (s *Service) track(op string, err error) error {
	s.metrics.operation(op, err)
	return err
}

func (s *Service) storeSecret(ctx context.Context, op string, kind namespace.Kind, scope namespace.Scope, value, pin string) error {
	err := s.withHolder(scope, func() error {
		return s.writeSecret(ctx, kind, scope, pin, value)
	})
	if err == nil {
		s.log.Debug().Str("op", op).Str("holder", scope.String()).Msg("Secret stored")
	}
	return s.track(op, err)
}

func (s *Service) retrieveSecret(ctx context.Context, op string, kind namespace.Kind, scope namespace.Scope, pin string) (string, error) {
	var plaintext string
	err := s.withHolder(scope, func() error {
		var err error
		plaintext, err = s.readSecret(ctx, kind, scope, pin)
		return err
	})
	if errors.Is(err, ErrWrongPin) {
		s.log.Warn().Str("op", op).Str("holder", scope.String()).Msg("PIN rejected")
	}
	return plaintext, s.track(op, err)
}
