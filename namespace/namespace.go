// Package namespace maps logical secrets to physical keystore keys.
//
// Every function here is pure. The same (Kind, Scope) pair always yields the
// same key, distinct pairs never collide, and no other package builds key
// strings by hand. The names are a stable on-disk contract.
package namespace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type of value stored under a key.
type Kind string

const (
	KindSeed       Kind = "seed"
	KindPassphrase Kind = "passphrase"
	KindPrivKey    Kind = "privkey"
	KindXprv       Kind = "xprv"
	KindSeedHex    Kind = "seedhex"
	KindDescriptor Kind = "descriptor"
	KindSalt       Kind = "salt"
	KindMetadata   Kind = "metadata"
)

// Kinds lists every supported kind.
var Kinds = []Kind{
	KindSeed, KindPassphrase, KindPrivKey, KindXprv,
	KindSeedHex, KindDescriptor, KindSalt, KindMetadata,
}

// Fixed keys outside the (kind, scope) grid.
const (
	PinHashKey      = "pin_hash"
	BiometricPinKey = "biometric_pin"
	KDFSchemeKey    = "kdf_scheme"
	HolderIndexKey  = "holder_index"

	versionPrefix = "encversion:"
)

// ScopeType identifies who holds a secret.
type ScopeType int

const (
	ScopeLegacy ScopeType = iota
	ScopeAccount
	ScopeWallet
	ScopeCosigner
)

func (t ScopeType) String() string {
	switch t {
	case ScopeLegacy:
		return "legacy"
	case ScopeAccount:
		return "account"
	case ScopeWallet:
		return "wallet"
	case ScopeCosigner:
		return "cosigner"
	default:
		return "unknown"
	}
}

// ErrInvalidScope is returned for scopes outside the documented domain.
var ErrInvalidScope = errors.New("invalid secret scope")

// Scope is a secret holder: the legacy singleton wallet, a numbered
// account, a string-keyed wallet or a multisig cosigner slot.
type Scope struct {
	Type     ScopeType
	Account  int
	WalletID string
	Index    int
}

func Legacy() Scope { return Scope{Type: ScopeLegacy} }
func Account(id int) Scope { return Scope{Type: ScopeAccount, Account: id} }
func Wallet(id string) Scope { return Scope{Type: ScopeWallet, WalletID: id} }
func Cosigner(index int) Scope { return Scope{Type: ScopeCosigner, Index: index} }

// Validate reports whether the scope can be turned into keys.
func (s Scope) Validate() error {
	switch s.Type {
	case ScopeLegacy:
		return nil
	case ScopeAccount:
		if s.Account < 0 {
			return fmt.Errorf("%w: negative account id %d", ErrInvalidScope, s.Account)
		}
	case ScopeWallet:
		if s.WalletID == "" {
			return fmt.Errorf("%w: empty wallet id", ErrInvalidScope)
		}
	case ScopeCosigner:
		if s.Index < 0 {
			return fmt.Errorf("%w: negative cosigner index %d", ErrInvalidScope, s.Index)
		}
	default:
		return fmt.Errorf("%w: unknown scope type %d", ErrInvalidScope, s.Type)
	}
	return nil
}

// String is the stable textual form persisted in the holder index.
func (s Scope) String() string {
	switch s.Type {
	case ScopeAccount:
		return "account:" + strconv.Itoa(s.Account)
	case ScopeWallet:
		return "wallet:" + s.WalletID
	case ScopeCosigner:
		return "cosigner:" + strconv.Itoa(s.Index)
	default:
		return s.Type.String()
	}
}

// ParseScope is the inverse of Scope.String.
func ParseScope(str string) (Scope, error) {
	if str == "legacy" {
		return Legacy(), nil
	}
	typ, id, ok := strings.Cut(str, ":")
	if !ok {
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, str)
	}

	var s Scope
	switch typ {
	case "account":
		n, err := strconv.Atoi(id)
		if err != nil {
			return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, str)
		}
		s = Account(n)
	case "wallet":
		s = Wallet(id)
	case "cosigner":
		n, err := strconv.Atoi(id)
		if err != nil {
			return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, str)
		}
		s = Cosigner(n)
	default:
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, str)
	}
	return s, s.Validate()
}

// legacyNames keeps the historical names of the singleton wallet.
var legacyNames = map[Kind]string{
	KindSeed:       "encrypted_seed",
	KindSalt:       "encryption_salt",
	KindPassphrase: "encrypted_passphrase",
	KindDescriptor: "multisig_descriptor",
}

// Key returns the physical key for (kind, scope).
//
// Kind tokens never contain an underscore and every scope prefix ends in
// one, so "{scope}_{kind}_{id}" cannot be produced by two different pairs.
func Key(kind Kind, scope Scope) (string, error) {
	if !validKind(kind) {
		return "", fmt.Errorf("unknown secret kind %q", kind)
	}
	if err := scope.Validate(); err != nil {
		return "", err
	}

	switch scope.Type {
	case ScopeLegacy:
		if name, ok := legacyNames[kind]; ok {
			return name, nil
		}
		return "encrypted_" + string(kind), nil
	case ScopeAccount:
		return fmt.Sprintf("account_%s_%d", kind, scope.Account), nil
	case ScopeWallet:
		return fmt.Sprintf("wallet_%s_%s", kind, scope.WalletID), nil
	default:
		return fmt.Sprintf("cosigner_%s_%d", kind, scope.Index), nil
	}
}

// ParseKey is the inverse of Key. Fixed keys and version markers do not
// parse.
func ParseKey(key string) (Kind, Scope, bool) {
	for kind, name := range legacyNames {
		if key == name {
			return kind, Legacy(), true
		}
	}
	if rest, ok := strings.CutPrefix(key, "encrypted_"); ok {
		kind := Kind(rest)
		if validKind(kind) && MustKey(kind, Legacy()) == key {
			return kind, Legacy(), true
		}
		return "", Scope{}, false
	}

	typ, rest, ok := strings.Cut(key, "_")
	if !ok {
		return "", Scope{}, false
	}
	token, id, ok := strings.Cut(rest, "_")
	if !ok || !validKind(Kind(token)) {
		return "", Scope{}, false
	}
	scope, err := ParseScope(typ + ":" + id)
	if err != nil || scope.Type == ScopeLegacy {
		return "", Scope{}, false
	}
	// rejects non-canonical ids such as "account_seed_07"
	if MustKey(Kind(token), scope) != key {
		return "", Scope{}, false
	}
	return Kind(token), scope, true
}

// MustKey is Key for callers that have already validated the scope.
func MustKey(kind Kind, scope Scope) string {
	key, err := Key(kind, scope)
	if err != nil {
		panic(err)
	}
	return key
}

// SaltKey is the key of the holder's salt.
func SaltKey(scope Scope) (string, error) {
	return Key(KindSalt, scope)
}

// VersionKey is the side-car key holding the cipher version of name.
func VersionKey(name string) string {
	return versionPrefix + name
}

// ScopeKeys returns every physical key a scope can own, version markers
// included. Used for best-effort wipes.
func ScopeKeys(scope Scope) ([]string, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, 2*len(Kinds))
	for _, kind := range Kinds {
		key := MustKey(kind, scope)
		keys = append(keys, key)
		if kind != KindSalt && kind != KindMetadata {
			keys = append(keys, VersionKey(key))
		}
	}
	return keys, nil
}

func validKind(kind Kind) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
