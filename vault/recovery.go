package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/devdasx/satryn-sub001/cipher"
	"github.com/devdasx/satryn-sub001/kdf"
	"github.com/devdasx/satryn-sub001/namespace"
)

// errNoCandidates means recovery found nothing to test the PIN against.
var errNoCandidates = errors.New("no recovery candidates")

// recoverLocked rebuilds the global anchor after both encryption_salt and
// pin_hash were lost. It is only reached from that state and never from
// normal verification.
//
// Every indexed holder that still has a salt and a seed record is a
// candidate. The first one whose seed opens under pin proves the PIN; its
// salt becomes the global salt and the PIN hash is recomputed from it, so
// later verifications take the fast path. When every candidate fails the
// result is ErrWrongPin, the same as a normal mismatch.
//
// Callers hold anchorMu.
func (s *Service) recoverLocked(ctx context.Context, pin string) (*anchor, error) {
	current, err := s.loadAnchorLocked(ctx)
	if err != nil {
		return nil, err
	}
	if current.salt != "" || current.hash != "" {
		return nil, fmt.Errorf("%w: recovery requires both anchor items to be absent", ErrFormat)
	}

	candidates, err := s.holders(ctx, namespace.ScopeAccount, namespace.ScopeWallet, namespace.ScopeCosigner)
	if err != nil {
		return nil, err
	}

	tried := 0
	for _, scope := range candidates {
		salt, err := s.get(ctx, namespace.MustKey(namespace.KindSalt, scope))
		if err != nil {
			continue
		}
		raw, err := s.get(ctx, namespace.MustKey(namespace.KindSeed, scope))
		if err != nil {
			continue
		}
		rec, err := cipher.ParseRecord(raw)
		if err != nil {
			continue
		}

		tried++
		if _, err := s.decode(namespace.KindSeed, rec, pin, salt, current.deriver); err != nil {
			continue
		}

		recovered := &anchor{salt: salt, hash: kdf.PinHash(pin, salt), deriver: current.deriver}
		if err := s.set(ctx, namespace.MustKey(namespace.KindSalt, namespace.Legacy()), recovered.salt, nil); err != nil {
			return nil, err
		}
		if err := s.set(ctx, namespace.PinHashKey, recovered.hash, nil); err != nil {
			return nil, err
		}

		s.metrics.recovery("recovered")
		s.log.Warn().Str("holder", scope.String()).Msg("Recovered PIN anchor from holder seed")
		s.anchor = recovered
		return recovered, nil
	}

	if tried == 0 {
		s.metrics.recovery("no_candidates")
		return nil, errNoCandidates
	}
	s.metrics.recovery("failed")
	return nil, ErrWrongPin
}
