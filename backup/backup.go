// Package backup ships exported vault backup files off the device.
//
// The files are already encrypted and checksummed by the vault; sinks only
// move bytes. A Manager fans one file out to a primary sink, whose failure
// fails the call, and any number of secondary sinks, whose failures are
// logged.
package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrNoSink is returned by a Manager built without a primary sink
var ErrNoSink = errors.New("backup: no primary sink configured")

// ErrNotSupported is returned when the primary sink cannot read back
var ErrNotSupported = errors.New("backup: sink does not support restore")

// Kind separates the two backup families in object names
type Kind string

const (
	KindMetadata Kind = "metadata"
	KindSeed     Kind = "seed"
)

// Sink receives a backup file under a name
type Sink interface {
	Name() string
	Send(ctx context.Context, name string, data []byte) error
}

// Fetcher is implemented by sinks that can read backups back
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Receipt records where a backup went
type Receipt struct {
	ID        string
	Name      string
	Delivered []string
	Failed    []string
}

// Manager fans backups out to its sinks
type Manager struct {
	primary   Sink
	secondary []Sink
	now       func() time.Time
}

// NewManager creates a Manager. primary must not be nil for Ship to work.
func NewManager(primary Sink, secondary ...Sink) *Manager {
	return &Manager{primary: primary, secondary: secondary, now: time.Now}
}

// ObjectName is the sink-independent name of a backup:
// {kind}/{yyyy}/{mm}/{id}.json
func ObjectName(kind Kind, id string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%s.json", kind, at.Year(), int(at.Month()), id)
}

// Ship sends data to every sink concurrently. The primary sink must accept
// it; secondary failures only show up in the receipt.
func (m *Manager) Ship(ctx context.Context, kind Kind, data []byte) (*Receipt, error) {
	if m.primary == nil {
		return nil, ErrNoSink
	}

	id := uuid.NewString()
	receipt := &Receipt{ID: id, Name: ObjectName(kind, id, m.now())}

	var (
		mu         sync.Mutex
		primaryErr error
		g          errgroup.Group
	)
	sinks := append([]Sink{m.primary}, m.secondary...)
	for i, sink := range sinks {
		g.Go(func() error {
			err := sink.Send(ctx, receipt.Name, data)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				receipt.Failed = append(receipt.Failed, sink.Name())
				if i == 0 {
					primaryErr = err
				} else {
					log.Warn().Err(err).Str("sink", sink.Name()).Str("backup", receipt.Name).Msg("Secondary backup sink failed")
				}
				return nil
			}
			receipt.Delivered = append(receipt.Delivered, sink.Name())
			return nil
		})
	}
	g.Wait()

	if primaryErr != nil {
		return receipt, fmt.Errorf("backup to %s failed: %w", m.primary.Name(), primaryErr)
	}
	log.Info().
		Str("backup", receipt.Name).
		Str("kind", string(kind)).
		Int("size", len(data)).
		Strs("delivered", receipt.Delivered).
		Msg("Backup shipped")
	return receipt, nil
}

// Fetch reads a backup back from the primary sink
func (m *Manager) Fetch(ctx context.Context, name string) ([]byte, error) {
	f, ok := m.primary.(Fetcher)
	if !ok {
		return nil, ErrNotSupported
	}
	return f.Fetch(ctx, name)
}

// List returns the backup names of one kind held by the primary sink
func (m *Manager) List(ctx context.Context, kind Kind) ([]string, error) {
	f, ok := m.primary.(Fetcher)
	if !ok {
		return nil, ErrNotSupported
	}
	names, err := f.List(ctx, string(kind)+"/")
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if strings.HasSuffix(n, ".json") {
			out = append(out, n)
		}
	}
	return out, nil
}
