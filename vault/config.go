package vault

import (
	"time"

	"github.com/devdasx/satryn-sub001/kdf"
	"github.com/devdasx/satryn-sub001/keystore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultCosignerCapacity is the number of local cosigner slots.
const DefaultCosignerCapacity = 15

// Config holds the tunables of a Service
type Config struct {
	// CosignerCapacity bounds cosigner indexes to [0, CosignerCapacity).
	CosignerCapacity int

	// KDF is the derivation scheme for vaults anchored by this service.
	// Existing vaults keep the scheme they were created with.
	KDF kdf.Scheme

	// BiometricPolicy is applied to the biometric PIN copy.
	BiometricPolicy keystore.AccessPolicy
}

// DefaultConfig returns the configuration used by the mobile wallet
func DefaultConfig() Config {
	return Config{
		CosignerCapacity: DefaultCosignerCapacity,
		KDF:              kdf.SchemeSHA256,
		BiometricPolicy:  keystore.AccessPolicy{ThisDeviceOnlyWhenUnlocked: true},
	}
}

func (c Config) withDefaults() Config {
	if c.CosignerCapacity <= 0 {
		c.CosignerCapacity = DefaultCosignerCapacity
	}
	if c.KDF == "" {
		c.KDF = kdf.SchemeSHA256
	}
	return c
}

// Option customises a Service
type Option func(*Service)

// WithLogger replaces the global zerolog logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics enables Prometheus counters
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source used for backup timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func defaultLogger() zerolog.Logger {
	return log.With().Str("component", "vault").Logger()
}
