package main

import (
	"context"
	"fmt"
	"os"

	"github.com/devdasx/satryn-sub001/backup"
	"github.com/devdasx/satryn-sub001/config"
	"github.com/devdasx/satryn-sub001/keystore"
	"github.com/devdasx/satryn-sub001/namespace"
	"github.com/devdasx/satryn-sub001/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app is the wired vault stack for one invocation
type app struct {
	cfg      *config.Config
	store    keystore.Store
	vault    *vault.Service
	registry *prometheus.Registry
	backups  *backup.Manager

	closers []func() error
}

func (c *cli) open(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if c.logLevel != "" {
		level = c.logLevel
	}
	if err := setupLogging(level, cmd.ErrOrStderr()); err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	var first error
	for i := len(c.app.closers) - 1; i >= 0; i-- {
		if err := c.app.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.app = nil
	return first
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Keystore.CacheSize > 0 {
		// the biometric PIN copy stays out of process memory
		store = keystore.NewCachedStore(store, cfg.Keystore.CacheSize, namespace.BiometricPinKey)
	}
	a.store = store

	vcfg := cfg.VaultConfig()
	if cfg.Keystore.Backend == config.BackendSSM && vcfg.BiometricPolicy.ThisDeviceOnlyWhenUnlocked {
		log.Warn().Msg("SSM cannot bind items to this device; storing biometric PIN without device-only policy")
		vcfg.BiometricPolicy = keystore.AccessPolicy{}
	}
	a.vault = vault.New(store, vcfg, vault.WithMetrics(vault.NewMetrics(a.registry)))

	if err := a.openBackups(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (keystore.Store, error) {
	switch a.cfg.Keystore.Backend {
	case config.BackendMemory:
		log.Warn().Msg("Using in-memory keystore; nothing will be persisted")
		return keystore.NewMemoryStore(), nil

	case config.BackendSQLite:
		key, err := a.cfg.AtRestKey()
		if err != nil {
			return nil, err
		}
		if key == nil {
			log.Warn().Str("env", a.cfg.Keystore.SQLite.KeyEnv).Msg("No at-rest key set; keystore file is not sealed")
		}
		s, err := keystore.NewSQLiteStore(a.cfg.Keystore.SQLite.Path, key)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil

	case config.BackendSSM:
		return keystore.NewSSMStore(ctx, a.cfg.Keystore.SSM)

	default:
		return nil, fmt.Errorf("unknown keystore backend %q", a.cfg.Keystore.Backend)
	}
}

// openBackups wires the configured sinks. S3 is primary when present.
func (a *app) openBackups(ctx context.Context) error {
	var sinks []backup.Sink
	if a.cfg.Backup.S3.Bucket != "" {
		s, err := backup.NewS3Sink(ctx, a.cfg.Backup.S3)
		if err != nil {
			return err
		}
		sinks = append(sinks, s)
	}
	if a.cfg.Backup.NATS.URL != "" {
		s, err := backup.NewNATSSink(a.cfg.Backup.NATS)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		sinks = append(sinks, s)
	}
	if len(sinks) > 0 {
		a.backups = backup.NewManager(sinks[0], sinks[1:]...)
	}
	return nil
}

func (a *app) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) requireBackups() (*backup.Manager, error) {
	if a.backups == nil {
		return nil, fmt.Errorf("no backup sink configured")
	}
	return a.backups, nil
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
