package backup

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds NATS publishing settings
type NATSConfig struct {
	URL             string `yaml:"url"`
	CredentialsFile string `yaml:"credentials_file"`
	Subject         string `yaml:"subject"`
	ReconnectWait   int    `yaml:"reconnect_wait_ms"`
	MaxReconnects   int    `yaml:"max_reconnects"`
}

// Header names set on every published backup
const (
	HeaderName = "Vault-Backup-Name"
	HeaderSize = "Vault-Backup-Size"
)

type publisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// NATSSink publishes backups to a subject, e.g. for a sync service on the
// user's other devices.
type NATSSink struct {
	conn    publisher
	subject string
	close   func()
}

// NewNATSSink connects to NATS
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	opts := []nats.Option{
		nats.Name("satryn-vault-backup"),
		nats.ReconnectWait(time.Duration(cfg.ReconnectWait) * time.Millisecond),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err == nil {
			opts = append(opts, nats.UserCredentials(cfg.CredentialsFile))
		}
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s := newNATSSink(conn, cfg.Subject)
	s.close = conn.Close
	return s, nil
}

func newNATSSink(conn publisher, subject string) *NATSSink {
	if subject == "" {
		subject = "vault.backups"
	}
	return &NATSSink{conn: conn, subject: subject}
}

func (s *NATSSink) Name() string { return "nats:" + s.subject }

// Send publishes data and flushes so that a returned nil means the server
// has the message.
func (s *NATSSink) Send(ctx context.Context, name string, data []byte) error {
	msg := nats.NewMsg(s.subject)
	msg.Data = data
	msg.Header.Set(HeaderName, name)
	msg.Header.Set(HeaderSize, fmt.Sprint(len(data)))

	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("NATS publish failed: %w", err)
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("NATS flush failed: %w", err)
	}
	log.Debug().Str("subject", s.subject).Str("backup", name).Msg("Published backup")
	return nil
}

// Close closes the connection if the sink owns one
func (s *NATSSink) Close() {
	if s.close != nil {
		s.close()
	}
}
