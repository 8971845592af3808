package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/gyaneshwarpardhi/secpoll/internal/event"
)

// NATSConfig holds NATS mirror settings.
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	FlushTimeout  time.Duration
	Token         string
}

// natsConn is the subset of *nats.Conn used by the mirror.
type natsConn interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// NATS publishes every event to <prefix>.<tenant>.
type NATS struct {
	conn         natsConn
	prefix       string
	flushTimeout time.Duration
}

// DialNATS connects to cfg.URL.
func DialNATS(cfg NATSConfig, logger *slog.Logger) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "secpoll"
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats sink: connect: %w", err)
	}
	return newNATS(conn, cfg.SubjectPrefix, cfg.FlushTimeout), nil
}

func newNATS(conn natsConn, prefix string, flushTimeout time.Duration) *NATS {
	if prefix == "" {
		prefix = "secpoll.events"
	}
	if flushTimeout <= 0 {
		flushTimeout = 5 * time.Second
	}
	return &NATS{conn: conn, prefix: prefix, flushTimeout: flushTimeout}
}

func (n *NATS) Name() string { return "nats" }

// Subject returns the subject events of tenant are published on.
func (n *NATS) Subject(tenant string) string {
	return n.prefix + "." + tenant
}

// Append publishes the batch and flushes so the server has it before return.
func (n *NATS) Append(ctx context.Context, tenant string, events []event.Event) error {
	subject := n.Subject(tenant)
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("nats sink: marshal: %w", err)
		}
		msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
		msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
		msg.Header.Set("Tenant", tenant)
		if err := n.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats sink: publish %s: %w", subject, err)
		}
	}
	if err := n.conn.FlushTimeout(n.flushTimeout); err != nil {
		return fmt.Errorf("nats sink: flush: %w", err)
	}
	return nil
}

func (n *NATS) Close() error {
	return n.conn.Drain()
}
