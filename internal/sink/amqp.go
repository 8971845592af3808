package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gyaneshwarpardhi/secpoll/internal/event"
)

// AMQPConfig holds RabbitMQ mirror settings.
type AMQPConfig struct {
	URL        string
	Exchange   string
	AppID      string
	RoutingKey string // may contain {tenant}; defaults to events.<tenant>
}

// amqpChannel is the subset of *amqp.Channel used by the mirror.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes every event as a persistent JSON message to a topic exchange.
type AMQP struct {
	conn       *amqp.Connection
	ch         amqpChannel
	exchange   string
	appID      string
	routingKey string
}

// DialAMQP connects, declares the exchange and opens a publishing channel.
func DialAMQP(cfg AMQPConfig, logger *slog.Logger) (*AMQP, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("amqp sink: URL is required")
	}
	if logger != nil {
		host := ""
		if u, _ := url.Parse(cfg.URL); u != nil {
			host = u.Host
		}
		logger.Info("connecting to rabbitmq", slog.String("host", host))
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp sink: connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp sink: open channel: %w", err)
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "secpoll.events"
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp sink: declare exchange %q: %w", exchange, err)
	}

	a := newAMQP(ch, exchange, cfg.AppID, cfg.RoutingKey)
	a.conn = conn
	return a, nil
}

func newAMQP(ch amqpChannel, exchange, appID, routingKey string) *AMQP {
	if appID == "" {
		appID = "secpoll"
	}
	if routingKey == "" {
		routingKey = "events.{tenant}"
	}
	return &AMQP{ch: ch, exchange: exchange, appID: appID, routingKey: routingKey}
}

func (a *AMQP) Name() string { return "amqp" }

// RoutingKey returns the key events of tenant are published with.
func (a *AMQP) RoutingKey(tenant string) string {
	return strings.ReplaceAll(a.routingKey, "{tenant}", tenant)
}

func (a *AMQP) Append(ctx context.Context, tenant string, events []event.Event) error {
	key := a.RoutingKey(tenant)
	now := time.Now().UTC()
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("amqp sink: marshal: %w", err)
		}
		err = a.ch.PublishWithContext(ctx, a.exchange, key, false, false, amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    now,
			AppId:        a.appID,
			Headers:      amqp.Table{"tenant": tenant},
		})
		if err != nil {
			return fmt.Errorf("amqp sink: publish %s: %w", key, err)
		}
	}
	return nil
}

func (a *AMQP) Close() error {
	err := a.ch.Close()
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
