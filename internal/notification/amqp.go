package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange receives every off-ramp event; the message kind is the routing key.
const DefaultExchange = "offramp.events"

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notifications to a RabbitMQ topic exchange.
type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   *slog.Logger

	declare    sync.Once
	declareErr error
}

// NewAMQPNotifier dials the broker and opens a publishing channel.
func NewAMQPNotifier(rawURL, exchange string, logger *slog.Logger) (*AMQPNotifier, error) {
	cleanURL, err := sanitizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	n := newAMQPNotifier(ch, exchange, logger)
	n.conn = conn
	return n, nil
}

func newAMQPNotifier(ch channel, exchange string, logger *slog.Logger) *AMQPNotifier {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPNotifier{channel: ch, exchange: exchange, logger: logger}
}

// Send publishes the message as JSON with its kind as routing key.
func (n *AMQPNotifier) Send(ctx context.Context, message Message) error {
	n.declare.Do(func() {
		n.declareErr = n.channel.ExchangeDeclare(n.exchange, "topic", true, false, false, false, nil)
	})
	if n.declareErr != nil {
		return fmt.Errorf("declare exchange %s: %w", n.exchange, n.declareErr)
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	if err := n.channel.PublishWithContext(ctx, n.exchange, message.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}); err != nil {
		return err
	}

	n.logger.DebugContext(ctx, "notification published", slog.String("exchange", n.exchange), slog.String("kind", message.Kind))
	return nil
}

// Close releases channel and connection resources.
func (n *AMQPNotifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", errors.New("amqp url must use amqp:// or amqps://")
	}
	return clean, nil
}
