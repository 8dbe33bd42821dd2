package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// amqpChannel is the part of *amqp091.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher fans audit events out to a RabbitMQ topic exchange.
type Publisher struct {
	conn       *amqp091.Connection
	channel    amqpChannel
	exchange   string
	routingKey string
	mu         sync.Mutex
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewPublisher dials the broker and declares the durable topic exchange.
func NewPublisher(amqpURL, exchange, routingKey string) (*Publisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{
		Dial: amqp091.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unable to open rabbitmq channel: %w", err)
	}

	p, err := newPublisher(channel, exchange, routingKey)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(channel amqpChannel, exchange, routingKey string) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("audit exchange cannot be empty")
	}
	err := channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = channel.Close()
		return nil, fmt.Errorf("unable to declare exchange %s: %w", exchange, err)
	}
	return &Publisher{channel: channel, exchange: exchange, routingKey: routingKey}, nil
}

// Record publishes the event as JSON. The routing key is the configured key
// suffixed with ".succeeded" or ".failed".
func (p *Publisher) Record(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("unable to encode audit event: %w", err)
	}

	key := p.routingKey
	if key == "" {
		key = event.Action
	}
	if event.Success {
		key += ".succeeded"
	} else {
		key += ".failed"
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    event.OccurredAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("unable to publish audit event: %w", err)
	}

	zap.L().Debug("Published audit event",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", key))
	return nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			zap.L().Warn("Failed to close rabbitmq channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			zap.L().Warn("Failed to close rabbitmq connection", zap.Error(err))
		}
	}
}
