// Package events publishes cache refresh notifications to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"property-tracker/models"
	"property-tracker/utils"
)

const (
	DefaultExchange   = "property_tracker"
	RefreshRoutingKey = "listings.refreshed"
)

// Publisher sends RefreshEvents to a durable direct exchange.
type Publisher struct {
	exchange   string
	connection *amqp.Connection
	channel    *amqp.Channel
	logger     *utils.Logger
}

// NewPublisher dials RabbitMQ, opens a channel and declares the exchange.
func NewPublisher(url, exchange string, logger *utils.Logger) (*Publisher, error) {
	if url == "" {
		return nil, errors.New("events: RabbitMQ URL is required")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = utils.Discard()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: failed to dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeDirect,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: failed to declare exchange %q: %w", exchange, err)
	}

	logger.Info("[events] Connected, publishing to exchange %q", exchange)
	return &Publisher{exchange: exchange, connection: conn, channel: ch, logger: logger}, nil
}

// NotifyRefresh publishes ev as a persistent JSON message.
func (p *Publisher) NotifyRefresh(ctx context.Context, ev models.RefreshEvent) error {
	if p.channel == nil || p.connection == nil || p.connection.IsClosed() {
		return errors.New("events: not connected")
	}

	msg, err := encodeRefresh(ev)
	if err != nil {
		return err
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, RefreshRoutingKey, false, false, msg); err != nil {
		return fmt.Errorf("events: publish %s refresh: %w", ev.Source, err)
	}
	p.logger.Debug("[events] Published refresh for %s (%d listings)", ev.Source, ev.Count)
	return nil
}

// Close shuts the channel and then the connection.
func (p *Publisher) Close() error {
	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		p.channel = nil
	}
	if p.connection != nil {
		if err := p.connection.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		p.connection = nil
	}
	return errors.Join(errs...)
}

func encodeRefresh(ev models.RefreshEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("events: encode refresh: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         RefreshRoutingKey,
		Body:         body,
	}, nil
}

// Noop discards events. It is used when no broker is configured.
type Noop struct{}

func (Noop) NotifyRefresh(context.Context, models.RefreshEvent) error { return nil }
func (Noop) Close() error { return nil }
