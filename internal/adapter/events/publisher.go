// Package events publishes settlement notifications for downstream
// consumers (kitchen displays, receipt printers). Publishing is
// best-effort: a broker failure is logged and never fails the
// financial transition that triggered it.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeName = "tableside_events"

// Publisher emits domain events.
type Publisher interface {
	SessionClosed(ctx context.Context, sessionID, tableID string, amount float64)
	OrderConfirmed(ctx context.Context, orderID, sessionID string)
	Close()
}

type sessionClosedEvent struct {
	SessionID string  `json:"session_id"`
	TableID   string  `json:"table_id"`
	Amount    float64 `json:"amount"`
}

type orderConfirmedEvent struct {
	OrderID   string `json:"order_id"`
	SessionID string `json:"session_id"`
}

// AMQPPublisher publishes persistent JSON messages to a topic
// exchange.
type AMQPPublisher struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

// Dial connects to the broker and declares the exchange.
func Dial(url string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, logger: logger}, nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// SessionClosed announces a settled session.
func (p *AMQPPublisher) SessionClosed(ctx context.Context, sessionID, tableID string, amount float64) {
	p.publish(ctx, "session.closed", sessionClosedEvent{SessionID: sessionID, TableID: tableID, Amount: amount})
}

// OrderConfirmed announces one confirmed order.
func (p *AMQPPublisher) OrderConfirmed(ctx context.Context, orderID, sessionID string) {
	p.publish(ctx, "order.confirmed", orderConfirmedEvent{OrderID: orderID, SessionID: sessionID})
}

func (p *AMQPPublisher) publish(ctx context.Context, key string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("marshal event failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	err = p.ch.PublishWithContext(ctx, exchangeName, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		p.logger.Error("publish event failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// NopPublisher discards events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) SessionClosed(context.Context, string, string, float64) {}
func (NopPublisher) OrderConfirmed(context.Context, string, string)         {}
func (NopPublisher) Close()                                                 {}
