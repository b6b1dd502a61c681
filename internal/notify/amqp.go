package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const DefaultExchange = "clinic.notifications"

// AMQPEmitter publishes envelopes to a topic exchange with the room as
// routing key.
type AMQPEmitter struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func dialExchange(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}

func NewAMQPEmitter(url, exchange string) (*AMQPEmitter, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, ch, err := dialExchange(url, exchange)
	if err != nil {
		return nil, err
	}
	return &AMQPEmitter{conn: conn, ch: ch, exchange: exchange}, nil
}

func (e *AMQPEmitter) Publish(ctx context.Context, room, event string, payload any) error {
	env, err := newEnvelope(ctx, room, event, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	err = e.ch.PublishWithContext(ctx, e.exchange, room, false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        event,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", event, err)
	}
	return nil
}

func (e *AMQPEmitter) Close() error {
	if e.ch != nil {
		_ = e.ch.Close()
	}
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

// AMQPRelay consumes every room from the exchange through a private queue
// and hands the envelopes to the local hub.
type AMQPRelay struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	hub   *Hub
	log   zerolog.Logger
}

func NewAMQPRelay(url, exchange string, hub *Hub, logger zerolog.Logger) (*AMQPRelay, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, ch, err := dialExchange(url, exchange)
	if err != nil {
		return nil, err
	}

	// Exclusive server-named queue: each instance sees every event once.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &AMQPRelay{
		conn:  conn,
		ch:    ch,
		queue: q.Name,
		hub:   hub,
		log:   logger.With().Str("component", "amqp_relay").Logger(),
	}, nil
}

// Run blocks until ctx is cancelled or the broker closes the channel.
func (r *AMQPRelay) Run(ctx context.Context) error {
	deliveries, err := r.ch.ConsumeWithContext(ctx, r.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.queue, err)
	}
	r.log.Info().Str("queue", r.queue).Msg("notification relay consuming")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			env, err := DecodeEnvelope(d.Body)
			if err != nil {
				r.log.Warn().Err(err).Msg("dropping malformed notification")
				continue
			}
			r.hub.Deliver(env)
		}
	}
}

func (r *AMQPRelay) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
