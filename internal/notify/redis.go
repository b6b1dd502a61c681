package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultChannel = "clinic:notifications"

// RedisEmitter publishes envelopes on a Redis channel so every api-server
// instance can deliver them to its own websocket clients.
type RedisEmitter struct {
	client  *redis.Client
	channel string
}

func NewRedisEmitter(client *redis.Client, channel string) *RedisEmitter {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisEmitter{client: client, channel: channel}
}

func (e *RedisEmitter) Publish(ctx context.Context, room, event string, payload any) error {
	env, err := newEnvelope(ctx, room, event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := e.client.Publish(ctx, e.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", event, err)
	}
	return nil
}

// RedisRelay subscribes to the notification channel and hands every
// envelope to the local hub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     zerolog.Logger
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger zerolog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		log:     logger.With().Str("component", "redis_relay").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info().Str("channel", r.channel).Msg("notification relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, err := DecodeEnvelope([]byte(msg.Payload))
			if err != nil {
				r.log.Warn().Err(err).Msg("dropping malformed notification")
				continue
			}
			r.hub.Deliver(env)
		}
	}
}

// DecodeEnvelope parses a relayed envelope, rejecting ones without a room
// or event name.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Room == "" || env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: room and event are required")
	}
	return env, nil
}
