package wakeup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "mailqueue:enqueued"

// Redis publishes and receives wake-up signals over Redis pub/sub so
// producers and workers in different processes share them.
type Redis struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// NewRedis creates a Redis signal hub on channel.
func NewRedis(client *redis.Client, channel string, log zerolog.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel, log: log}
}

// Notify publishes a signal.
func (r *Redis) Notify(ctx context.Context) error {
	if err := r.client.Publish(ctx, r.channel, "enqueued").Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Subscribe confirms the subscription before returning so no signal
// published afterwards is missed.
func (r *Redis) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}

	out := make(chan struct{}, 1)
	msgs := pubsub.Channel()
	go func() {
		defer close(out)
		defer func() {
			if err := pubsub.Close(); err != nil {
				r.log.Debug().Err(err).Msg("close wake-up subscription")
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()

	r.log.Info().Str("channel", r.channel).Msg("listening for wake-up signals")
	return out, nil
}
