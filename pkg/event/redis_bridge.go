package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBridge republishes every emitted event on a Redis pub/sub channel so
// collaborators outside the process can react to appends and new summaries.
type RedisBridge struct {
	client      *redis.Client
	channel     string
	unsubscribe func()
	logger      *slog.Logger
}

// RedisBridgeOptions configures NewRedisBridge.
type RedisBridgeOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisBridge connects to Redis and subscribes to emitter. It returns nil
// when no address is configured.
func NewRedisBridge(ctx context.Context, emitter *Emitter, opts RedisBridgeOptions, logger *slog.Logger) (*RedisBridge, error) {
	if opts.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	b := &RedisBridge{client: client, channel: opts.Channel, logger: logger}
	b.unsubscribe = emitter.OnAny(b.publish)
	logger.Info("Redis event bridge connected", "addr", opts.Addr, "channel", opts.Channel)
	return b, nil
}

func (b *RedisBridge) publish(ev Event) {
	payload, err := json.Marshal(NewWSMessage(ev))
	if err != nil {
		b.logger.Warn("Failed to encode event for redis", "event", ev.EventName(), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn("Failed to publish event to redis", "event", ev.EventName(), "error", err)
	}
}

// Close detaches from the emitter and closes the client.
func (b *RedisBridge) Close() error {
	if b == nil {
		return nil
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	return b.client.Close()
}
