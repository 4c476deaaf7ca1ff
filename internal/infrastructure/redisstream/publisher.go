package redisstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nerrad567/facility-core/internal/infrastructure/config"
)

const defaultPingTimeout = 5 * time.Second

// Errors returned by the publisher.
var (
	ErrDisabled         = errors.New("redisstream: disabled in configuration")
	ErrConnectionFailed = errors.New("redisstream: connection failed")
	ErrPublishFailed    = errors.New("redisstream: publish failed")
)

// Publisher appends entries to one Redis stream, trimmed to MaxLen.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// Connect opens a client from the redis config section and pings it.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return New(client, cfg.Stream, cfg.MaxLen), nil
}

// New wraps an existing client. maxLen <= 0 disables trimming.
func New(client *redis.Client, stream string, maxLen int64) *Publisher {
	return &Publisher{client: client, stream: stream, maxLen: maxLen}
}

// Stream returns the stream key entries are appended to.
func (p *Publisher) Stream() string { return p.stream }

// Publish appends one entry and returns its stream id.
func (p *Publisher) Publish(ctx context.Context, fields map[string]string) (string, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return id, nil
}

// HealthCheck pings the server.
func (p *Publisher) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
