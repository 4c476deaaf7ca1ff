package redisstream

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/nerrad567/facility-core/internal/infrastructure/config"
)

func setupPublisher(t *testing.T, maxLen int64) (*Publisher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	p, err := Connect(context.Background(), config.RedisConfig{
		Enabled: true,
		Addr:    mr.Addr(),
		Stream:  "facility:events",
		MaxLen:  maxLen,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { p.Close() }) //nolint:errcheck // Test cleanup

	reader := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { reader.Close() }) //nolint:errcheck // Test cleanup
	return p, reader
}

func TestPublish(t *testing.T) {
	p, reader := setupPublisher(t, 0)
	ctx := context.Background()

	id, err := p.Publish(ctx, map[string]string{"device_uuid": "boiler-01", "value": "21.5"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msgs, err := reader.XRange(ctx, "facility:events", "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != id {
		t.Fatalf("messages = %+v, want one with id %s", msgs, id)
	}
	if msgs[0].Values["device_uuid"] != "boiler-01" || msgs[0].Values["value"] != "21.5" {
		t.Errorf("values = %v", msgs[0].Values)
	}
}

func TestPublish_TrimsToMaxLen(t *testing.T) {
	p, reader := setupPublisher(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := p.Publish(ctx, map[string]string{"n": fmt.Sprint(i)}); err != nil {
			t.Fatalf("Publish(%d) error = %v", i, err)
		}
	}

	n, err := reader.XLen(ctx, p.Stream()).Result()
	if err != nil {
		t.Fatalf("XLen() error = %v", err)
	}
	if n != 3 {
		t.Errorf("stream length = %d, want 3", n)
	}
}

func TestConnect_Disabled(t *testing.T) {
	if _, err := Connect(context.Background(), config.RedisConfig{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), config.RedisConfig{Enabled: true, Addr: addr, Stream: "s"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPublish_ServerGone(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	p := New(client, "s", 0)
	t.Cleanup(func() { p.Close() }) //nolint:errcheck // Test cleanup
	mr.Close()

	if _, err := p.Publish(context.Background(), map[string]string{"k": "v"}); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}
