package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/redis/go-redis/v9"

	"github.com/pkordes/ride-duration/internal/domain"
)

// Default key pattern and notification channel for the Redis sink.
const (
	DefaultRedisKey     = "predictions:{year}-{month}"
	DefaultRedisChannel = "predictions"
)

// Notice is published on the Redis channel after a period's list is replaced.
type Notice struct {
	Period string `json:"period"`
	Key    string `json:"key"`
	Count  int    `json:"count"`
}

// Redis keeps each period as a list of JSON-encoded records. The list
// replacement and the notification run in one MULTI/EXEC, so readers see
// either the old list or the complete new one.
type Redis struct {
	client  redis.Cmdable
	key     string
	channel string
	close   func() error
}

// NewRedis wraps an existing client. Close does not close it.
func NewRedis(client redis.Cmdable, keyPattern, channel string) *Redis {
	return &Redis{client: client, key: keyPattern, channel: channel, close: func() error { return nil }}
}

// OpenRedis connects to a redis:// URL. The optional query parameters key
// and channel override DefaultRedisKey and DefaultRedisChannel.
func OpenRedis(ctx context.Context, location string) (*Redis, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("sink.OpenRedis: %w", err)
	}
	q := u.Query()
	key, channel := q.Get("key"), q.Get("channel")
	if key == "" {
		key = DefaultRedisKey
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	q.Del("key")
	q.Del("channel")
	u.RawQuery = q.Encode()

	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, fmt.Errorf("sink.OpenRedis: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("sink.OpenRedis: ping: %w", err)
	}
	return &Redis{client: client, key: key, channel: channel, close: client.Close}, nil
}

// Location returns the key pattern.
func (r *Redis) Location() string { return "redis:" + r.key }

// Close closes the client when the sink owns it.
func (r *Redis) Close() error { return r.close() }

// Write replaces the period's list with results and publishes a Notice.
func (r *Redis) Write(ctx context.Context, period domain.Period, results []domain.ScoredRecord) error {
	key := period.Expand(r.key)

	values := make([]any, len(results))
	for i, res := range results {
		b, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("sink.Redis.Write: %w: %w", domain.ErrSinkWrite, err)
		}
		values[i] = b
	}
	notice, err := json.Marshal(Notice{Period: period.String(), Key: key, Count: len(results)})
	if err != nil {
		return fmt.Errorf("sink.Redis.Write: %w: %w", domain.ErrSinkWrite, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
		}
		pipe.Publish(ctx, r.channel, notice)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sink.Redis.Write: %w: %s: %w", domain.ErrSinkWrite, key, err)
	}
	return nil
}
