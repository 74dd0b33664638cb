package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	corepublish "github.com/YDUTSEVOLDN/Subway/core/publish"
)

// RedisConfig addresses a Redis server.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
	// LatestTTL keeps the last batch under "<channel>:latest" when positive.
	LatestTTL time.Duration `json:"latest_ttl"`
}

// RedisPublisher PUBLISHes each batch as JSON on one channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
}

// NewRedisPublisher connects and pings the server.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis publisher: addr is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = "subway:predictions"
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisPublisher{client: client, channel: cfg.Channel, ttl: cfg.LatestTTL}, nil
}

// Name identifies the publisher in logs and metrics.
func (p *RedisPublisher) Name() string { return "redis" }

// Channel returns the pub/sub channel.
func (p *RedisPublisher) Channel() string { return p.channel }

// Publish sends the batch and optionally caches it as the latest batch.
func (p *RedisPublisher) Publish(ctx context.Context, msg corepublish.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.ttl > 0 {
		pipe := p.client.TxPipeline()
		pipe.Publish(ctx, p.channel, payload)
		pipe.Set(ctx, p.channel+":latest", payload, p.ttl)
		_, err = pipe.Exec(ctx)
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Close closes the client.
func (p *RedisPublisher) Close() error { return p.client.Close() }
