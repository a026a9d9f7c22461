package publish

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/config"
)

// RedisPublisher publishes captures to a pub/sub channel and keeps a
// bounded per-source backup list for consumers that come up late.
type RedisPublisher struct {
	client    *redis.Client
	channel   string
	retention int64
	log       *logrus.Logger
}

func NewRedisPublisher(cfg config.RedisConfig, log *logrus.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	log.Infof("redis publisher connected: %s", cfg.Addr)

	retention := cfg.Retention
	if retention <= 0 {
		retention = 1000
	}

	return &RedisPublisher{
		client:    client,
		channel:   cfg.Channel,
		retention: retention,
		log:       log,
	}, nil
}

func (p *RedisPublisher) Name() string { return "redis" }

// Publish sends the capture over pub/sub and appends it to the source's
// backup list, trimmed to the configured retention.
func (p *RedisPublisher) Publish(ctx context.Context, c *Capture) error {
	payload, err := c.marshal()
	if err != nil {
		return fmt.Errorf("marshaling capture: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing capture: %w", err)
	}

	listKey := fmt.Sprintf("scope:%s:captures", c.Record.Source)
	if err := p.client.LPush(ctx, listKey, payload).Err(); err != nil {
		p.log.Warnf("backup list push failed: %v", err)
	}
	p.client.LTrim(ctx, listKey, 0, p.retention-1)

	return nil
}

// PublishBatch pipelines several captures in one round trip, maintaining
// the same per-source backup lists as Publish.
func (p *RedisPublisher) PublishBatch(ctx context.Context, captures []*Capture) error {
	pipe := p.client.Pipeline()

	for _, c := range captures {
		payload, err := c.marshal()
		if err != nil {
			p.log.Errorf("marshaling capture %s: %v", c.Record.CaptureID, err)
			continue
		}
		listKey := fmt.Sprintf("scope:%s:captures", c.Record.Source)
		pipe.Publish(ctx, p.channel, payload)
		pipe.LPush(ctx, listKey, payload)
		pipe.LTrim(ctx, listKey, 0, p.retention-1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// GetStats reports redis server and pool statistics for diagnostics.
func (p *RedisPublisher) GetStats(ctx context.Context) map[string]interface{} {
	info := p.client.Info(ctx, "stats").Val()

	return map[string]interface{}{
		"info":       info,
		"pool_stats": p.client.PoolStats(),
	}
}
