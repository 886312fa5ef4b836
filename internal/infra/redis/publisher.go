// Package redis publishes detected opportunities through go-redis/v9:
// pub/sub for live consumers and a capped stream for late readers.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"arbscan/internal/domain"

	"github.com/redis/go-redis/v9"
)

const defaultStreamMaxLen int64 = 10000

// PublisherConfig holds connection and routing parameters.
type PublisherConfig struct {
	Addr         string
	Password     string
	DB           int
	Channel      string // pub/sub channel, empty disables publishing
	Stream       string // stream key, empty disables XADD
	StreamMaxLen int64  // approximate cap enforced via XADD MAXLEN ~
}

// Publisher implements domain.ResultSink on top of Redis.
type Publisher struct {
	rdb    *redis.Client
	cfg    PublisherConfig
	ownsDB bool
}

// NewPublisher connects, pings and returns a publisher.
func NewPublisher(ctx context.Context, cfg PublisherConfig) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     4,
		MaxRetries:   1,
		DialTimeout:  3 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	p := NewPublisherWithClient(rdb, cfg)
	p.ownsDB = true
	return p, nil
}

// NewPublisherWithClient wraps an existing client. The caller keeps ownership.
func NewPublisherWithClient(rdb *redis.Client, cfg PublisherConfig) *Publisher {
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}
	return &Publisher{rdb: rdb, cfg: cfg}
}

// Persist publishes every opportunity of the cycle in one pipeline.
func (p *Publisher) Persist(ctx context.Context, result *domain.ScanCycleResult) error {
	if len(result.Opportunities) == 0 || (p.cfg.Channel == "" && p.cfg.Stream == "") {
		return nil
	}

	payloads, err := encodeRecords(result.Opportunities)
	if err != nil {
		return err
	}

	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, payload := range payloads {
			if p.cfg.Channel != "" {
				pipe.Publish(ctx, p.cfg.Channel, payload)
			}
			if p.cfg.Stream != "" {
				pipe.XAdd(ctx, streamArgs(p.cfg.Stream, p.cfg.StreamMaxLen, result.Opportunities[i], payload))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: publish cycle %s: %w", result.ID, err)
	}
	return nil
}

// Close closes the connection if the publisher opened it.
func (p *Publisher) Close() error {
	if !p.ownsDB {
		return nil
	}
	return p.rdb.Close()
}

func encodeRecords(ops []domain.Opportunity) ([][]byte, error) {
	out := make([][]byte, len(ops))
	for i, o := range ops {
		b, err := json.Marshal(o.Record())
		if err != nil {
			return nil, fmt.Errorf("redis: encode opportunity: %w", err)
		}
		out[i] = b
	}
	return out, nil
}

func streamArgs(stream string, maxLen int64, o domain.Opportunity, payload []byte) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{
			"cycle_id": o.CycleID,
			"asset":    o.Asset,
			"payload":  string(payload),
		},
	}
}
