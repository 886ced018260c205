// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hshokrig/chicken-vault/internal/engine"
)

// DefaultQueueName is the Redis list that receives engine action records for
// out-of-process consumers (stats overlays, replay tooling).
const DefaultQueueName = "chicken_vault_actions"

// Publisher pushes engine actions onto a Redis queue. It implements
// engine.ActionRecorder.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(addr string, db int, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &Publisher{rdb: rdb, queue: queue}, nil
}

// Record serializes the action and pushes it to the queue.
func (p *Publisher) Record(ctx context.Context, rec engine.ActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action record: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("rpush to %q: %w", p.queue, err)
	}
	return nil
}

// Close releases the client.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
