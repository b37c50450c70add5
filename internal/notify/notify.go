package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
)

// Alert is the payload an external notifier (support-contact messenger,
// digest sender) drains from the queue.
type Alert struct {
	UserID   string    `json:"user_id"`
	Kind     string    `json:"kind"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

const defaultKey = "accountability-alerts"

// Queue pushes JSON-encoded alerts onto a Redis list. A nil client degrades
// to a logged no-op so the core never depends on Redis being up.
type Queue struct {
	client *redis.Client
	key    string
	logger internal.Logger
}

func NewQueue(client *redis.Client, logger internal.Logger) *Queue {
	return &Queue{client: client, key: defaultKey, logger: logger}
}

// NewRedisClient dials Redis, or returns nil when no address is configured.
func NewRedisClient(addr, password string, logger internal.Logger) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnf("redis unreachable at %s, alerts will be dropped: %v", addr, err)
	}
	return client
}

func (q *Queue) Push(ctx context.Context, a Alert) error {
	if q.client == nil {
		q.logger.Debugf("alert queue disabled, dropping %s alert for user %s", a.Kind, a.UserID)
		return nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push alert to redis: %w", err)
	}
	return nil
}
