// Package notify broadcasts task progress over Redis Pub/Sub so API clients
// can follow long-running agent work in real time.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Task lifecycle statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TaskProgress is one progress event for an agent's running task.
type TaskProgress struct {
	AgentID        string         `json:"agent_id"`
	Status         string         `json:"status"`
	MessageContent string         `json:"message_content,omitempty"`
	ResponseData   map[string]any `json:"response_data,omitempty"`
}

// Notifier publishes and subscribes to task progress events on a single
// Redis channel. Subscribers filter by agent id themselves.
type Notifier struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

// New connects to Redis and binds the notifier to a channel.
func New(redisURL, channel string, logger *zap.Logger) (*Notifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("Redis connected", zap.String("channel", channel))
	return &Notifier{rdb: rdb, channel: channel, logger: logger}, nil
}

// PublishUpdate emits one progress event. Publish failures are reported but
// must never abort the task producing them.
func (n *Notifier) PublishUpdate(ctx context.Context, update *TaskProgress) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal task progress: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("publish task progress: %w", err)
	}
	n.logger.Debug("task progress published",
		zap.String("agent_id", update.AgentID),
		zap.String("status", update.Status))
	return nil
}

// Subscribe returns a channel of progress events for one agent. Events for
// other agents and payloads that fail to decode are dropped silently.
// Cancel the context to stop; the channel closes when the subscription ends.
func (n *Notifier) Subscribe(ctx context.Context, agentID string) <-chan *TaskProgress {
	ch := make(chan *TaskProgress, 16)
	sub := n.rdb.Subscribe(ctx, n.channel)

	go func() {
		defer close(ch)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var tp TaskProgress
				if err := json.Unmarshal([]byte(msg.Payload), &tp); err != nil {
					continue
				}
				if tp.AgentID != agentID {
					continue
				}
				select {
				case ch <- &tp:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (n *Notifier) Close() error {
	return n.rdb.Close()
}
