// Package notify pings the notification-delivery side out-of-band over
// Redis pub/sub whenever the orchestrator commits a ticket mutation that
// queued a Notify action. The notifier process (outside this module's
// scope) subscribes to the same channel and pulls pending rows from the
// notifications table on each ping.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ticketgraph/engine/platform"
)

const defaultChannel = "tickets:notifications:collect_new"

// RedisNotifier implements orchestrator.Notifier over a Redis pub/sub
// channel. Publish failures are the caller's to log; they never block
// the already-committed transaction that triggered them.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  platform.Logger
}

// Option configures a RedisNotifier.
type Option func(*RedisNotifier)

// WithChannel overrides the default pub/sub channel name.
func WithChannel(channel string) Option {
	return func(n *RedisNotifier) { n.channel = channel }
}

// WithLogger overrides the default NoOpLogger.
func WithLogger(logger platform.Logger) Option {
	return func(n *RedisNotifier) { n.logger = logger }
}

// NewRedisNotifier connects to addr and verifies reachability with one
// PING before returning, the same fail-fast pattern the connection
// opens with everywhere else in this module.
func NewRedisNotifier(ctx context.Context, addr string, opts ...Option) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("notify: connect to redis at %s: %w", addr, err)
	}

	n := &RedisNotifier{client: client, channel: defaultChannel, logger: platform.NoOpLogger{}}
	for _, opt := range opts {
		opt(n)
	}
	if cal, ok := n.logger.(platform.ComponentAwareLogger); ok {
		n.logger = cal.WithComponent("notify")
	}
	return n, nil
}

// Ping publishes the message "collect_new" to the notifier's channel, signaling
// it to collect and deliver any notification rows inserted since its
// last pass.
func (n *RedisNotifier) Ping(ctx context.Context) error {
	if err := n.client.Publish(ctx, n.channel, "collect_new").Err(); err != nil {
		return fmt.Errorf("notify: publish to %s: %w", n.channel, err)
	}
	n.logger.DebugWithContext(ctx, "notifier pinged", map[string]interface{}{
		"operation": "notify.ping", "channel": n.channel,
	})
	return nil
}

// Close releases the underlying Redis client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
