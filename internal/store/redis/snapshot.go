package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ND68/TipJar/internal/domain/model"
	"github.com/ND68/TipJar/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const sinkName = "redis"

// Client is the subset of the go-redis client the publisher needs.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// SnapshotPublisher mirrors each synchronizer snapshot into Redis: the
// latest view is stored under a per-jar key and announced on a channel.
type SnapshotPublisher struct {
	client  Client
	prefix  string
	network string
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

type PublisherOption func(*SnapshotPublisher)

// WithTTL expires the stored snapshot. Zero keeps it forever.
func WithTTL(ttl time.Duration) PublisherOption {
	return func(p *SnapshotPublisher) { p.ttl = ttl }
}

func WithWriteTimeout(d time.Duration) PublisherOption {
	return func(p *SnapshotPublisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Dial connects to url and verifies the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func NewSnapshotPublisher(client Client, prefix, network string, logger *slog.Logger, opts ...PublisherOption) *SnapshotPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "tipjar"
	}
	p := &SnapshotPublisher{
		client:  client,
		prefix:  prefix,
		network: network,
		timeout: 2 * time.Second,
		logger:  logger.With("component", "redis_publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SnapshotKey is where the latest snapshot of jar is stored.
func (p *SnapshotPublisher) SnapshotKey(jar string) string {
	return fmt.Sprintf("%s:%s:%s:snapshot", p.prefix, p.network, strings.ToLower(jar))
}

// Channel is the pub/sub channel announcing new snapshots.
func (p *SnapshotPublisher) Channel() string {
	return fmt.Sprintf("%s:%s:snapshots", p.prefix, p.network)
}

// Publish stores and announces snap.
func (p *SnapshotPublisher) Publish(ctx context.Context, snap model.SyncSnapshot) error {
	view := model.NewSnapshotView(snap)
	payload, err := json.Marshal(view)
	if err != nil {
		metrics.SnapshotPublishTotal.WithLabelValues(sinkName, "error").Inc()
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Set(ctx, p.SnapshotKey(view.Jar), payload, p.ttl).Err(); err != nil {
		metrics.SnapshotPublishTotal.WithLabelValues(sinkName, "error").Inc()
		return fmt.Errorf("store snapshot: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(), payload).Err(); err != nil {
		metrics.SnapshotPublishTotal.WithLabelValues(sinkName, "error").Inc()
		return fmt.Errorf("announce snapshot: %w", err)
	}
	metrics.SnapshotPublishTotal.WithLabelValues(sinkName, "ok").Inc()
	return nil
}

// Listener adapts Publish to a snapshot listener. Failures are logged; the
// synchronizer never waits on the sink.
func (p *SnapshotPublisher) Listener(ctx context.Context) func(model.SyncSnapshot) {
	return func(snap model.SyncSnapshot) {
		if err := p.Publish(ctx, snap); err != nil {
			p.logger.Warn("snapshot publish failed", "jar", snap.Jar.Hex(), "error", err)
		}
	}
}

func (p *SnapshotPublisher) Close() error {
	return p.client.Close()
}
