// Package redis implements a Redis pub/sub adapter.
//
// Publishes manifest events as JSON to a configurable Redis channel.
// Retries with exponential backoff on connection errors.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/buildout/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "buildout:manifest_published"

// ScopePlaceholder in a channel name is replaced by the event scope.
const ScopePlaceholder = "{scope}"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: buildout:manifest_published).
	// It may contain {scope}, e.g. "builds:{scope}".
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
}

// Adapter publishes manifest events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis pub/sub adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// ChannelFor returns the channel an event for scope is published to.
func (a *Adapter) ChannelFor(scope string) string {
	return strings.ReplaceAll(a.config.Channel, ScopePlaceholder, scope)
}

// Publish sends the event as a JSON PUBLISH to the configured channel.
func (a *Adapter) Publish(ctx context.Context, event *adapter.ManifestPublishedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	channel := a.ChannelFor(event.Scope)

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.client.Publish(publishCtx, channel, body).Err()
	}, isClosed)
}

func isClosed(err error) bool {
	return errors.Is(err, goredis.ErrClosed)
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
