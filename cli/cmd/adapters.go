package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/buildout/adapter"
	"github.com/pithecene-io/buildout/adapter/redis"
	"github.com/pithecene-io/buildout/adapter/webhook"
	"github.com/pithecene-io/buildout/cli/config"
	"github.com/pithecene-io/buildout/lode"
	"github.com/pithecene-io/buildout/types"
)

// adapterFlags are the notification flags of the publish command.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Notify after publishing: webhook or redis (overrides adapter.type)",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook endpoint or Redis URL (overrides adapter.url)",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis channel, may contain {scope} (overrides adapter.channel)",
		},
	}
}

// adapterChoice is the resolved adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

// parseAdapterConfig merges adapter flags over the config file section.
// It returns nil when no adapter is configured.
func parseAdapterConfig(c *cli.Context, cfg *config.Config) (*adapterChoice, error) {
	var section config.AdapterConfig
	if cfg != nil {
		section = cfg.Adapter
	}

	choice := &adapterChoice{
		adapterType: firstNonEmpty(c.String("adapter"), section.Type),
		url:         firstNonEmpty(c.String("adapter-url"), section.URL),
		channel:     firstNonEmpty(c.String("adapter-channel"), section.Channel),
		headers:     section.Headers,
		timeout:     section.Timeout.Duration,
	}
	if choice.adapterType == "" {
		return nil, nil
	}

	switch choice.adapterType {
	case config.AdapterWebhook:
		choice.retries = webhook.DefaultRetries
	case config.AdapterRedis:
		choice.retries = redis.DefaultRetries
	default:
		return nil, fmt.Errorf("unknown adapter %q (must be webhook or redis)", choice.adapterType)
	}
	if section.Retries != nil {
		choice.retries = *section.Retries
	}
	if choice.url == "" {
		return nil, errors.New("--adapter-url is required when an adapter is configured")
	}
	return choice, nil
}

// buildAdapter creates the adapter described by choice.
func buildAdapter(choice *adapterChoice) (adapter.Adapter, error) {
	switch choice.adapterType {
	case config.AdapterWebhook:
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	case config.AdapterRedis:
		return redis.New(redis.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q", choice.adapterType)
	}
}

// publishedEvent builds the notification for a stored publication.
func publishedEvent(pub *lode.Publication, backend string) *adapter.ManifestPublishedEvent {
	return &adapter.ManifestPublishedEvent{
		FormatVersion:  types.ManifestFormatVersion,
		EventType:      adapter.EventTypeManifestPublished,
		InvocationID:   pub.InvocationID,
		Scope:          pub.Scope,
		ArtifactType:   pub.ArtifactType,
		Revision:       pub.Revision,
		StorageBackend: backend,
		StorageKey:     pub.Key(),
		Outputs:        pub.Outputs,
		Files:          len(pub.Files),
		Bytes:          pub.Bytes,
		Timestamp:      pub.PublishedAt.UTC().Format(time.RFC3339),
	}
}
