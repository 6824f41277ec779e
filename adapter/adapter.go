// Package adapter defines the notification boundary for published
// manifests.
//
// Adapters tell downstream systems that a manifest revision is available
// in the manifest store. The CLI owns adapter lifecycle; users provide
// configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventTypeManifestPublished is the event_type of ManifestPublishedEvent.
const EventTypeManifestPublished = "manifest_published"

// ManifestPublishedEvent is the payload sent after a manifest publication.
type ManifestPublishedEvent struct {
	FormatVersion  string `json:"format_version"`
	EventType      string `json:"event_type"` // always "manifest_published"
	InvocationID   string `json:"invocation_id"`
	Scope          string `json:"scope"`
	ArtifactType   string `json:"artifact_type"`
	Revision       string `json:"revision"`
	StorageBackend string `json:"storage_backend"`
	StorageKey     string `json:"storage_key"`
	Outputs        int    `json:"outputs"`
	Files          int    `json:"files"`
	Bytes          int64  `json:"bytes"`
	Timestamp      string `json:"timestamp"` // RFC 3339
}

// Adapter publishes manifest events to a downstream system.
type Adapter interface {
	// Publish sends an event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *ManifestPublishedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry; it doubles per retry.
var BaseBackoff = 500 * time.Millisecond

// Retry calls fn once plus up to retries more times, with exponential
// backoff between attempts. It stops early when fn succeeds, the context
// ends, or permanent reports the error as non-retriable.
func Retry(ctx context.Context, name string, retries int, fn func(ctx context.Context) error, permanent func(error) bool) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
