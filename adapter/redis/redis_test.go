package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/buildout/adapter"
)

func testEvent() *adapter.ManifestPublishedEvent {
	return &adapter.ManifestPublishedEvent{
		FormatVersion:  "0.3.0",
		EventType:      adapter.EventTypeManifestPublished,
		InvocationID:   "0b9d1c5e-0000-4000-8000-000000000001",
		Scope:          "debug",
		ArtifactType:   "APK",
		Revision:       "01927c7e-0000-7000-8000-000000000001",
		StorageBackend: "fs",
		StorageKey:     "manifests/debug/APK/01927c7e-0000-7000-8000-000000000001/",
		Outputs:        1,
		Files:          3,
		Bytes:          4096,
		Timestamp:      "2026-02-07T12:00:00Z",
	}
}

// asyncReceive starts a goroutine that reads one message from the subscriber
// and sends it to the returned channel. Must be called BEFORE Publish to avoid
// deadlocking miniredis's synchronous pub/sub delivery.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{}
	}
}

func TestPublish_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Channel != DefaultChannel {
		t.Errorf("expected channel %q, got %q", DefaultChannel, msg.Channel)
	}

	var received adapter.ManifestPublishedEvent
	if err := json.Unmarshal([]byte(msg.Message), &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if received.ArtifactType != "APK" || received.Files != 3 {
		t.Errorf("unexpected event %+v", received)
	}
}

func TestPublish_ScopedChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: "builds:{scope}"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe("builds:debug")
	ch := asyncReceive(sub)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if msg := waitMessage(t, ch); msg.Channel != "builds:debug" {
		t.Errorf("expected channel builds:debug, got %q", msg.Channel)
	}
}

func TestPublish_ExhaustsRetries(t *testing.T) {
	prev := adapter.BaseBackoff
	adapter.BaseBackoff = time.Millisecond
	t.Cleanup(func() { adapter.BaseBackoff = prev })

	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 2, Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 5, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New(Config{URL: "not-a-redis-url"}); err == nil {
		t.Error("expected error for invalid URL")
	}
	if _, err := New(Config{URL: "redis://localhost:6379", Retries: -1}); err == nil {
		t.Error("expected error for negative retries")
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.config.Channel != DefaultChannel {
		t.Errorf("expected default channel %q, got %q", DefaultChannel, a.config.Channel)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, a.config.Timeout)
	}
}

func TestClose_PublishFailsFast(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr(), Retries: 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	start := time.Now()
	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error after close")
	}
	if time.Since(start) > 400*time.Millisecond {
		t.Error("publish on a closed client should not retry")
	}
}
