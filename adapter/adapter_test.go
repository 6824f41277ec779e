package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	BaseBackoff = time.Millisecond
	t.Cleanup(func() { BaseBackoff = 500 * time.Millisecond })

	calls := 0
	err := Retry(t.Context(), "test", 3, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_StopsOnPermanent(t *testing.T) {
	errBad := errors.New("bad request")
	calls := 0
	err := Retry(t.Context(), "test", 5, func(context.Context) error {
		calls++
		return errBad
	}, func(err error) bool { return errors.Is(err, errBad) })

	if !errors.Is(err, errBad) || !strings.Contains(err.Error(), "non-retriable") {
		t.Errorf("unexpected error %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_Exhausts(t *testing.T) {
	BaseBackoff = time.Millisecond
	t.Cleanup(func() { BaseBackoff = 500 * time.Millisecond })

	err := Retry(t.Context(), "test", 2, func(context.Context) error {
		return errors.New("down")
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := Retry(ctx, "test", 3, func(context.Context) error {
		t.Fatal("fn must not be called")
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
