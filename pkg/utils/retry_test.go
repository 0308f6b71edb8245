package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestRetryWithResultEventuallySucceeds(t *testing.T) {
	attempts := 0
	result, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if result != 42 || attempts != 3 {
		t.Fatalf("Expected 42 after 3 attempts, got %d after %d", result, attempts)
	}
}

func TestRetryWithResultStopsAfterMaxAttempts(t *testing.T) {
	attempts := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (int, error) {
		attempts++
		return 0, errors.New("always")
	})
	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Fatalf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithResultSkipsNonRetryableErrors(t *testing.T) {
	permanent := errors.New("unknown symbol")
	transient := errors.New("upstream down")

	cfg := fastRetryConfig()
	cfg.RetryableErrors = []error{transient}

	attempts := 0
	_, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		attempts++
		return 0, fmt.Errorf("lookup: %w", permanent)
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Expected the permanent error back, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("Expected a single attempt for a non-retryable error, got %d", attempts)
	}

	attempts = 0
	_, err = RetryWithResult(context.Background(), cfg, func() (int, error) {
		attempts++
		return 0, transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("Expected the transient error back, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("Expected 3 attempts for a retryable error, got %d", attempts)
	}
}
