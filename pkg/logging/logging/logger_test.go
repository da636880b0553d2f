package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestBuildRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := Build("prod", "chatty"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	logger, err := Build("dev", "debug")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected debug level to be enabled")
	}
}

func TestOrPrefersContextLogger(t *testing.T) {
	t.Parallel()

	fallback := zaptest.NewLogger(t)
	if got := Or(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger without context logger")
	}

	reqLogger := zaptest.NewLogger(t).Named("req")
	ctx := WithLogger(context.Background(), reqLogger)
	if got := Or(ctx, fallback); got != reqLogger {
		t.Fatalf("expected request logger from context")
	}

	if Or(context.Background(), nil) == nil {
		t.Fatalf("expected no-op logger, got nil")
	}
}

func TestNamedNilLogger(t *testing.T) {
	t.Parallel()

	if Named(nil, "x") == nil {
		t.Fatalf("expected no-op logger for nil input")
	}
}
