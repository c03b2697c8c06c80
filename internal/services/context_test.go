package services_test

import (
	"context"
	"testing"

	"wepp/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "sess-1")
	ctx = services.WithRecording(ctx, "subject01.json")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "sess-1" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if name, ok := services.RecordingFromContext(ctx); !ok || name != "subject01.json" {
		t.Fatalf("unexpected recording: %v %v", name, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRecording(ctx, "")
	ctx = services.WithSessionID(ctx, "")
	if _, ok := services.RecordingFromContext(ctx); ok {
		t.Fatal("expected no recording value")
	}
	if _, ok := services.SessionIDFromContext(ctx); ok {
		t.Fatal("expected no session value")
	}
}
