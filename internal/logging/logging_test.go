package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf}).With(String("component", "facade"))

	log.Debug(context.Background(), "motor moved", Float("pitch_rad", 0.002), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "motor moved" {
		t.Fatalf("msg = %v, want motor moved", rec["msg"])
	}
	if rec["component"] != "facade" {
		t.Fatalf("component = %v, want facade", rec["component"])
	}
	if rec["pitch_rad"] != 0.002 {
		t.Fatalf("pitch_rad = %v, want 0.002", rec["pitch_rad"])
	}
	if rec["error"] != "boom" {
		t.Fatalf("error = %v, want boom", rec["error"])
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
}

func TestSessionIDIsStable(t *testing.T) {
	ctx, id := EnsureSessionID(context.Background())
	if id == "" {
		t.Fatalf("EnsureSessionID returned empty id")
	}
	ctx2, id2 := EnsureSessionID(ctx)
	if id2 != id || SessionIDFromContext(ctx2) != id {
		t.Fatalf("session id changed: %q -> %q", id, id2)
	}
	if RequestIDFromContext(ctx2) != "" {
		t.Fatalf("session id leaked into request id")
	}
}

func TestWithSessionLoggerAnnotates(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithRequestID(context.Background(), "r1")
	ctx, log := WithSessionLogger(ctx, New(Config{Format: "json", Output: &buf}))
	log.Info(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["session_id"] != SessionIDFromContext(ctx) {
		t.Fatalf("session_id = %v, want %v", rec["session_id"], SessionIDFromContext(ctx))
	}
	if RequestIDFromContext(ctx) != "r1" {
		t.Fatalf("request id lost")
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger on empty context")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("ContextWithLogger(nil) should store a noop logger")
	}
}
