package util

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "json").Info("hello", "k", 1)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json output not parseable: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", rec["msg"])
	}

	buf.Reset()
	newLogger(&buf, "info", "text").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q, want msg=hello", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "warn", "text").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}

func TestRateLimiterNew(t *testing.T) {
	if rl := NewRateLimiter(60, 1); rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	if rl := NewRateLimiter(0, 1); rl != nil {
		t.Errorf("NewRateLimiter(0) = %v, want nil", rl)
	}
}

func TestRateLimiterBurstAndRefill(t *testing.T) {
	rl := NewRateLimiter(60, 2) // one token per second
	now := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.lastTime = now

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("burst of 2 not allowed")
	}
	if rl.Allow() {
		t.Fatal("third call allowed with empty bucket")
	}
	if d := rl.reserve(); d <= 0 || d > time.Second {
		t.Errorf("reserve() = %v, want (0, 1s]", d)
	}

	now = now.Add(time.Second)
	if !rl.Allow() {
		t.Error("token not refilled after 1s")
	}
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("Wait on empty bucket returned nil before the context expired")
	}
}

func TestRateLimiterNilNeverBlocks(t *testing.T) {
	var rl *RateLimiter
	if err := rl.Wait(context.Background()); err != nil {
		t.Errorf("nil Wait = %v", err)
	}
	if !rl.Allow() {
		t.Error("nil Allow = false")
	}
}
