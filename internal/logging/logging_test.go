package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf}).With(String("component", "phyloop"))

	log.Info(context.Background(), "report", Uint32("tti", 1234), Float64("sinr", 15.5), Duration("elapsed", 1500*time.Microsecond), Err(errors.New("boom")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "report" || entry["component"] != "phyloop" {
		t.Fatalf("entry = %v", entry)
	}
	if entry["tti"] != float64(1234) || entry["sinr"] != 15.5 || entry["error"] != "boom" || entry["elapsed"] != "1.5ms" {
		t.Fatalf("entry fields = %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("output = %q", out)
	}
}

func TestFromContext(t *testing.T) {
	fallback := New(Config{Output: &bytes.Buffer{}})
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Fatalf("FromContext without logger should return fallback")
	}
	if _, ok := FromContext(context.Background(), nil).(noopLogger); !ok {
		t.Fatalf("FromContext with nil fallback should return Noop")
	}

	stored := Noop()
	ctx := ContextWithLogger(context.Background(), stored)
	if got := FromContext(ctx, fallback); got != stored {
		t.Fatalf("FromContext should return stored logger")
	}
}
