package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/resourceflow/internal/runtime/correlation"
)

func newBufferLogger(buf *bytes.Buffer) ServiceLogger {
	return NewSlogServiceLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestSlogServiceLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.With(LogFields{"module": "resource"}).Info("created", LogFields{"id": 7})
	log.Error("failed", errors.New("boom"), LogFields{"op": "delete"})

	out := buf.String()
	for _, want := range []string{"module=resource", "id=7", "op=delete", "boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output %q", want, out)
		}
	}
}

func TestFromContextAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	ctx := correlation.WithID(context.Background(), "corr-42")
	FromContext(ctx, log).Info("handled", nil)
	FromContext(context.Background(), log).Info("untagged", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "correlation_id=corr-42") {
		t.Fatalf("expected correlation id in %q", lines[0])
	}
	if strings.Contains(lines[1], "correlation_id") {
		t.Fatalf("unexpected correlation id in %q", lines[1])
	}
}

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil))).With("service", "resourceflow")

	logger.InfoContext(correlation.WithID(context.Background(), "abc"), "request")

	out := buf.String()
	if !strings.Contains(out, "correlation_id=abc") || !strings.Contains(out, "service=resourceflow") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestWatermillAdapterDelegates(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewWatermillAdapter(newBufferLogger(&buf))

	adapter.With(watermill.LogFields{"topic": "resource-events"}).Info("subscribed", nil)
	adapter.Debug("debug line", watermill.LogFields{"k": "v"})

	out := buf.String()
	if !strings.Contains(out, "topic=resource-events") || !strings.Contains(out, "k=v") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConstructorsPanicOnNil(t *testing.T) {
	cases := map[string]func(){
		"slog":      func() { NewSlogServiceLogger(nil) },
		"watermill": func() { NewWatermillServiceLogger(nil) },
		"adapter":   func() { NewWatermillAdapter(nil) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			fn()
		})
	}
}
