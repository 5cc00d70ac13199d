package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestSlogLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewTextLogger(&buf, "text", "debug").With(String("session", "s1"))
	log.Info("export finished", Int("pages", 3), Err(errors.New("boom")))

	out := buf.String()
	for _, want := range []string{"export finished", "session=s1", "pages=3", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}

func TestSlogLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewTextLogger(&buf, "json", "warn")
	log.Debug("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unexpected level mapping")
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Fatalf("expected NopLogger")
	}
}

func TestLogTracerLogsFinishedSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewLogTracer(NewTextLogger(&buf, "text", "debug"))
	_, span := tracer.StartSpan(context.Background(), SpanExport)
	span.SetTag(MetricPagesTouched, 2)
	span.SetError(errors.New("font missing"))
	if buf.Len() != 0 {
		t.Fatalf("span logged before Finish: %q", buf.String())
	}
	span.Finish()

	out := buf.String()
	for _, want := range []string{"span finished", "span=" + SpanExport, MetricPagesTouched + "=2", "duration=", `error="font missing"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}

func TestLogTracerNilLogger(t *testing.T) {
	_, span := NewLogTracer(nil).StartSpan(context.Background(), SpanDecode)
	span.SetTag("k", "v")
	span.Finish()
}
