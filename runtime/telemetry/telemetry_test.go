package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
)

func TestNoopLoggerDiscardsWithoutPanic(t *testing.T) {
	l := NewNoopLogger()
	ctx := context.Background()
	l.Debug(ctx, "debug", "k", "v")
	l.Info(ctx, "info")
	l.Warn(ctx, "warn", "k", 1)
	l.Error(ctx, "error", "err", errors.New("boom"))
}

func TestNoopMetricsDiscardsWithoutPanic(t *testing.T) {
	m := NewNoopMetrics()
	m.IncCounter("steps.total", 1, "status", "ok")
	m.RecordTimer("step.duration", 12*time.Millisecond)
	m.RecordGauge("refine.attempts", 2)
}

func TestNoopTracerReturnsUsableSpan(t *testing.T) {
	tr := NewNoopTracer()
	ctx, span := tr.Start(context.Background(), "orchestrator.run")
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	span.AddEvent("step.dispatched", "stepNumber", 1)
	span.SetStatus(codes.Ok, "completed")
	span.RecordError(errors.New("boom"))
	span.End()

	same := tr.Span(ctx)
	same.End()
}

func TestTagsToAttrsPairsUpArguments(t *testing.T) {
	attrs := tagsToAttrs([]string{"provider", "anthropic", "unpaired"})
	if len(attrs) != 1 {
		t.Fatalf("expected 1 attribute from one complete pair, got %d", len(attrs))
	}
	if string(attrs[0].Key) != "provider" || attrs[0].Value.AsString() != "anthropic" {
		t.Fatalf("unexpected attribute: %+v", attrs[0])
	}
}

func TestKvToAttrsConvertsByDynamicType(t *testing.T) {
	attrs := kvToAttrs([]any{
		"stepNumber", 3,
		"durationMs", int64(150),
		"score", 0.95,
		"ok", true,
		"name", "refine",
	})
	if len(attrs) != 5 {
		t.Fatalf("expected 5 attributes, got %d", len(attrs))
	}
}

func TestKvToFieldersSkipsNonStringKeys(t *testing.T) {
	fielders := kvToFielders([]any{"k1", "v1", 2, "ignored", "k3"})
	if len(fielders) != 1 {
		t.Fatalf("expected 1 fielder (non-string key skipped, trailing unpaired key dropped), got %d", len(fielders))
	}
}
