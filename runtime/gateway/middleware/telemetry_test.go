package middleware_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cellmind/agentcore/runtime/gateway/middleware"
	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/telemetry"
)

type fakeSpan struct {
	ended   bool
	status  codes.Code
	errored error
}

func (s *fakeSpan) End(...trace.SpanEndOption)          { s.ended = true }
func (s *fakeSpan) AddEvent(string, ...any)             {}
func (s *fakeSpan) SetStatus(code codes.Code, _ string) { s.status = code }
func (s *fakeSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errored = err
}

type fakeTracer struct {
	spans []*fakeSpan
	names []string
}

func (t *fakeTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, telemetry.Span) {
	s := &fakeSpan{}
	t.spans = append(t.spans, s)
	t.names = append(t.names, name)
	return ctx, s
}

func (t *fakeTracer) Span(ctx context.Context) telemetry.Span { return &fakeSpan{} }

type fakeLogger struct {
	infoCalls  int
	errorCalls int
}

func (l *fakeLogger) Debug(context.Context, string, ...any) {}
func (l *fakeLogger) Info(context.Context, string, ...any)  { l.infoCalls++ }
func (l *fakeLogger) Warn(context.Context, string, ...any)  {}
func (l *fakeLogger) Error(context.Context, string, ...any) { l.errorCalls++ }

type fakeMetrics struct {
	timers int
}

func (m *fakeMetrics) IncCounter(string, float64, ...string)        {}
func (m *fakeMetrics) RecordTimer(string, time.Duration, ...string) { m.timers++ }
func (m *fakeMetrics) RecordGauge(string, float64, ...string)       {}

func TestTelemetryGenerateRecordsSuccessfulSpanAndLog(t *testing.T) {
	tracer := &fakeTracer{}
	logger := &fakeLogger{}
	metrics := &fakeMetrics{}
	tel := middleware.Telemetry{Logger: logger, Metrics: metrics, Tracer: tracer}

	handler := tel.Generate()(func(ctx context.Context, req *model.Request) (*model.Response, error) {
		return &model.Response{Text: "ok"}, nil
	})

	resp, err := handler(context.Background(), &model.Request{Model: "claude-x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)

	require.Len(t, tracer.spans, 1)
	assert.Equal(t, "gateway.generate", tracer.names[0])
	assert.True(t, tracer.spans[0].ended)
	assert.Equal(t, codes.Ok, tracer.spans[0].status)
	assert.Equal(t, 1, logger.infoCalls)
	assert.Equal(t, 0, logger.errorCalls)
	assert.Equal(t, 1, metrics.timers)
}

func TestTelemetryGenerateRecordsFailedSpanAndLog(t *testing.T) {
	tracer := &fakeTracer{}
	logger := &fakeLogger{}
	tel := middleware.Telemetry{Logger: logger, Tracer: tracer}

	wantErr := errors.New("provider unavailable")
	handler := tel.Generate()(func(ctx context.Context, req *model.Request) (*model.Response, error) {
		return nil, wantErr
	})

	_, err := handler(context.Background(), &model.Request{Model: "claude-x"})
	require.ErrorIs(t, err, wantErr)

	require.Len(t, tracer.spans, 1)
	assert.Equal(t, codes.Error, tracer.spans[0].status)
	assert.Equal(t, wantErr, tracer.spans[0].errored)
	assert.Equal(t, 1, logger.errorCalls)
	assert.Equal(t, 0, logger.infoCalls)
}

func TestTelemetryStreamRecordsSpanForFullLifetime(t *testing.T) {
	tracer := &fakeTracer{}
	tel := middleware.Telemetry{Tracer: tracer}

	handler := tel.Stream()(func(ctx context.Context, req *model.Request, send func(model.Chunk) error) error {
		return send(model.Chunk{Delta: "hi", Done: true})
	})

	var received model.Chunk
	err := handler(context.Background(), &model.Request{Model: "claude-x"}, func(c model.Chunk) error {
		received = c
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", received.Delta)

	require.Len(t, tracer.spans, 1)
	assert.Equal(t, "gateway.stream", tracer.names[0])
	assert.Equal(t, codes.Ok, tracer.spans[0].status)
}

func TestTelemetryZeroValueFallsBackToNoop(t *testing.T) {
	var tel middleware.Telemetry

	handler := tel.Generate()(func(ctx context.Context, req *model.Request) (*model.Response, error) {
		return &model.Response{Text: "ok"}, nil
	})

	resp, err := handler(context.Background(), &model.Request{Model: "claude-x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}
