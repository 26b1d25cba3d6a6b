package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/cellmind/agentcore/runtime/gateway"
	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/telemetry"
)

// Telemetry wraps a gateway.Server's Generate and Stream calls with a span,
// a latency metric, and a structured log line, satisfying the requirement
// that every Gateway call is observable regardless of which provider or
// retry/rate-limit middleware sits alongside it. A zero-value Telemetry
// falls back to the no-op Logger/Metrics/Tracer, so tests and callers that
// don't care about observability can skip configuring it.
type Telemetry struct {
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

func (t Telemetry) logger() telemetry.Logger {
	if t.Logger == nil {
		return telemetry.NewNoopLogger()
	}
	return t.Logger
}

func (t Telemetry) metrics() telemetry.Metrics {
	if t.Metrics == nil {
		return telemetry.NewNoopMetrics()
	}
	return t.Metrics
}

func (t Telemetry) tracer() telemetry.Tracer {
	if t.Tracer == nil {
		return telemetry.NewNoopTracer()
	}
	return t.Tracer
}

// Generate returns gateway.GenerateMiddleware instrumenting non-streaming calls.
func (t Telemetry) Generate() gateway.GenerateMiddleware {
	return func(next gateway.GenerateHandler) gateway.GenerateHandler {
		return func(ctx context.Context, req *model.Request) (*model.Response, error) {
			ctx, span := t.tracer().Start(ctx, "gateway.generate")
			defer span.End()

			start := time.Now()
			resp, err := next(ctx, req)
			dur := time.Since(start)
			t.metrics().RecordTimer("gateway.generate.duration", dur, "model", req.Model)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				t.logger().Error(ctx, "gateway generate failed", "model", req.Model, "err", err.Error())
				return nil, err
			}
			span.SetStatus(codes.Ok, "")
			t.logger().Info(ctx, "gateway generate completed", "model", req.Model, "durationMs", dur.Milliseconds())
			return resp, nil
		}
	}
}

// Stream returns gateway.StreamMiddleware instrumenting streaming calls. The
// span covers the full stream lifetime, from the initial call through the
// final chunk or error.
func (t Telemetry) Stream() gateway.StreamMiddleware {
	return func(next gateway.StreamHandler) gateway.StreamHandler {
		return func(ctx context.Context, req *model.Request, send func(model.Chunk) error) error {
			ctx, span := t.tracer().Start(ctx, "gateway.stream")
			defer span.End()

			start := time.Now()
			err := next(ctx, req, send)
			dur := time.Since(start)
			t.metrics().RecordTimer("gateway.stream.duration", dur, "model", req.Model)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				t.logger().Error(ctx, "gateway stream failed", "model", req.Model, "err", err.Error())
				return err
			}
			span.SetStatus(codes.Ok, "")
			t.logger().Info(ctx, "gateway stream completed", "model", req.Model, "durationMs", dur.Milliseconds())
			return nil
		}
	}
}
