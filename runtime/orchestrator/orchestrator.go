package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"github.com/cellmind/agentcore/runtime/classifier"
	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/notebook"
	"github.com/cellmind/agentcore/runtime/plan"
	"github.com/cellmind/agentcore/runtime/prompt"
	"github.com/cellmind/agentcore/runtime/prompt/schema"
	"github.com/cellmind/agentcore/runtime/salvage"
	"github.com/cellmind/agentcore/runtime/telemetry"
	"github.com/cellmind/agentcore/runtime/validator"
	"github.com/cellmind/agentcore/runtime/verifier"
)

// Orchestrator is the Plan Orchestrator: the top-level state machine. It
// holds no mutable run state itself; Run (see run.go) threads a runState
// through the outer loop and recovery sub-machine.
type Orchestrator struct {
	LLM        LLMClient
	Validator  *validator.Validator
	Dispatcher Dispatcher
	Fallback   classifier.LLMFallback
	InstallCmd classifier.InstallCommand
	Config     Config
	Audit      *AuditLog

	// Logger, Metrics, and Tracer observe planning, recovery, and step
	// dispatch. Each defaults to its no-op implementation when left nil, so
	// constructing an Orchestrator in a test needs no telemetry setup.
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

func (o *Orchestrator) logger() telemetry.Logger {
	if o.Logger == nil {
		return telemetry.NewNoopLogger()
	}
	return o.Logger
}

func (o *Orchestrator) metrics() telemetry.Metrics {
	if o.Metrics == nil {
		return telemetry.NewNoopMetrics()
	}
	return o.Metrics
}

func (o *Orchestrator) tracer() telemetry.Tracer {
	if o.Tracer == nil {
		return telemetry.NewNoopTracer()
	}
	return o.Tracer
}

// PlanRequest is the /agent/plan entry point: it assembles the Plan prompt,
// calls the LLM, salvages and schema-validates the JSON, and decodes it
// into a plan.Plan. libraries are the Library Detector's picks for this
// request, folded into the prompt as read-only API guides; callers that
// serve concurrent requests over one Orchestrator must pass them in rather
// than storing them on the struct.
func (o *Orchestrator) PlanRequest(ctx context.Context, requestText string, nb notebook.Context, installedPackages, libraries []string) (plan.Plan, string, error) {
	ctx, span := o.tracer().Start(ctx, "orchestrator.plan")
	defer span.End()

	text := prompt.Plan(prompt.PlanInput{
		RequestText:       requestText,
		Notebook:          nb,
		InstalledPackages: installedPackages,
		Libraries:         libraries,
	})

	p, reasoning, err := o.planRequest(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger().Error(ctx, "plan request failed", "err", err.Error())
		return plan.Plan{}, "", err
	}
	span.SetStatus(codes.Ok, "")
	o.logger().Info(ctx, "plan request completed", "totalSteps", p.TotalSteps)
	return p, reasoning, nil
}

func (o *Orchestrator) planRequest(ctx context.Context, text string) (plan.Plan, string, error) {
	raw, err := o.call(ctx, text)
	if err != nil {
		return plan.Plan{}, "", err
	}
	if err := schema.ValidatePlan(raw); err != nil {
		return plan.Plan{}, "", fmt.Errorf("plan response failed schema validation: %w", err)
	}
	p, err := decodePlan(raw)
	if err != nil {
		return plan.Plan{}, "", err
	}
	if err := p.Validate(); err != nil {
		return plan.Plan{}, "", fmt.Errorf("plan failed invariant check: %w", err)
	}
	return p, reasoningOf(raw), nil
}

// RefineStep is the /agent/refine entry point: it asks for replacement tool
// calls for one failed step.
func (o *Orchestrator) RefineStep(ctx context.Context, in prompt.RefineInput) ([]model.ToolCall, string, error) {
	ctx, span := o.tracer().Start(ctx, "orchestrator.refine")
	defer span.End()

	text := prompt.Refine(in)

	raw, err := o.call(ctx, text)
	if err != nil {
		return o.refineFailed(ctx, span, err)
	}
	if err := schema.ValidateToolCalls(raw); err != nil {
		return o.refineFailed(ctx, span, fmt.Errorf("refine response failed schema validation: %w", err))
	}
	calls, err := decodeToolCallsResponse(raw)
	if err != nil {
		return o.refineFailed(ctx, span, err)
	}
	span.SetStatus(codes.Ok, "")
	o.logger().Info(ctx, "refine step completed", "attempt", in.Attempt, "toolCalls", len(calls))
	return calls, reasoningOf(raw), nil
}

func (o *Orchestrator) refineFailed(ctx context.Context, span telemetry.Span, err error) ([]model.ToolCall, string, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.logger().Error(ctx, "refine step failed", "err", err.Error())
	return nil, "", err
}

// ReplanRun is the /agent/replan entry point: it asks for an adaptive
// recovery decision covering the failed step and, depending on the
// decision, a replacement step or a rewritten remaining-steps suffix.
func (o *Orchestrator) ReplanRun(ctx context.Context, in prompt.ReplanInput) (plan.ErrorAnalysis, string, error) {
	ctx, span := o.tracer().Start(ctx, "orchestrator.replan")
	defer span.End()

	text := prompt.Replan(in)

	raw, err := o.call(ctx, text)
	if err != nil {
		return o.replanFailed(ctx, span, err)
	}
	if err := schema.ValidateErrorAnalysis(raw); err != nil {
		return o.replanFailed(ctx, span, fmt.Errorf("replan response failed schema validation: %w", err))
	}
	analysis, err := decodeErrorAnalysis(raw)
	if err != nil {
		return o.replanFailed(ctx, span, err)
	}
	span.SetStatus(codes.Ok, "")
	o.logger().Info(ctx, "replan run completed", "failedStepNumber", in.FailedStepNumber, "decision", analysis.Decision)
	return analysis, reasoningOf(raw), nil
}

func (o *Orchestrator) replanFailed(ctx context.Context, span telemetry.Span, err error) (plan.ErrorAnalysis, string, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.logger().Error(ctx, "replan run failed", "err", err.Error())
	return plan.ErrorAnalysis{}, "", err
}

// VerifyState is the /agent/verify-state entry point. It is purely
// deterministic (runtime/verifier); no LLM call is made.
func (o *Orchestrator) VerifyState(ctx context.Context, in verifier.Input) plan.StateVerification {
	sv := verifier.Verify(in)
	o.logger().Info(ctx, "state verification completed", "stepNumber", in.StepNumber, "recommendation", sv.Recommendation)
	o.metrics().RecordGauge("orchestrator.verifier.confidence", sv.Confidence, "recommendation", string(sv.Recommendation))
	return sv
}

// call sends one prompt to the LLM and salvages a JSON object from the
// response text. It never validates against a particular schema itself;
// callers validate with the schema matching their task.
func (o *Orchestrator) call(ctx context.Context, text string) (json.RawMessage, error) {
	resp, err := o.LLM.Generate(ctx, &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: text}},
	})
	if err != nil {
		return nil, fmt.Errorf("llm call failed: %w", err)
	}
	raw := salvage.JSON(resp.Text)
	if raw == nil {
		return nil, fmt.Errorf("could not salvage a JSON object from the model response")
	}
	return raw, nil
}

// reasoningOf best-effort extracts the "reasoning" field every schema in
// runtime/prompt/schema carries, for callers that want to surface it
// alongside the decoded result without it being load-bearing.
func reasoningOf(raw json.RawMessage) string {
	var obj struct {
		Reasoning string `json:"reasoning"`
	}
	_ = json.Unmarshal(raw, &obj)
	return obj.Reasoning
}
