package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/codes"

	"github.com/cellmind/agentcore/runtime/classifier"
	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/notebook"
	"github.com/cellmind/agentcore/runtime/plan"
	"github.com/cellmind/agentcore/runtime/prompt"
	"github.com/cellmind/agentcore/runtime/toolerrors"
	"github.com/cellmind/agentcore/runtime/verifier"
)

// RunOutput is what Run returns once a request finishes, whether every
// step completed or a recovery bound forced an early terminal summary.
type RunOutput struct {
	Plan    plan.Plan
	Reports []plan.ExecutionReport
}

// runState carries one run's mutable bookkeeping. The live plan is the
// single source of truth recovery mutates in place; everything else
// tracks bounds and accumulated execution context.
type runState struct {
	plan           plan.Plan
	reports        []plan.ExecutionReport
	refineAttempts map[int]int
	replansUsed    int
	requestText    string
	knownVariables []string
	lastErrorKind  map[int]string
	consecutive    map[int]int
}

func newRunState(in RunInput, p plan.Plan) *runState {
	return &runState{
		plan:           p,
		refineAttempts: map[int]int{},
		requestText:    in.RequestText,
		knownVariables: append([]string(nil), in.Notebook.DefinedVariables...),
		lastErrorKind:  map[int]string{},
		consecutive:    map[int]int{},
	}
}

func (s *runState) bumpConsecutive(stepNumber int, kind string) int {
	if s.lastErrorKind[stepNumber] == kind {
		s.consecutive[stepNumber]++
	} else {
		s.consecutive[stepNumber] = 1
		s.lastErrorKind[stepNumber] = kind
	}
	return s.consecutive[stepNumber]
}

// Run drives a request from planning through completion. It loops by step
// number rather than slice index since recovery can splice, replace, or
// truncate the plan's steps out from under a fixed index. A step may not
// start until every dependency reports StepCompleted, and recovery never
// runs while the step it is recovering is itself mid-dispatch: the loop is
// single-threaded, so that ordering is automatic rather than enforced.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (RunOutput, error) {
	p, _, err := o.PlanRequest(ctx, in.RequestText, in.Notebook, in.InstalledPackages, in.Libraries)
	if err != nil {
		return RunOutput{}, fmt.Errorf("planning failed: %w", err)
	}

	st := newRunState(in, p)
	stepNumber := 1

	for {
		if stepNumber > len(st.plan.Steps) {
			return RunOutput{Plan: st.plan, Reports: st.reports}, nil
		}

		terminated, advance, err := o.runStep(ctx, st, stepNumber, in.Notebook)
		if err != nil {
			return RunOutput{Plan: st.plan, Reports: st.reports}, err
		}
		if terminated {
			return RunOutput{Plan: st.plan, Reports: st.reports}, nil
		}
		if advance {
			stepNumber++
		}
	}
}

// runStep drives one step number through validation, dispatch, recovery,
// and checkpoint verification, wrapped in a single span so each step's
// cost and outcome are individually observable. advance tells the caller
// to move to the next step number; when false without an error, the plan
// was mutated under stepNumber (recovery or verification spliced/replaced
// steps) and the caller should re-evaluate the same position.
func (o *Orchestrator) runStep(ctx context.Context, st *runState, stepNumber int, nb notebook.Context) (terminated, advance bool, err error) {
	ctx, span := o.tracer().Start(ctx, "orchestrator.step")
	defer span.End()

	fail := func(err error) (bool, bool, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger().Error(ctx, "step failed", "stepNumber", stepNumber, "err", err.Error())
		return false, false, err
	}

	step := st.plan.StepByNumber(stepNumber)
	if step == nil {
		return fail(toolerrors.Errorf("plan has no step numbered %d", stepNumber))
	}
	if step.State == plan.StepCompleted {
		span.SetStatus(codes.Ok, "already completed")
		return false, true, nil
	}
	if !dependenciesSatisfied(st.plan, *step) {
		return fail(toolerrors.Errorf("step %d's dependencies are not all completed", step.StepNumber))
	}
	if hasFinalAnswer(*step) && step.StepNumber != st.plan.TotalSteps {
		return fail(toolerrors.Errorf("final_answer is only permitted on the last step, found on step %d", step.StepNumber))
	}

	step.State = plan.StepValidating
	if err := o.validateStep(ctx, step, nb); err != nil {
		return fail(err)
	}

	step.State = plan.StepDispatched
	report, err := o.Dispatcher.Dispatch(ctx, step.ToolCalls)
	if err != nil {
		return fail(toolerrors.NewWithCause(fmt.Sprintf("dispatch step %d", step.StepNumber), err))
	}
	st.reports = append(st.reports, report)

	if report.Status == plan.ExecError {
		step.State = plan.StepRecovering
		o.logger().Info(ctx, "step dispatch failed, entering recovery", "stepNumber", stepNumber, "exceptionKind", report.ExceptionKind)
		terminated, err := o.recoverFailedStep(ctx, st, stepNumber, report)
		if err != nil {
			return fail(err)
		}
		span.SetStatus(codes.Ok, "recovered")
		return terminated, false, nil
	}

	step.State = plan.StepCompleted
	st.knownVariables = append(st.knownVariables, report.NewVariables...)

	if step.Checkpoint != nil {
		step.State = plan.StepVerifying
		sv := o.VerifyState(ctx, verifierInput(*step, report, st))
		switch sv.Recommendation {
		case plan.RecommendEscalate:
			o.terminate(ctx, st, stepNumber)
			span.SetStatus(codes.Ok, "escalated")
			return true, false, nil
		case plan.RecommendReplan:
			if st.replansUsed >= o.Config.maxReplansPerRun() {
				o.terminate(ctx, st, stepNumber)
				span.SetStatus(codes.Ok, "replan bound exhausted")
				return true, false, nil
			}
			if err := o.replanFromVerification(ctx, st, stepNumber, report); err != nil {
				return fail(err)
			}
			span.SetStatus(codes.Ok, "replanned")
			return false, false, nil
		}
		step.State = plan.StepCompleted
	}

	span.SetStatus(codes.Ok, "completed")
	o.logger().Info(ctx, "step completed", "stepNumber", stepNumber)
	return false, true, nil
}

func hasFinalAnswer(s plan.Step) bool {
	for _, tc := range s.ToolCalls {
		if tc.Name == model.ToolFinalAnswer {
			return true
		}
	}
	return false
}

func dependenciesSatisfied(p plan.Plan, step plan.Step) bool {
	for _, d := range step.Dependencies {
		dep := p.StepByNumber(d)
		if dep == nil || dep.State != plan.StepCompleted {
			return false
		}
	}
	return true
}

func (o *Orchestrator) validateStep(ctx context.Context, step *plan.Step, nb notebook.Context) error {
	if o.Validator == nil {
		return nil
	}
	for _, tc := range step.ToolCalls {
		p, ok := tc.Parameters.(model.JupyterCellParams)
		if !ok {
			continue
		}
		result := o.Validator.Validate(ctx, p.Code, nb)
		if result.HasErrors() {
			return toolerrors.Errorf("step %d failed validation: %s", step.StepNumber, result.Summary)
		}
	}
	return nil
}

func verifierInput(step plan.Step, report plan.ExecutionReport, st *runState) verifier.Input {
	var patterns []*regexp.Regexp
	for _, pat := range step.Checkpoint.ValidationPatterns {
		if re, err := regexp.Compile(pat); err == nil {
			patterns = append(patterns, re)
		}
	}
	return verifier.Input{
		StepNumber:        step.StepNumber,
		ExpectedOutput:    patterns,
		ExpectedVariables: step.Checkpoint.ExpectedVariables,
		VariablesBefore:   st.knownVariables,
		VariablesAfter:    append(st.knownVariables, report.NewVariables...),
		Report:            report,
	}
}

// recoverFailedStep classifies a step's reported error and applies exactly
// one recovery action: INSERT_STEPS splices immediately with no LLM call,
// REFINE asks for replacement tool calls bounded by MaxRefinePerStep, and
// REPLACE_STEP/REPLAN_REMAINING ask for a rewritten suffix bounded by
// MaxReplansPerRun. A bound exhausted here always ends the run with a
// synthesized final_answer rather than looping further.
func (o *Orchestrator) recoverFailedStep(ctx context.Context, st *runState, stepNumber int, report plan.ExecutionReport) (terminated bool, err error) {
	step := st.plan.StepByNumber(stepNumber)
	if step == nil {
		return false, toolerrors.Errorf("no step numbered %d to recover", stepNumber)
	}

	in := classifier.Input{
		Kind:              report.ExceptionKind,
		Message:           report.ExceptionMessage,
		Traceback:         strings.Join(report.Traceback, "\n"),
		InstalledPackages: report.InstalledPackages,
		ConsecutiveCount:  st.bumpConsecutive(stepNumber, classifier.Normalize(report.ExceptionKind)),
	}
	analysis := o.classifyError(in, stepNumber)
	o.logger().Info(ctx, "recovery decision", "stepNumber", stepNumber, "decision", analysis.Decision, "errorKind", in.Kind)
	o.metrics().IncCounter("orchestrator.classifier.decisions", 1, "decision", string(analysis.Decision))

	switch analysis.Decision {
	case plan.DecisionInsertSteps:
		newSteps := analysis.Changes.NewSteps
		for i := range newSteps {
			sanitizeStep(&newSteps[i])
		}
		st.plan = applyInsertSteps(st.plan, stepNumber, newSteps)
		return false, nil

	case plan.DecisionRefine:
		st.refineAttempts[stepNumber]++
		if st.refineAttempts[stepNumber] > o.Config.maxRefinePerStep() {
			o.terminate(ctx, st, stepNumber)
			return true, nil
		}
		calls, _, err := o.RefineStep(ctx, prompt.RefineInput{
			OriginalCode:      codeOf(*step),
			ErrorKind:         report.ExceptionKind,
			ErrorMessage:      report.ExceptionMessage,
			Traceback:         report.Traceback,
			Attempt:           st.refineAttempts[stepNumber],
			MaxAttempts:       o.Config.maxRefinePerStep(),
			InstalledPackages: report.InstalledPackages,
		})
		if err != nil {
			return false, err
		}
		for i := range calls {
			sanitizeToolCall(&calls[i])
		}
		step.ToolCalls = calls
		step.State = plan.StepPending
		return false, nil

	case plan.DecisionReplaceStep, plan.DecisionReplanRemaining:
		if st.replansUsed >= o.Config.maxReplansPerRun() {
			o.terminate(ctx, st, stepNumber)
			return true, nil
		}
		changes := analysis.Changes
		if changes.ReplacementStep == nil && len(changes.RemainingSteps) == 0 {
			replanned, _, err := o.ReplanRun(ctx, o.replanInputFor(st, stepNumber, report))
			if err != nil {
				return false, err
			}
			changes = replanned.Changes
		}
		st.replansUsed++

		switch {
		case analysis.Decision == plan.DecisionReplaceStep && changes.ReplacementStep != nil:
			sanitizeStep(changes.ReplacementStep)
			st.plan = applyReplaceStep(st.plan, stepNumber, *changes.ReplacementStep)
		case len(changes.RemainingSteps) > 0:
			for i := range changes.RemainingSteps {
				sanitizeStep(&changes.RemainingSteps[i])
			}
			st.plan = applyReplanRemaining(st.plan, stepNumber, changes.RemainingSteps)
		default:
			o.terminate(ctx, st, stepNumber)
			return true, nil
		}
		return false, nil

	default:
		o.terminate(ctx, st, stepNumber)
		return true, nil
	}
}

// replanFromVerification handles a RECOMMEND_REPLAN outcome from state
// verification on an otherwise successful dispatch: unlike a dispatch
// error there is no exception to classify, so this goes straight to the
// Replan LLM call.
func (o *Orchestrator) replanFromVerification(ctx context.Context, st *runState, stepNumber int, report plan.ExecutionReport) error {
	st.replansUsed++
	in := o.replanInputFor(st, stepNumber, report)
	in.ErrorKind = "StateVerificationMismatch"
	in.ErrorMessage = "execution succeeded but produced state inconsistent with the step's expected outcome"

	analysis, _, err := o.ReplanRun(ctx, in)
	if err != nil {
		return err
	}
	for i := range analysis.Changes.RemainingSteps {
		sanitizeStep(&analysis.Changes.RemainingSteps[i])
	}
	if len(analysis.Changes.RemainingSteps) > 0 {
		st.plan = applyReplanRemaining(st.plan, stepNumber, analysis.Changes.RemainingSteps)
	} else if analysis.Changes.ReplacementStep != nil {
		sanitizeStep(analysis.Changes.ReplacementStep)
		st.plan = applyReplaceStep(st.plan, stepNumber, *analysis.Changes.ReplacementStep)
	}
	return nil
}

func (o *Orchestrator) replanInputFor(st *runState, stepNumber int, report plan.ExecutionReport) prompt.ReplanInput {
	var executed []prompt.ExecutedStep
	for _, s := range st.plan.Steps {
		if s.StepNumber >= stepNumber {
			break
		}
		executed = append(executed, prompt.ExecutedStep{
			StepNumber:  s.StepNumber,
			Description: s.Description,
			Succeeded:   s.State == plan.StepCompleted,
		})
	}
	step := st.plan.StepByNumber(stepNumber)
	return prompt.ReplanInput{
		OriginalRequest:   st.requestText,
		ExecutedSteps:     executed,
		FailedStepNumber:  stepNumber,
		FailedStepCode:    codeOf(*step),
		ErrorKind:         report.ExceptionKind,
		ErrorMessage:      report.ExceptionMessage,
		Output:            report.Stdout,
		InstalledPackages: report.InstalledPackages,
	}
}

// terminate replaces everything from stepNumber onward with a single
// synthesized final_answer step summarizing work completed so far. It
// never fails the run: if the summary LLM call itself errors, a canned
// message is used instead.
func (o *Orchestrator) terminate(ctx context.Context, st *runState, stepNumber int) {
	answer, err := o.finalAnswerText(ctx, st)
	if err != nil {
		answer = "Recovery limits were reached before the request could be fully completed."
	}
	final := finalAnswerStep(stepNumber, answer, "recovery bounds exhausted")
	st.plan = applyReplanRemaining(st.plan, stepNumber, []plan.Step{final})
}

func (o *Orchestrator) finalAnswerText(ctx context.Context, st *runState) (string, error) {
	var outputs []string
	for _, r := range st.reports {
		if r.Stdout != "" {
			outputs = append(outputs, r.Stdout)
		}
	}
	var executed []prompt.ExecutedStep
	for _, s := range st.plan.Steps {
		if s.State == plan.StepCompleted || s.State == plan.StepFailed {
			executed = append(executed, prompt.ExecutedStep{
				StepNumber:  s.StepNumber,
				Description: s.Description,
				Succeeded:   s.State == plan.StepCompleted,
			})
		}
	}
	text := prompt.FinalAnswer(prompt.FinalAnswerInput{
		OriginalRequest: st.requestText,
		ExecutedSteps:   executed,
		Outputs:         outputs,
	})
	resp, err := o.LLM.Generate(ctx, &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: text}},
	})
	if err != nil {
		return "", fmt.Errorf("final answer llm call failed: %w", err)
	}
	return resp.Text, nil
}

func codeOf(s plan.Step) string {
	for _, tc := range s.ToolCalls {
		if p, ok := tc.Parameters.(model.JupyterCellParams); ok {
			return p.Code
		}
	}
	return ""
}

func sanitizeToolCall(tc *model.ToolCall) {
	p, ok := tc.Parameters.(model.JupyterCellParams)
	if !ok {
		return
	}
	p.Code = model.SanitizeJupyterCode(p.Code)
	tc.Parameters = p
}

func sanitizeStep(s *plan.Step) {
	for i := range s.ToolCalls {
		sanitizeToolCall(&s.ToolCalls[i])
	}
}
