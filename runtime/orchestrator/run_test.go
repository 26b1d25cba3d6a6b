package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/plan"
)

type fakeLLM struct {
	responses []string
	calls     int
}

func (f *fakeLLM) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	return &model.Response{Text: f.responses[i]}, nil
}

type fakeDispatcher struct {
	reports []plan.ExecutionReport
	errs    []error
	calls   int
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, calls []model.ToolCall) (plan.ExecutionReport, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.reports[i], err
}

const twoStepPlanJSON = `{
  "totalSteps": 2,
  "steps": [
    {"stepNumber": 1, "description": "load data", "toolCalls": [{"name": "jupyter_cell", "parameters": {"code": "import pyarrow"}}]},
    {"stepNumber": 2, "description": "answer", "dependencies": [1], "toolCalls": [{"name": "final_answer", "parameters": {"answer": "done", "summary": "done"}}]}
  ]
}`

func TestRunCompletesAllStepsOnSuccess(t *testing.T) {
	llm := &fakeLLM{responses: []string{twoStepPlanJSON}}
	dispatcher := &fakeDispatcher{reports: []plan.ExecutionReport{
		{StepNumber: 1, Status: plan.ExecOK},
		{StepNumber: 2, Status: plan.ExecOK},
	}}
	o := &Orchestrator{LLM: llm, Dispatcher: dispatcher, Audit: NewAuditLog()}

	out, err := o.Run(context.Background(), RunInput{RequestText: "load then answer"})

	require.NoError(t, err)
	assert.Len(t, out.Reports, 2)
	for _, s := range out.Plan.Steps {
		assert.Equal(t, plan.StepCompleted, s.State)
	}
}

func TestRunInsertsStepsOnMissingPackageThenCompletes(t *testing.T) {
	llm := &fakeLLM{responses: []string{twoStepPlanJSON}}
	dispatcher := &fakeDispatcher{reports: []plan.ExecutionReport{
		{StepNumber: 1, Status: plan.ExecError, ExceptionKind: "ModuleNotFoundError", ExceptionMessage: "No module named 'pyarrow'"},
		{StepNumber: 1, Status: plan.ExecOK}, // the synthesized install step
		{StepNumber: 2, Status: plan.ExecOK}, // the original step 1, renumbered to 2
		{StepNumber: 3, Status: plan.ExecOK}, // final_answer
	}}
	o := &Orchestrator{LLM: llm, Dispatcher: dispatcher, Audit: NewAuditLog()}

	out, err := o.Run(context.Background(), RunInput{RequestText: "load then answer"})

	require.NoError(t, err)
	require.Equal(t, 3, out.Plan.TotalSteps)
	assert.Contains(t, out.Plan.Steps[0].ToolCalls[0].Parameters.(model.JupyterCellParams).Code, "pip install pyarrow")
	assert.Equal(t, 4, dispatcher.calls)
}

func TestRunEscalatesToFinalAnswerWhenRefineBoundExhausted(t *testing.T) {
	onePlanJSON := `{
	  "totalSteps": 1,
	  "steps": [{"stepNumber": 1, "description": "compute", "toolCalls": [{"name": "jupyter_cell", "parameters": {"code": "1/0"}}]}]
	}`
	refineJSON := `{"toolCalls": [{"name": "jupyter_cell", "parameters": {"code": "1/1"}}]}`
	finalAnswerText := "Reached the retry limit while trying to fix a division error."

	llm := &fakeLLM{responses: []string{onePlanJSON, refineJSON, refineJSON, refineJSON, finalAnswerText}}
	dispatcher := &fakeDispatcher{reports: []plan.ExecutionReport{
		{StepNumber: 1, Status: plan.ExecError, ExceptionKind: "ZeroDivisionError", ExceptionMessage: "division by zero"},
		{StepNumber: 1, Status: plan.ExecError, ExceptionKind: "ZeroDivisionError", ExceptionMessage: "division by zero"},
		{StepNumber: 1, Status: plan.ExecError, ExceptionKind: "ZeroDivisionError", ExceptionMessage: "division by zero"},
		{StepNumber: 1, Status: plan.ExecError, ExceptionKind: "ZeroDivisionError", ExceptionMessage: "division by zero"},
	}}
	o := &Orchestrator{LLM: llm, Dispatcher: dispatcher, Audit: NewAuditLog(), Config: Config{MaxRefinePerStep: 3}}

	out, err := o.Run(context.Background(), RunInput{RequestText: "compute something"})

	require.NoError(t, err)
	require.Len(t, out.Plan.Steps, 1)
	assert.Equal(t, model.ToolFinalAnswer, out.Plan.Steps[0].ToolCalls[0].Name)
	assert.Equal(t, finalAnswerText, out.Plan.Steps[0].ToolCalls[0].Parameters.(model.FinalAnswerParams).Answer)
}

func TestDecodePlanRoundTripsThroughSchemaValidation(t *testing.T) {
	raw := json.RawMessage(twoStepPlanJSON)
	p, err := decodePlan(raw)
	require.NoError(t, err)
	require.NoError(t, p.Validate())
}
