package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmind/agentcore/runtime/classifier"
	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/plan"
)

func threeStepPlan() plan.Plan {
	return plan.Plan{
		TotalSteps: 3,
		Steps: []plan.Step{
			{StepNumber: 1, Description: "load", ToolCalls: []model.ToolCall{{Name: model.ToolJupyterCell, Parameters: model.JupyterCellParams{Code: "import pandas"}}}},
			{StepNumber: 2, Description: "transform", Dependencies: []int{1}, ToolCalls: []model.ToolCall{{Name: model.ToolJupyterCell, Parameters: model.JupyterCellParams{Code: "df2 = df.sum()"}}}},
			{StepNumber: 3, Description: "answer", Dependencies: []int{2}, ToolCalls: []model.ToolCall{{Name: model.ToolFinalAnswer, Parameters: model.FinalAnswerParams{Answer: "done"}}}},
		},
	}
}

func TestApplyInsertStepsRenumbersAndPreservesDependencies(t *testing.T) {
	p := threeStepPlan()
	install := plan.Step{ToolCalls: []model.ToolCall{{Name: model.ToolJupyterCell, Parameters: model.JupyterCellParams{Code: "!pip install pyarrow"}}}}

	got := applyInsertSteps(p, 2, []plan.Step{install})

	require.NoError(t, got.Validate())
	assert.Equal(t, 4, got.TotalSteps)
	assert.Equal(t, "!pip install pyarrow", got.Steps[1].ToolCalls[0].Parameters.(model.JupyterCellParams).Code)
	// the original step 2 ("transform") is now step 3 and still depends on
	// step 1 ("load"), which kept its number.
	assert.Equal(t, "transform", got.Steps[2].Description)
	assert.Equal(t, []int{1}, got.Steps[2].Dependencies)
	// the final_answer step moved to 4 and still depends on the shifted
	// "transform" step.
	assert.Equal(t, 4, got.Steps[3].StepNumber)
	assert.Equal(t, []int{3}, got.Steps[3].Dependencies)
}

func TestApplyReplaceStepKeepsPositionAndDependencies(t *testing.T) {
	p := threeStepPlan()
	replacement := plan.Step{Description: "transform (fixed)", ToolCalls: []model.ToolCall{{Name: model.ToolJupyterCell, Parameters: model.JupyterCellParams{Code: "df2 = df.fillna(0).sum()"}}}}

	got := applyReplaceStep(p, 2, replacement)

	require.NoError(t, got.Validate())
	assert.Equal(t, 2, got.Steps[1].StepNumber)
	assert.Equal(t, []int{1}, got.Steps[1].Dependencies)
	assert.Equal(t, "transform (fixed)", got.Steps[1].Description)
}

func TestApplyReplanRemainingTruncatesAndRenumbers(t *testing.T) {
	p := threeStepPlan()
	remaining := []plan.Step{
		{StepNumber: 2, Description: "transform differently", ToolCalls: []model.ToolCall{{Name: model.ToolJupyterCell, Parameters: model.JupyterCellParams{Code: "df2 = df.dropna()"}}}},
		{StepNumber: 3, Description: "answer", Dependencies: []int{2}, ToolCalls: []model.ToolCall{{Name: model.ToolFinalAnswer, Parameters: model.FinalAnswerParams{Answer: "done"}}}},
	}

	got := applyReplanRemaining(p, 2, remaining)

	require.NoError(t, got.Validate())
	assert.Equal(t, 3, got.TotalSteps)
	assert.Equal(t, "transform differently", got.Steps[1].Description)
	assert.Equal(t, []int{1}, got.Steps[0].Dependencies)
}

func TestClassifyErrorOverridesLLMDisagreementOnImportError(t *testing.T) {
	fallback := func(in classifier.Input, deterministic plan.ErrorAnalysis) (plan.ErrorAnalysis, error) {
		return plan.ErrorAnalysis{Decision: plan.DecisionReplanRemaining, RootCause: "the model thinks this is unfixable"}, nil
	}
	o := &Orchestrator{Fallback: fallback, Audit: NewAuditLog()}

	in := classifier.Input{Kind: "ModuleNotFoundError", Message: "No module named 'pyarrow'", ConsecutiveCount: 2}
	got := o.classifyError(in, 5)

	assert.Equal(t, plan.DecisionInsertSteps, got.Decision)
	events := o.Audit.List()
	require.Len(t, events, 1)
	assert.Equal(t, 5, events[0].StepNumber)
	assert.Equal(t, plan.DecisionInsertSteps, events[0].Deterministic)
	assert.Equal(t, plan.DecisionReplanRemaining, events[0].LLMInfluenced)
}

func TestClassifyErrorUsesLLMResultWhenNotImportKind(t *testing.T) {
	fallback := func(in classifier.Input, deterministic plan.ErrorAnalysis) (plan.ErrorAnalysis, error) {
		return plan.ErrorAnalysis{Decision: plan.DecisionReplaceStep, RootCause: "flaky API, swap libraries"}, nil
	}
	o := &Orchestrator{Fallback: fallback, Audit: NewAuditLog()}

	in := classifier.Input{Kind: "SomeUnknownError", Message: "boom"}
	got := o.classifyError(in, 1)

	assert.Equal(t, plan.DecisionReplaceStep, got.Decision)
	assert.Empty(t, o.Audit.List())
}
