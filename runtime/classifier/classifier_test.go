package classifier_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmind/agentcore/runtime/classifier"
	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/plan"
)

func TestNormalizeTakesTokenBeforeColonAfterLastDot(t *testing.T) {
	assert.Equal(t, "ValueError", classifier.Normalize("builtins.ValueError: bad value"))
	assert.Equal(t, "KeyError", classifier.Normalize("KeyError"))
	assert.Equal(t, "RuntimeError", classifier.Normalize(""))
}

func TestClassifyMissingModuleInsertsInstallStep(t *testing.T) {
	in := classifier.Input{
		Kind:              "ModuleNotFoundError",
		Message:           "No module named 'dask'",
		InstalledPackages: []string{"pandas", "numpy"},
	}
	a := classifier.Classify(in, "", nil)
	require.Equal(t, plan.DecisionInsertSteps, a.Decision)
	require.Len(t, a.Changes.NewSteps, 1)
	require.Len(t, a.Changes.NewSteps[0].ToolCalls, 1)
	code := a.Changes.NewSteps[0].ToolCalls[0].Parameters.(model.JupyterCellParams).Code
	assert.True(t, strings.HasPrefix(code, "!pip install"))
	assert.Contains(t, code, "dask")
}

func TestClassifyIndirectDependencyInstallsPyarrowNotDask(t *testing.T) {
	in := classifier.Input{
		Kind:              "ModuleNotFoundError",
		Message:           "No module named 'pyarrow'",
		InstalledPackages: []string{"dask"},
	}
	a := classifier.Classify(in, "", nil)
	require.Equal(t, plan.DecisionInsertSteps, a.Decision)
	code := a.Changes.NewSteps[0].ToolCalls[0].Parameters.(model.JupyterCellParams).Code
	assert.Contains(t, code, "pyarrow")
	assert.NotContains(t, code, "dask")
}

func TestClassifyAliasNormalizesSklearn(t *testing.T) {
	in := classifier.Input{Kind: "ModuleNotFoundError", Message: "No module named 'sklearn'"}
	a := classifier.Classify(in, "", nil)
	assert.Equal(t, "scikit-learn", a.MissingPackage)
}

func TestClassifyAlreadyInstalledRefines(t *testing.T) {
	in := classifier.Input{
		Kind:              "ImportError",
		Message:           "No module named 'pandas'",
		InstalledPackages: []string{"pandas"},
	}
	a := classifier.Classify(in, "", nil)
	assert.Equal(t, plan.DecisionRefine, a.Decision)
	assert.Equal(t, "pandas", a.MissingPackage)
}

func TestClassifyDlopenEscalatesWithSystemDependency(t *testing.T) {
	in := classifier.Input{
		Kind:    "OSError",
		Message: "dlopen(/x/lib_lightgbm.dylib) Library not loaded: @rpath/libomp.dylib",
	}
	a := classifier.Classify(in, "", nil)
	require.Equal(t, plan.DecisionReplanRemaining, a.Decision)
	assert.Contains(t, a.Changes.SystemDependency, "libomp.dylib")
}

func TestClassifyOtherOSErrorRefines(t *testing.T) {
	in := classifier.Input{Kind: "OSError", Message: "disk quota exceeded"}
	a := classifier.Classify(in, "", nil)
	assert.Equal(t, plan.DecisionRefine, a.Decision)
}

func TestClassifyKnownRefinableKindsRefine(t *testing.T) {
	for _, kind := range []string{"UnicodeDecodeError", "NameError", "SyntaxError", "FileNotFoundError"} {
		a := classifier.Classify(classifier.Input{Kind: kind}, "", nil)
		assert.Equal(t, plan.DecisionRefine, a.Decision, kind)
	}
}

func TestClassifyUnknownKindRefines(t *testing.T) {
	a := classifier.Classify(classifier.Input{Kind: "SomeWeirdCustomError"}, "", nil)
	assert.Equal(t, plan.DecisionRefine, a.Decision)
}

func TestShouldUseLLMFallbackTriggers(t *testing.T) {
	assert.True(t, classifier.ShouldUseLLMFallback(classifier.Input{Kind: "KeyError", ConsecutiveCount: 2}))
	assert.True(t, classifier.ShouldUseLLMFallback(classifier.Input{Kind: "WeirdError"}))
	assert.True(t, classifier.ShouldUseLLMFallback(classifier.Input{
		Kind:      "RuntimeError",
		Traceback: "During handling of the above exception\nDuring handling of the above exception",
	}))
	assert.False(t, classifier.ShouldUseLLMFallback(classifier.Input{Kind: "KeyError"}))
}

func TestClassifyUsesLLMFallbackResultOnSuccess(t *testing.T) {
	in := classifier.Input{Kind: "WeirdError", Message: "???"}
	fallback := func(in classifier.Input, det plan.ErrorAnalysis) (plan.ErrorAnalysis, error) {
		return plan.ErrorAnalysis{Decision: plan.DecisionReplaceStep, Reasoning: "llm says replace"}, nil
	}
	a := classifier.Classify(in, "", fallback)
	assert.Equal(t, plan.DecisionReplaceStep, a.Decision)
	assert.True(t, a.UsedLLM)
}

func TestClassifyFallsBackToDeterministicOnFallbackError(t *testing.T) {
	in := classifier.Input{Kind: "WeirdError"}
	fallback := func(in classifier.Input, det plan.ErrorAnalysis) (plan.ErrorAnalysis, error) {
		return plan.ErrorAnalysis{}, errors.New("llm unavailable")
	}
	a := classifier.Classify(in, "", fallback)
	assert.Equal(t, plan.DecisionRefine, a.Decision)
	assert.False(t, a.UsedLLM)
}
