package verifier_test

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmind/agentcore/runtime/plan"
	"github.com/cellmind/agentcore/runtime/verifier"
)

func TestVerifyCleanRunProceeds(t *testing.T) {
	in := verifier.Input{
		ExpectedVariables: []string{"df"},
		ExpectedOutput:    []*regexp.Regexp{regexp.MustCompile(`rows: \d+`)},
		VariablesAfter:    []string{"df"},
		Report: plan.ExecutionReport{
			Status: plan.ExecOK,
			Stdout: "rows: 42",
		},
	}
	result := verifier.Verify(in)
	assert.True(t, result.IsValid)
	assert.Equal(t, plan.RecommendProceed, result.Recommendation)
	assert.InDelta(t, 1.0, result.Confidence, 0.0001)
	assert.Empty(t, result.Mismatches)
}

func TestVerifyMissingVariableIsMajor(t *testing.T) {
	in := verifier.Input{
		ExpectedVariables: []string{"df", "model"},
		VariablesAfter:    []string{"df"},
		Report:            plan.ExecutionReport{Status: plan.ExecOK},
	}
	result := verifier.Verify(in)
	require.Len(t, result.Mismatches, 1)
	assert.Equal(t, plan.MismatchVariableMissing, result.Mismatches[0].Type)
	assert.Equal(t, plan.SeverityMajor, result.Mismatches[0].Severity)
	assert.True(t, result.IsValid)
}

func TestVerifyOutputMismatchIsMinor(t *testing.T) {
	in := verifier.Input{
		ExpectedOutput: []*regexp.Regexp{regexp.MustCompile(`^done$`)},
		Report:         plan.ExecutionReport{Status: plan.ExecOK, Stdout: "not quite"},
	}
	result := verifier.Verify(in)
	require.Len(t, result.Mismatches, 1)
	assert.Equal(t, plan.MismatchOutputMismatch, result.Mismatches[0].Type)
	assert.Equal(t, plan.SeverityMinor, result.Mismatches[0].Severity)
}

func TestVerifyExceptionIsCriticalAndEscalates(t *testing.T) {
	in := verifier.Input{
		Report: plan.ExecutionReport{
			Status:           plan.ExecError,
			ExceptionKind:    "NameError",
			ExceptionMessage: "name 'x' is not defined",
		},
	}
	result := verifier.Verify(in)
	require.False(t, result.IsValid)
	assert.Equal(t, plan.RecommendEscalate, result.Recommendation)
	found := false
	for _, m := range result.Mismatches {
		if m.Type == plan.MismatchException {
			found = true
			assert.Equal(t, plan.SeverityCritical, m.Severity)
			assert.Contains(t, m.Suggestion, "variable")
		}
	}
	assert.True(t, found)
}

func TestVerifyModuleNotFoundAlsoEmitsImportFailed(t *testing.T) {
	in := verifier.Input{
		Report: plan.ExecutionReport{
			Status:           plan.ExecError,
			ExceptionKind:    "ModuleNotFoundError",
			ExceptionMessage: "No module named 'dask'",
		},
	}
	result := verifier.Verify(in)
	types := map[plan.MismatchType]bool{}
	for _, m := range result.Mismatches {
		types[m.Type] = true
	}
	assert.True(t, types[plan.MismatchException])
	assert.True(t, types[plan.MismatchImportFailed])
}

func TestVerifyRecommendationThresholds(t *testing.T) {
	// status ok fixes no_exceptions+execution_complete at 0.40; the
	// remaining 0.60 comes from output_match+variable_creation split evenly
	// across `matched` of `total` always-requested expectations, giving
	// confidence = 0.40 + 0.60*matched/total. Values are chosen well clear
	// of the 0.80/0.60/0.40 boundaries to avoid floating-point edge flakiness.
	assert.Equal(t, plan.RecommendProceed, recommendWithMatchFraction(t, 9, 10))  // 0.94
	assert.Equal(t, plan.RecommendWarning, recommendWithMatchFraction(t, 6, 10))  // 0.76
	assert.Equal(t, plan.RecommendWarning, recommendWithMatchFraction(t, 4, 10))  // 0.64
	assert.Equal(t, plan.RecommendReplan, recommendWithMatchFraction(t, 2, 10))   // 0.52
	assert.Equal(t, plan.RecommendReplan, recommendWithMatchFraction(t, 1, 10))   // 0.46
}

// recommendWithMatchFraction builds an all-ok execution report with `total`
// always-requested expected variables/output patterns, `matched` of which
// are actually satisfied, and returns the resulting recommendation.
func recommendWithMatchFraction(t *testing.T, matched, total int) plan.Recommendation {
	t.Helper()

	var expectedOutput []*regexp.Regexp
	var expectedVars []string
	var after []string
	for i := 0; i < total; i++ {
		varName := fmt.Sprintf("v%d", i)
		expectedVars = append(expectedVars, varName)
		if i < matched {
			expectedOutput = append(expectedOutput, regexp.MustCompile(`^x$`))
			after = append(after, varName)
		} else {
			expectedOutput = append(expectedOutput, regexp.MustCompile(`NOPE_NEVER_MATCHES`))
		}
	}

	in := verifier.Input{
		ExpectedOutput:    expectedOutput,
		ExpectedVariables: expectedVars,
		VariablesAfter:    after,
		Report:            plan.ExecutionReport{Status: plan.ExecOK, Stdout: "x"},
	}
	return verifier.Verify(in).Recommendation
}

func TestHistoryTracksMeanCriticalCountAndSlope(t *testing.T) {
	h := verifier.NewHistory(3)
	h.Record(plan.StateVerification{Confidence: 0.9})
	h.Record(plan.StateVerification{Confidence: 0.6, Mismatches: []plan.Mismatch{{Severity: plan.SeverityCritical}}})
	h.Record(plan.StateVerification{Confidence: 0.3, Mismatches: []plan.Mismatch{{Severity: plan.SeverityCritical}}})

	assert.InDelta(t, 0.6, h.Mean(), 0.0001)
	assert.Equal(t, 2, h.CriticalCount())
	assert.Less(t, h.Slope(), 0.0)
}

func TestHistoryRingOverwritesOldestEntry(t *testing.T) {
	h := verifier.NewHistory(2)
	h.Record(plan.StateVerification{Confidence: 1.0})
	h.Record(plan.StateVerification{Confidence: 0.0})
	h.Record(plan.StateVerification{Confidence: 0.5})

	assert.Equal(t, 2, h.Len())
	assert.InDelta(t, 0.25, h.Mean(), 0.0001)
}
