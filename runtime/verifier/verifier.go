// Package verifier implements the State Verifier: it diffs a step's
// expectations against what the executor actually reported and produces a
// confidence-scored recommendation for whether the run should proceed.
package verifier

import (
	"fmt"
	"regexp"

	"github.com/cellmind/agentcore/runtime/plan"
)

// Input is one step's expectations plus what the executor reported.
type Input struct {
	StepNumber        int
	ExpectedOutput    []*regexp.Regexp
	ExpectedVariables []string
	VariablesBefore   []string
	VariablesAfter    []string
	Report            plan.ExecutionReport
}

const (
	weightOutputMatch       = 0.30
	weightVariableCreation  = 0.30
	weightNoExceptions      = 0.25
	weightExecutionComplete = 0.15
)

// kindSuggestions gives a kind-specific remediation hint for an
// EXCEPTION_OCCURRED mismatch. Unknown kinds fall back to a generic hint.
var kindSuggestions = map[string]string{
	"ModuleNotFoundError": "pip install the missing package",
	"ImportError":         "pip install the missing package",
	"NameError":           "check variable is defined before use",
	"FileNotFoundError":   "check path exists and is reachable from the kernel's working directory",
	"KeyError":            "check the key exists before indexing",
	"TypeError":           "check argument types match the callable's signature",
	"ValueError":          "check the value is in the expected range or format",
}

// Verify computes mismatches and a confidence-scored recommendation for one
// step's execution report against its checkpoint expectations.
func Verify(in Input) plan.StateVerification {
	mismatches := extractMismatches(in)
	score := confidence(in)
	return plan.StateVerification{
		IsValid:        !anyCritical(mismatches),
		Confidence:     score,
		Recommendation: recommend(score, mismatches),
		Mismatches:     mismatches,
	}
}

func extractMismatches(in Input) []plan.Mismatch {
	var mismatches []plan.Mismatch

	post := toSet(in.VariablesAfter)
	for _, v := range in.ExpectedVariables {
		if !post[v] {
			mismatches = append(mismatches, plan.Mismatch{
				Type:        plan.MismatchVariableMissing,
				Severity:    plan.SeverityMajor,
				Description: fmt.Sprintf("expected variable %q was not created", v),
			})
		}
	}

	for _, re := range in.ExpectedOutput {
		if !re.MatchString(in.Report.Stdout) {
			mismatches = append(mismatches, plan.Mismatch{
				Type:        plan.MismatchOutputMismatch,
				Severity:    plan.SeverityMinor,
				Description: fmt.Sprintf("output does not match expected pattern %q", re.String()),
			})
		}
	}

	if in.Report.Status == plan.ExecError {
		mismatches = append(mismatches, plan.Mismatch{
			Type:        plan.MismatchException,
			Severity:    plan.SeverityCritical,
			Description: fmt.Sprintf("%s: %s", in.Report.ExceptionKind, in.Report.ExceptionMessage),
			Suggestion:  suggestionFor(in.Report.ExceptionKind),
		})

		if in.Report.ExceptionKind == "ModuleNotFoundError" || in.Report.ExceptionKind == "ImportError" {
			mismatches = append(mismatches, plan.Mismatch{
				Type:        plan.MismatchImportFailed,
				Severity:    plan.SeverityMajor,
				Description: fmt.Sprintf("import failed: %s", extractModuleName(in.Report.ExceptionMessage)),
			})
		}
	}

	return mismatches
}

func suggestionFor(kind string) string {
	if s, ok := kindSuggestions[kind]; ok {
		return s
	}
	return "inspect the traceback and refine the step"
}

var quotedModulePattern = regexp.MustCompile(`'([^']+)'`)

func extractModuleName(message string) string {
	if m := quotedModulePattern.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return message
}

func confidence(in Input) float64 {
	ok := in.Report.Status == plan.ExecOK

	outputMatch := 1.0
	if n := len(in.ExpectedOutput); n > 0 {
		matched := 0
		for _, re := range in.ExpectedOutput {
			if re.MatchString(in.Report.Stdout) {
				matched++
			}
		}
		outputMatch = float64(matched) / float64(n)
	}

	variableCreation := 1.0
	if n := len(in.ExpectedVariables); n > 0 {
		post := toSet(in.VariablesAfter)
		present := 0
		for _, v := range in.ExpectedVariables {
			if post[v] {
				present++
			}
		}
		variableCreation = float64(present) / float64(n)
	}

	noExceptions := 0.0
	executionComplete := 0.0
	if ok {
		noExceptions = 1.0
		executionComplete = 1.0
	}

	return weightOutputMatch*outputMatch +
		weightVariableCreation*variableCreation +
		weightNoExceptions*noExceptions +
		weightExecutionComplete*executionComplete
}

func recommend(score float64, mismatches []plan.Mismatch) plan.Recommendation {
	if score < 0.40 || anyCritical(mismatches) {
		return plan.RecommendEscalate
	}
	switch {
	case score >= 0.80:
		return plan.RecommendProceed
	case score >= 0.60:
		return plan.RecommendWarning
	default:
		return plan.RecommendReplan
	}
}

func anyCritical(mismatches []plan.Mismatch) bool {
	for _, m := range mismatches {
		if m.Severity == plan.SeverityCritical {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}
