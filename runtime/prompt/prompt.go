// Package prompt implements the Prompt Assembler: language-agnostic text
// templates for each LLM task the system performs, each ending in an
// explicit output-schema block naming the JSON shape the caller requires.
// The assembler never emits a field the caller didn't supply.
package prompt

import (
	"fmt"
	"strings"

	"github.com/cellmind/agentcore/runtime/notebook"
	"github.com/cellmind/agentcore/runtime/prompt/schema"
)

// PlanInput is what Plan needs to frame a planning request.
type PlanInput struct {
	RequestText       string
	Notebook          notebook.Context
	InstalledPackages []string
	// Libraries is the Library Detector's output: guides for these are
	// inlined, in order, when present in Guides.
	Libraries []string
}

// Plan frames the request, notebook context, installed packages, and any
// selected library guides, and mandates JSON output matching the Plan
// schema.
func Plan(in PlanInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task\n\n%s\n\n", strings.TrimSpace(in.RequestText))

	b.WriteString("# Notebook context\n\n")
	fmt.Fprintf(&b, "- Cell count: %d\n", in.Notebook.CellCount)
	writeList(&b, "Imported libraries", in.Notebook.ImportedLibraries)
	writeList(&b, "Defined variables", in.Notebook.DefinedVariables)
	if len(in.Notebook.RecentCells) > 0 {
		b.WriteString("- Recent cells:\n")
		for _, cell := range in.Notebook.RecentCells {
			fmt.Fprintf(&b, "  - [%s] %s\n", cell.Kind, truncate(cell.Source, 200))
		}
	}
	b.WriteString("\n")

	writeList(&b, "Installed packages", in.InstalledPackages)
	b.WriteString("\n")

	for _, lib := range in.Libraries {
		if guide, ok := Guides[lib]; ok {
			fmt.Fprintf(&b, "# %s API guide (reference only, do not execute)\n\n%s\n\n", lib, guide)
		}
	}

	b.WriteString("# Output\n\n")
	b.WriteString("Respond with a single JSON object matching this schema exactly, and nothing else:\n\n")
	fmt.Fprintf(&b, "```json\n%s\n```\n", schema.PlanJSON)

	return b.String()
}

// RefineInput is what Refine needs to ask for replacement toolCalls for one
// failed step.
type RefineInput struct {
	OriginalCode      string
	ErrorKind         string
	ErrorMessage      string
	Traceback         []string
	Attempt           int
	MaxAttempts       int
	InstalledPackages []string
}

// Refine frames the original code, the error it raised, the attempt count,
// and installed packages, and demands JSON with toolCalls.
func Refine(in RefineInput) string {
	var b strings.Builder

	b.WriteString("# Failed step\n\n")
	fmt.Fprintf(&b, "```python\n%s\n```\n\n", strings.TrimSpace(in.OriginalCode))

	b.WriteString("# Error\n\n")
	fmt.Fprintf(&b, "- Kind: %s\n- Message: %s\n", in.ErrorKind, in.ErrorMessage)
	if len(in.Traceback) > 0 {
		fmt.Fprintf(&b, "- Traceback:\n```\n%s\n```\n", strings.Join(in.Traceback, "\n"))
	}
	fmt.Fprintf(&b, "- Attempt %d of %d\n\n", in.Attempt, in.MaxAttempts)

	writeList(&b, "Installed packages", in.InstalledPackages)
	b.WriteString("\n")

	b.WriteString("# Output\n\n")
	b.WriteString("Produce replacement code that fixes the error above. Respond with a single JSON object matching this schema exactly, and nothing else:\n\n")
	fmt.Fprintf(&b, "```json\n%s\n```\n", schema.ToolCallsJSON)

	return b.String()
}

// ExecutedStep summarizes a step that already ran, for the Replan and
// FinalAnswer prompts.
type ExecutedStep struct {
	StepNumber  int
	Description string
	Succeeded   bool
}

// ReplanInput is what Replan needs to ask for an adaptive recovery decision.
type ReplanInput struct {
	OriginalRequest   string
	ExecutedSteps     []ExecutedStep
	FailedStepNumber  int
	FailedStepCode    string
	ErrorKind         string
	ErrorMessage      string
	Output            string
	InstalledPackages []string
}

// Replan frames the original request, executed-step history, the failed
// step, and error details, states the mandatory override rules, and demands
// JSON with analysis/decision/reasoning/changes.
func Replan(in ReplanInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Original request\n\n%s\n\n", strings.TrimSpace(in.OriginalRequest))

	b.WriteString("# Executed steps\n\n")
	for _, s := range in.ExecutedSteps {
		mark := "✅"
		if !s.Succeeded {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s step %d: %s\n", mark, s.StepNumber, s.Description)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "# Failed step %d\n\n```python\n%s\n```\n\n", in.FailedStepNumber, strings.TrimSpace(in.FailedStepCode))
	fmt.Fprintf(&b, "- Error kind: %s\n- Error message: %s\n", in.ErrorKind, in.ErrorMessage)
	if in.Output != "" {
		fmt.Fprintf(&b, "- Execution output:\n```\n%s\n```\n", in.Output)
	}
	b.WriteString("\n")

	writeList(&b, "Installed packages", in.InstalledPackages)
	b.WriteString("\n")

	b.WriteString("# Mandatory override rules\n\n")
	b.WriteString("- A ModuleNotFoundError or ImportError must always produce decision INSERT_STEPS.\n")
	b.WriteString("- Never replace a working library with a different one to work around an error.\n")
	b.WriteString("- Never abbreviate an install URL or package name.\n")
	b.WriteString("- An indirect-dependency error must patch the missing dependency, not the importing library: " +
		"e.g. dask failing with \"No module named 'pyarrow'\" means install pyarrow, not replace dask.\n\n")

	b.WriteString("# Output\n\n")
	b.WriteString("Respond with a single JSON object matching this schema exactly, and nothing else:\n\n")
	fmt.Fprintf(&b, "```json\n%s\n```\n", schema.ErrorAnalysisJSON)

	return b.String()
}

// ReflectionInput is what Reflection needs for a step-level self-evaluation.
type ReflectionInput struct {
	StepNumber      int
	Description     string
	ExpectedOutcome string
	ActualOutput    string
}

// Reflection asks the model to self-evaluate one step against its
// expected-outcome metadata, producing a StateVerification-shaped object.
func Reflection(in ReflectionInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Step %d\n\n%s\n\n", in.StepNumber, strings.TrimSpace(in.Description))
	fmt.Fprintf(&b, "Expected outcome: %s\n\n", in.ExpectedOutcome)
	fmt.Fprintf(&b, "Actual output:\n```\n%s\n```\n\n", in.ActualOutput)

	b.WriteString("# Output\n\n")
	b.WriteString("Evaluate whether the actual output satisfies the expected outcome. Respond with a single JSON object matching this schema exactly, and nothing else:\n\n")
	fmt.Fprintf(&b, "```json\n%s\n```\n", schema.StateVerificationJSON)

	return b.String()
}

// FinalAnswerInput is what FinalAnswer needs to summarize a completed run.
type FinalAnswerInput struct {
	OriginalRequest string
	ExecutedSteps   []ExecutedStep
	Outputs         []string
}

// FinalAnswer produces a concise, plain-text (non-JSON) summary prompt of
// what was executed and what it produced.
func FinalAnswer(in FinalAnswerInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Original request\n\n%s\n\n", strings.TrimSpace(in.OriginalRequest))

	b.WriteString("# Executed steps\n\n")
	for _, s := range in.ExecutedSteps {
		mark := "✅"
		if !s.Succeeded {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s step %d: %s\n", mark, s.StepNumber, s.Description)
	}
	b.WriteString("\n")

	if len(in.Outputs) > 0 {
		b.WriteString("# Outputs\n\n")
		for _, o := range in.Outputs {
			fmt.Fprintf(&b, "```\n%s\n```\n", o)
		}
		b.WriteString("\n")
	}

	b.WriteString("# Output\n\n")
	b.WriteString("Write a concise, user-facing summary of what was done and what the user should take away. Plain text, no JSON.\n")

	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(b, "- %s: (none)\n", label)
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(items, ", "))
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
