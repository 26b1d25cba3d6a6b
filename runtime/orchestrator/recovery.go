package orchestrator

import (
	"time"

	"github.com/cellmind/agentcore/runtime/classifier"
	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/plan"
)

// classifyError runs the deterministic classifier and, when the case is
// ambiguous enough to consult the LLM fallback, compares the two results.
// A ModuleNotFoundError or ImportError must always resolve to INSERT_STEPS;
// if the LLM-influenced result disagrees, the deterministic decision wins
// and the override is recorded on o.Audit.
func (o *Orchestrator) classifyError(in classifier.Input, stepNumber int) plan.ErrorAnalysis {
	deterministic := classifier.Classify(in, o.InstallCmd, nil)

	if o.Fallback == nil || !classifier.ShouldUseLLMFallback(in) {
		return deterministic
	}

	llmInfluenced := classifier.Classify(in, o.InstallCmd, o.Fallback)

	kind := classifier.Normalize(in.Kind)
	isImportKind := kind == "ModuleNotFoundError" || kind == "ImportError"
	if isImportKind && llmInfluenced.Decision != deterministic.Decision {
		if o.Audit != nil {
			o.Audit.Record(OverrideEvent{
				Time:          time.Now(),
				StepNumber:    stepNumber,
				ErrorKind:     kind,
				Deterministic: deterministic.Decision,
				LLMInfluenced: llmInfluenced.Decision,
				Reason:        "ModuleNotFoundError/ImportError must always resolve to INSERT_STEPS",
			})
		}
		return deterministic
	}
	return llmInfluenced
}

// spliceAndRenumber takes a full combined step list (some steps carrying
// their original StepNumber, some freshly produced with no numbering
// significance) and returns it with StepNumber reassigned 1..N by position
// and Dependencies remapped through the old step numbers actually seen.
// The first occurrence of a given old step number wins the mapping, which
// favors the untouched executed prefix over any LLM-supplied overlap in a
// replacement segment.
func spliceAndRenumber(combined []plan.Step) []plan.Step {
	oldToNew := make(map[int]int, len(combined))
	for i, s := range combined {
		if s.StepNumber == 0 {
			continue
		}
		if _, exists := oldToNew[s.StepNumber]; !exists {
			oldToNew[s.StepNumber] = i + 1
		}
	}

	out := make([]plan.Step, len(combined))
	for i, s := range combined {
		ns := s
		ns.StepNumber = i + 1
		if len(s.Dependencies) > 0 {
			deps := make([]int, 0, len(s.Dependencies))
			for _, d := range s.Dependencies {
				if nd, ok := oldToNew[d]; ok && nd < ns.StepNumber {
					deps = append(deps, nd)
				}
			}
			ns.Dependencies = deps
		}
		out[i] = ns
	}
	return out
}

// applyInsertSteps splices newSteps immediately before the step numbered
// beforeStep, with no LLM call required by the caller: INSERT_STEPS is
// produced directly by the classifier's deterministic table in the common
// case (a missing-package install step).
func applyInsertSteps(p plan.Plan, beforeStep int, newSteps []plan.Step) plan.Plan {
	idx := beforeStep - 1
	combined := make([]plan.Step, 0, len(p.Steps)+len(newSteps))
	combined = append(combined, p.Steps[:idx]...)
	combined = append(combined, newSteps...)
	combined = append(combined, p.Steps[idx:]...)
	steps := spliceAndRenumber(combined)
	return plan.Plan{TotalSteps: len(steps), Steps: steps}
}

// applyReplaceStep substitutes one step's contents in place. The step count
// and every other step's numbering is unchanged, so the replacement keeps
// the original step's StepNumber and Dependencies rather than trusting
// whatever the LLM echoed back for them.
func applyReplaceStep(p plan.Plan, stepNumber int, replacement plan.Step) plan.Plan {
	steps := make([]plan.Step, len(p.Steps))
	copy(steps, p.Steps)
	idx := stepNumber - 1
	replacement.StepNumber = p.Steps[idx].StepNumber
	replacement.Dependencies = p.Steps[idx].Dependencies
	replacement.State = plan.StepPending
	steps[idx] = replacement
	return plan.Plan{TotalSteps: len(steps), Steps: steps}
}

// applyReplanRemaining rewrites the plan's suffix starting at (and
// including) fromStep with remaining, keeping the already-executed prefix
// untouched. remaining is expected to number its steps consistently with
// the original plan's absolute numbering (the Replan prompt tells the
// model which step number failed), so no local-to-absolute remapping is
// attempted beyond the same defensive spliceAndRenumber pass every other
// recovery path goes through.
func applyReplanRemaining(p plan.Plan, fromStep int, remaining []plan.Step) plan.Plan {
	idx := fromStep - 1
	combined := make([]plan.Step, 0, idx+len(remaining))
	combined = append(combined, p.Steps[:idx]...)
	combined = append(combined, remaining...)
	steps := spliceAndRenumber(combined)
	return plan.Plan{TotalSteps: len(steps), Steps: steps}
}

// finalAnswerStep synthesizes a terminal final_answer step used whenever a
// recovery bound is exhausted: the run stops adapting and reports what it
// got done instead of looping forever.
func finalAnswerStep(stepNumber int, answer, summary string) plan.Step {
	return plan.Step{
		StepNumber:  stepNumber,
		Description: "summarize work completed before recovery bounds were exhausted",
		ToolCalls: []model.ToolCall{{
			Name:       model.ToolFinalAnswer,
			Parameters: model.FinalAnswerParams{Answer: answer, Summary: summary},
		}},
	}
}
