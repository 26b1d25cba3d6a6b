// Package orchestrator implements the Plan Orchestrator: the top-level
// state machine that drives a request from an initial Plan through
// per-step validation, dispatch, verification, and recovery. It composes
// every other runtime package (prompt assembly, salvage, schema
// validation, the error classifier, the code validator, the state
// verifier) but contains no LLM or parsing logic of its own.
package orchestrator

import (
	"context"

	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/notebook"
	"github.com/cellmind/agentcore/runtime/plan"
)

// LLMClient is the minimal surface the Orchestrator needs from the LLM
// Gateway: a single non-streaming completion call. Both model.Client and
// *gateway.Server satisfy it.
type LLMClient interface {
	Generate(ctx context.Context, req *model.Request) (*model.Response, error)
}

// Dispatcher sends a step's tool calls to the external executor and waits
// for its report. The Orchestrator never executes code itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, calls []model.ToolCall) (plan.ExecutionReport, error)
}

// Config bounds the recovery sub-state-machine.
type Config struct {
	// MaxRefinePerStep caps REFINE attempts for a single step before the
	// Orchestrator escalates. Zero uses the default of 3.
	MaxRefinePerStep int
	// MaxReplansPerRun caps REPLACE_STEP/REPLAN_REMAINING events across a
	// whole run before the Orchestrator emits a terminal final_answer
	// instead of continuing to recover. Zero uses the default of 5.
	MaxReplansPerRun int
}

const (
	defaultMaxRefinePerStep = 3
	defaultMaxReplansPerRun = 5
)

func (c Config) maxRefinePerStep() int {
	if c.MaxRefinePerStep > 0 {
		return c.MaxRefinePerStep
	}
	return defaultMaxRefinePerStep
}

func (c Config) maxReplansPerRun() int {
	if c.MaxReplansPerRun > 0 {
		return c.MaxReplansPerRun
	}
	return defaultMaxReplansPerRun
}

// RunInput is everything a full plan-through-completion run needs.
type RunInput struct {
	RequestText       string
	Notebook          notebook.Context
	InstalledPackages []string
	// Libraries are the Library Detector's picks for this request.
	Libraries []string
}
