package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/plan"
)

// Wire types mirror runtime/prompt/schema's JSON shapes with explicit json
// tags; they exist only to bridge camelCase LLM output into this package's
// PascalCase domain types (runtime/plan, runtime/model), the same
// shape-then-translate split used elsewhere in this codebase for
// tagged-union message parts.

type wireCheckpoint struct {
	ExpectedOutcome    string   `json:"expectedOutcome"`
	ExpectedVariables  []string `json:"expectedVariables"`
	ValidationPatterns []string `json:"validationPatterns"`
	Risk               string   `json:"risk"`
}

type wireStep struct {
	StepNumber   int             `json:"stepNumber"`
	Description  string          `json:"description"`
	Dependencies []int           `json:"dependencies"`
	ToolCalls    []wireToolCall  `json:"toolCalls"`
	Checkpoint   *wireCheckpoint `json:"checkpoint"`
}

type wirePlan struct {
	TotalSteps int        `json:"totalSteps"`
	Steps      []wireStep `json:"steps"`
}

type wireToolCall struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
}

type wireToolCallsResponse struct {
	ToolCalls []wireToolCall `json:"toolCalls"`
	Reasoning string         `json:"reasoning"`
}

type wireChanges struct {
	NewSteps         []wireStep `json:"newSteps"`
	ReplacementStep  *wireStep  `json:"replacementStep"`
	RemainingSteps   []wireStep `json:"remainingSteps"`
	SystemDependency string     `json:"systemDependency"`
}

type wireErrorAnalysis struct {
	Decision       string      `json:"decision"`
	Analysis       string      `json:"analysis"`
	RootCause      string      `json:"rootCause"`
	Reasoning      string      `json:"reasoning"`
	MissingPackage string      `json:"missingPackage"`
	Confidence     float64     `json:"confidence"`
	Changes        wireChanges `json:"changes"`
}

func decodePlan(raw json.RawMessage) (plan.Plan, error) {
	var w wirePlan
	if err := json.Unmarshal(raw, &w); err != nil {
		return plan.Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	steps, err := decodeSteps(w.Steps)
	if err != nil {
		return plan.Plan{}, err
	}
	return plan.Plan{TotalSteps: w.TotalSteps, Steps: steps}, nil
}

func decodeSteps(in []wireStep) ([]plan.Step, error) {
	steps := make([]plan.Step, 0, len(in))
	for i, ws := range in {
		tcs, err := decodeToolCallList(ws.ToolCalls)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		step := plan.Step{
			StepNumber:   ws.StepNumber,
			Description:  ws.Description,
			ToolCalls:    tcs,
			Dependencies: ws.Dependencies,
		}
		if ws.Checkpoint != nil {
			step.Checkpoint = &plan.Checkpoint{
				ExpectedOutcome:    ws.Checkpoint.ExpectedOutcome,
				ExpectedVariables:  ws.Checkpoint.ExpectedVariables,
				ValidationPatterns: ws.Checkpoint.ValidationPatterns,
				Risk:               plan.RiskLevel(ws.Checkpoint.Risk),
			}
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func decodeToolCallList(in []wireToolCall) ([]model.ToolCall, error) {
	out := make([]model.ToolCall, 0, len(in))
	for i, wc := range in {
		tc, err := decodeToolCall(wc)
		if err != nil {
			return nil, fmt.Errorf("toolCalls[%d]: %w", i, err)
		}
		out = append(out, tc)
	}
	return out, nil
}

func decodeToolCall(wc wireToolCall) (model.ToolCall, error) {
	name := model.ToolName(wc.Name)
	params, err := decodeToolParameters(name, wc.Parameters)
	if err != nil {
		return model.ToolCall{}, err
	}
	return model.ToolCall{Name: name, Parameters: params}, nil
}

func decodeToolParameters(name model.ToolName, raw json.RawMessage) (model.ToolParameters, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch name {
	case model.ToolJupyterCell:
		var p model.JupyterCellParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("jupyter_cell parameters: %w", err)
		}
		p.Code = model.SanitizeJupyterCode(p.Code)
		return p, nil
	case model.ToolMarkdown:
		var p model.MarkdownParams
		return p, unmarshalInto(raw, &p, "markdown")
	case model.ToolFinalAnswer:
		var p model.FinalAnswerParams
		return p, unmarshalInto(raw, &p, "final_answer")
	case model.ToolWriteFile:
		var p model.WriteFileParams
		return p, unmarshalInto(raw, &p, "write_file")
	case model.ToolReadFile:
		var p model.ReadFileParams
		return p, unmarshalInto(raw, &p, "read_file")
	case model.ToolListFiles:
		var p model.ListFilesParams
		return p, unmarshalInto(raw, &p, "list_files")
	case model.ToolExecuteCommand:
		var p model.ExecuteCommandParams
		return p, unmarshalInto(raw, &p, "execute_command")
	case model.ToolSearchWorkspace:
		var p model.SearchWorkspaceParams
		return p, unmarshalInto(raw, &p, "search_workspace")
	case model.ToolSearchNotebookCells:
		var p model.SearchNotebookCellsParams
		return p, unmarshalInto(raw, &p, "search_notebook_cells")
	case model.ToolCheckResource:
		var p model.CheckResourceParams
		return p, unmarshalInto(raw, &p, "check_resource")
	default:
		return nil, fmt.Errorf("unknown tool name %q", name)
	}
}

// unmarshalInto decodes raw into dst (a pointer to one of the
// model.*Params structs) and returns dst's value, boxed back into
// model.ToolParameters by the caller; it exists purely to keep the
// decodeToolParameters switch to one line per tool instead of three.
func unmarshalInto(raw json.RawMessage, dst any, tool string) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s parameters: %w", tool, err)
	}
	return nil
}

func decodeToolCallsResponse(raw json.RawMessage) ([]model.ToolCall, error) {
	var w wireToolCallsResponse
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode toolCalls response: %w", err)
	}
	return decodeToolCallList(w.ToolCalls)
}

func decodeErrorAnalysis(raw json.RawMessage) (plan.ErrorAnalysis, error) {
	var w wireErrorAnalysis
	if err := json.Unmarshal(raw, &w); err != nil {
		return plan.ErrorAnalysis{}, fmt.Errorf("decode error analysis: %w", err)
	}

	changes := plan.ErrorAnalysisChanges{SystemDependency: w.Changes.SystemDependency}
	if len(w.Changes.NewSteps) > 0 {
		steps, err := decodeSteps(w.Changes.NewSteps)
		if err != nil {
			return plan.ErrorAnalysis{}, err
		}
		changes.NewSteps = steps
	}
	if w.Changes.ReplacementStep != nil {
		steps, err := decodeSteps([]wireStep{*w.Changes.ReplacementStep})
		if err != nil {
			return plan.ErrorAnalysis{}, err
		}
		changes.ReplacementStep = &steps[0]
	}
	if len(w.Changes.RemainingSteps) > 0 {
		steps, err := decodeSteps(w.Changes.RemainingSteps)
		if err != nil {
			return plan.ErrorAnalysis{}, err
		}
		changes.RemainingSteps = steps
	}

	rootCause := w.RootCause
	if rootCause == "" {
		rootCause = w.Analysis
	}

	return plan.ErrorAnalysis{
		Decision:       plan.RecoveryDecision(w.Decision),
		RootCause:      rootCause,
		Reasoning:      w.Reasoning,
		MissingPackage: w.MissingPackage,
		Changes:        changes,
		Confidence:     w.Confidence,
		UsedLLM:        true,
	}, nil
}
