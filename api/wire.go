// Package api implements the HTTP transport boundary: JSON request/response
// envelopes and an http.ServeMux wiring each endpoint to the orchestration
// core's components. No business logic lives here; every handler does
// nothing but decode, call a runtime/* component, and encode.
package api

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/plan"
	"github.com/cellmind/agentcore/runtime/verifier"
)

// Wire types mirror the HTTP JSON contract with explicit camelCase tags,
// translating to/from the PascalCase, tag-free domain types the runtime
// packages use internally — the same shape-then-translate split
// runtime/orchestrator's decode.go uses for LLM wire payloads.

type wireToolCall struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
}

type wireCheckpoint struct {
	ExpectedOutcome    string   `json:"expectedOutcome"`
	ExpectedVariables  []string `json:"expectedVariables"`
	ValidationPatterns []string `json:"validationPatterns"`
	Risk               string   `json:"risk"`
}

type wireStep struct {
	StepNumber   int             `json:"stepNumber"`
	Description  string          `json:"description"`
	ToolCalls    []wireToolCall  `json:"toolCalls"`
	Dependencies []int           `json:"dependencies"`
	Checkpoint   *wireCheckpoint `json:"checkpoint,omitempty"`
	State        string          `json:"state,omitempty"`
}

type wirePlan struct {
	TotalSteps int        `json:"totalSteps"`
	Steps      []wireStep `json:"steps"`
}

func encodeToolCall(tc model.ToolCall) wireToolCall {
	params, err := json.Marshal(tc.Parameters)
	if err != nil {
		params = json.RawMessage("{}")
	}
	return wireToolCall{Name: string(tc.Name), Parameters: params}
}

func decodeToolCall(wc wireToolCall) (model.ToolCall, error) {
	name := model.ToolName(wc.Name)
	raw := wc.Parameters
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var params model.ToolParameters
	switch name {
	case model.ToolJupyterCell:
		var p model.JupyterCellParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return model.ToolCall{}, fmt.Errorf("jupyter_cell parameters: %w", err)
		}
		p.Code = model.SanitizeJupyterCode(p.Code)
		params = p
	case model.ToolMarkdown:
		var p model.MarkdownParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return model.ToolCall{}, err
		}
		params = p
	case model.ToolFinalAnswer:
		var p model.FinalAnswerParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return model.ToolCall{}, err
		}
		params = p
	case model.ToolWriteFile:
		var p model.WriteFileParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return model.ToolCall{}, err
		}
		params = p
	case model.ToolReadFile:
		var p model.ReadFileParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return model.ToolCall{}, err
		}
		params = p
	case model.ToolListFiles:
		var p model.ListFilesParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return model.ToolCall{}, err
		}
		params = p
	case model.ToolExecuteCommand:
		var p model.ExecuteCommandParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return model.ToolCall{}, err
		}
		params = p
	case model.ToolSearchWorkspace:
		var p model.SearchWorkspaceParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return model.ToolCall{}, err
		}
		params = p
	case model.ToolSearchNotebookCells:
		var p model.SearchNotebookCellsParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return model.ToolCall{}, err
		}
		params = p
	case model.ToolCheckResource:
		var p model.CheckResourceParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return model.ToolCall{}, err
		}
		params = p
	default:
		return model.ToolCall{}, fmt.Errorf("unknown tool name %q", name)
	}
	return model.ToolCall{Name: name, Parameters: params}, nil
}

func encodeStep(s plan.Step) wireStep {
	ws := wireStep{
		StepNumber:   s.StepNumber,
		Description:  s.Description,
		Dependencies: s.Dependencies,
		State:        string(s.State),
	}
	for _, tc := range s.ToolCalls {
		ws.ToolCalls = append(ws.ToolCalls, encodeToolCall(tc))
	}
	if s.Checkpoint != nil {
		ws.Checkpoint = &wireCheckpoint{
			ExpectedOutcome:    s.Checkpoint.ExpectedOutcome,
			ExpectedVariables:  s.Checkpoint.ExpectedVariables,
			ValidationPatterns: s.Checkpoint.ValidationPatterns,
			Risk:               string(s.Checkpoint.Risk),
		}
	}
	return ws
}

func decodeStep(ws wireStep) (plan.Step, error) {
	step := plan.Step{
		StepNumber:   ws.StepNumber,
		Description:  ws.Description,
		Dependencies: ws.Dependencies,
	}
	for i, wc := range ws.ToolCalls {
		tc, err := decodeToolCall(wc)
		if err != nil {
			return plan.Step{}, fmt.Errorf("toolCalls[%d]: %w", i, err)
		}
		step.ToolCalls = append(step.ToolCalls, tc)
	}
	if ws.Checkpoint != nil {
		step.Checkpoint = &plan.Checkpoint{
			ExpectedOutcome:    ws.Checkpoint.ExpectedOutcome,
			ExpectedVariables:  ws.Checkpoint.ExpectedVariables,
			ValidationPatterns: ws.Checkpoint.ValidationPatterns,
			Risk:               plan.RiskLevel(ws.Checkpoint.Risk),
		}
	}
	return step, nil
}

func encodePlan(p plan.Plan) wirePlan {
	wp := wirePlan{TotalSteps: p.TotalSteps}
	for _, s := range p.Steps {
		wp.Steps = append(wp.Steps, encodeStep(s))
	}
	return wp
}

type wireExecutedStep struct {
	StepNumber  int    `json:"stepNumber"`
	Description string `json:"description"`
	Succeeded   bool   `json:"succeeded"`
}

type wireChanges struct {
	NewSteps         []wireStep `json:"newSteps,omitempty"`
	ReplacementStep  *wireStep  `json:"replacementStep,omitempty"`
	RemainingSteps   []wireStep `json:"remainingSteps,omitempty"`
	SystemDependency string     `json:"systemDependency,omitempty"`
}

func encodeChanges(c plan.ErrorAnalysisChanges) wireChanges {
	wc := wireChanges{SystemDependency: c.SystemDependency}
	for _, s := range c.NewSteps {
		wc.NewSteps = append(wc.NewSteps, encodeStep(s))
	}
	if c.ReplacementStep != nil {
		s := encodeStep(*c.ReplacementStep)
		wc.ReplacementStep = &s
	}
	for _, s := range c.RemainingSteps {
		wc.RemainingSteps = append(wc.RemainingSteps, encodeStep(s))
	}
	return wc
}

type wireMismatch struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

func encodeStateVerification(sv plan.StateVerification) map[string]any {
	mismatches := make([]wireMismatch, 0, len(sv.Mismatches))
	for _, m := range sv.Mismatches {
		mismatches = append(mismatches, wireMismatch{
			Type:        string(m.Type),
			Severity:    string(m.Severity),
			Description: m.Description,
			Suggestion:  m.Suggestion,
		})
	}
	return map[string]any{
		"verified":       sv.IsValid,
		"confidence":     sv.Confidence,
		"recommendation": sv.Recommendation,
		"discrepancies":  mismatches,
	}
}

type verifyStateRequest struct {
	StepNumber        int      `json:"stepNumber"`
	ExpectedOutput    []string `json:"expectedOutput"`
	ExpectedVariables []string `json:"expectedVariables"`
	VariablesBefore   []string `json:"variablesBefore"`
	VariablesAfter    []string `json:"variablesAfter"`
	Report            struct {
		Status            string   `json:"status"`
		Stdout            string   `json:"stdout"`
		Stderr            string   `json:"stderr"`
		ExceptionKind     string   `json:"exceptionKind"`
		ExceptionMessage  string   `json:"exceptionMessage"`
		Traceback         []string `json:"traceback"`
		NewVariables      []string `json:"newVariables"`
		InstalledPackages []string `json:"installedPackages"`
	} `json:"report"`
}

func (r verifyStateRequest) toInput() (verifier.Input, error) {
	patterns := make([]*regexp.Regexp, 0, len(r.ExpectedOutput))
	for _, p := range r.ExpectedOutput {
		re, err := regexp.Compile(p)
		if err != nil {
			return verifier.Input{}, fmt.Errorf("expectedOutput pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return verifier.Input{
		StepNumber:        r.StepNumber,
		ExpectedOutput:    patterns,
		ExpectedVariables: r.ExpectedVariables,
		VariablesBefore:   r.VariablesBefore,
		VariablesAfter:    r.VariablesAfter,
		Report: plan.ExecutionReport{
			StepNumber:        r.StepNumber,
			Status:            plan.ExecStatus(r.Report.Status),
			Stdout:            r.Report.Stdout,
			Stderr:            r.Report.Stderr,
			ExceptionKind:     r.Report.ExceptionKind,
			ExceptionMessage:  r.Report.ExceptionMessage,
			Traceback:         r.Report.Traceback,
			NewVariables:      r.Report.NewVariables,
			InstalledPackages: r.Report.InstalledPackages,
		},
	}, nil
}

type reportExecutionRequest struct {
	StepNumber        int      `json:"stepNumber"`
	Status            string   `json:"status"`
	Stdout            string   `json:"stdout"`
	Stderr            string   `json:"stderr"`
	ExceptionKind     string   `json:"exceptionKind"`
	ExceptionMessage  string   `json:"exceptionMessage"`
	Traceback         []string `json:"traceback"`
	NewVariables      []string `json:"newVariables"`
	InstalledPackages []string `json:"installedPackages"`
}

func (r reportExecutionRequest) toReport() plan.ExecutionReport {
	return plan.ExecutionReport{
		StepNumber:        r.StepNumber,
		Status:            plan.ExecStatus(r.Status),
		Stdout:            r.Stdout,
		Stderr:            r.Stderr,
		ExceptionKind:     r.ExceptionKind,
		ExceptionMessage:  r.ExceptionMessage,
		Traceback:         r.Traceback,
		NewVariables:      r.NewVariables,
		InstalledPackages: r.InstalledPackages,
	}
}
