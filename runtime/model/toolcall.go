package model

import "strings"

// ToolName identifies a tool in the fixed tool vocabulary the Orchestrator
// dispatches. Tool calls form a tagged union: dispatch on Name, decode
// Parameters into the matching typed struct below.
type ToolName string

const (
	ToolJupyterCell         ToolName = "jupyter_cell"
	ToolMarkdown            ToolName = "markdown"
	ToolFinalAnswer         ToolName = "final_answer"
	ToolWriteFile           ToolName = "write_file"
	ToolReadFile            ToolName = "read_file"
	ToolListFiles           ToolName = "list_files"
	ToolExecuteCommand      ToolName = "execute_command"
	ToolSearchWorkspace     ToolName = "search_workspace"
	ToolSearchNotebookCells ToolName = "search_notebook_cells"
	ToolCheckResource       ToolName = "check_resource"
)

// ToolCall is one step's requested action. Exactly one of the typed
// parameter structs below is meaningful for a given Name; Parameters holds
// whichever was supplied.
type ToolCall struct {
	Name       ToolName
	Parameters ToolParameters
}

// ToolParameters is implemented by every concrete parameter struct so
// ToolCall.Parameters can hold any of them without reflection at call
// sites that only care about a subset of tools (for example the
// sanitizer, which only looks at JupyterCellParams).
type ToolParameters interface {
	isToolParameters()
}

type (
	// JupyterCellParams runs code in the notebook kernel. Code must already be
	// sanitized: it must not begin or end with a fenced code-block delimiter.
	JupyterCellParams struct {
		Code string
	}

	// MarkdownParams inserts a markdown cell.
	MarkdownParams struct {
		Content string
	}

	// FinalAnswerParams terminates the plan with a user-facing answer. Valid
	// only on the step whose number equals the plan's total step count.
	FinalAnswerParams struct {
		Answer  string
		Summary string
	}

	// WriteFileParams writes a file in the workspace.
	WriteFileParams struct {
		Path    string
		Content string
	}

	// ReadFileParams reads a file from the workspace.
	ReadFileParams struct {
		Path string
	}

	// ListFilesParams lists files under a workspace path.
	ListFilesParams struct {
		Path string
	}

	// ExecuteCommandParams runs a shell command in the executor's sandbox.
	ExecuteCommandParams struct {
		Command string
	}

	// SearchWorkspaceParams searches file contents in the workspace.
	SearchWorkspaceParams struct {
		Query string
	}

	// SearchNotebookCellsParams searches prior notebook cell source/output.
	SearchNotebookCellsParams struct {
		Query string
	}

	// CheckResourceParams probes availability of an external resource (a
	// file, URL, or service) before a step depends on it.
	CheckResourceParams struct {
		Resource string
	}
)

func (JupyterCellParams) isToolParameters()         {}
func (MarkdownParams) isToolParameters()             {}
func (FinalAnswerParams) isToolParameters()          {}
func (WriteFileParams) isToolParameters()            {}
func (ReadFileParams) isToolParameters()             {}
func (ListFilesParams) isToolParameters()            {}
func (ExecuteCommandParams) isToolParameters()       {}
func (SearchWorkspaceParams) isToolParameters()      {}
func (SearchNotebookCellsParams) isToolParameters()  {}
func (CheckResourceParams) isToolParameters()        {}

// SanitizeJupyterCode strips a leading/trailing fenced code-block delimiter
// (``` or ```python, etc.) from code bound for jupyter_cell.code, so a
// dispatched jupyter_cell body never begins or ends with a fenced code
// delimiter. It is idempotent.
func SanitizeJupyterCode(code string) string {
	s := strings.TrimSpace(code)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(strings.TrimRight(s, "\n\t "), "```")
	return strings.TrimRight(s, "\n")
}
