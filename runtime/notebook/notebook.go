// Package notebook defines the read-only context the front-end supplies with
// every request. The orchestration core never mutates it; it flows into the
// Prompt Assembler and Code Validator as reference state about the running
// kernel.
package notebook

// CellKind identifies the kind of a notebook cell.
type CellKind string

const (
	CellKindCode     CellKind = "code"
	CellKindMarkdown CellKind = "markdown"
)

// RecentCell is a truncated view of a recently executed or edited cell.
type RecentCell struct {
	Kind   CellKind
	Source string
}

// Context is the read-only notebook snapshot supplied per request.
type Context struct {
	CellCount         int
	ImportedLibraries []string
	DefinedVariables  []string
	RecentCells       []RecentCell
}

// KnownName reports whether name is a variable the notebook already has
// defined, or a library it already imports. Used by the Code Validator's
// undefined-name detection.
func (c Context) KnownName(name string) bool {
	for _, v := range c.DefinedVariables {
		if v == name {
			return true
		}
	}
	for _, lib := range c.ImportedLibraries {
		if lib == name {
			return true
		}
	}
	return false
}
