// Package validator implements the Code Validator: syntax checking,
// dependency extraction, undefined-name detection, a lightweight lint pass,
// and per-library API anti-pattern rules for one Python code snippet at a
// time, backed by a tree-sitter parse of the snippet.
package validator

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/cellmind/agentcore/runtime/notebook"
	"github.com/cellmind/agentcore/runtime/plan"
)

// Validator parses and validates Python snippets against notebook context.
// A Validator is not safe for concurrent use; callers needing concurrency
// should use one Validator per goroutine, since the underlying tree-sitter
// parser is stateful.
type Validator struct {
	parser *sitter.Parser
}

// New builds a Validator with a Python-configured tree-sitter parser.
func New() *Validator {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Validator{parser: p}
}

// Validate runs the full pipeline on one code snippet: preprocess shell/magic
// lines, parse, abort on syntax error, else extract dependencies and run
// undefined-name detection, lint, and API-pattern checks.
func (v *Validator) Validate(ctx context.Context, code string, nb notebook.Context) plan.ValidationResult {
	pre := preprocess(code)
	src := []byte(pre)

	tree, err := v.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		issue := plan.Issue{
			Severity: plan.IssueError,
			Category: plan.CategorySyntax,
			Message:  fmt.Sprintf("parse failed: %v", err),
		}
		return plan.ValidationResult{Issues: []plan.Issue{issue}, Summary: summarize([]plan.Issue{issue})}
	}
	defer tree.Close()

	root := tree.RootNode()
	if errNode := findErrorNode(root); errNode != nil {
		issue := plan.Issue{
			Severity: plan.IssueError,
			Category: plan.CategorySyntax,
			Line:     int(errNode.StartPoint().Row) + 1,
			Column:   int(errNode.StartPoint().Column) + 1,
			Message:  fmt.Sprintf("syntax error near %q", snippet(src, errNode)),
		}
		return plan.ValidationResult{Issues: []plan.Issue{issue}, Summary: summarize([]plan.Issue{issue})}
	}

	deps := extractDependencies(root, src)

	var issues []plan.Issue
	issues = append(issues, detectUndefinedNames(deps, nb)...)
	issues = append(issues, lint(deps)...)
	issues = append(issues, apiPatternChecks(deps, pre)...)
	issues = dedupeAndSort(issues)

	return plan.ValidationResult{
		Valid:   !hasErrorSeverity(issues),
		Issues:  issues,
		Summary: summarize(issues),
	}
}

func hasErrorSeverity(issues []plan.Issue) bool {
	for _, i := range issues {
		if i.Severity == plan.IssueError {
			return true
		}
	}
	return false
}

// preprocess replaces shell (!) and magic (%) lines with a no-op placeholder
// so the rest of the body still parses as plain Python, preserving line
// numbers for accurate diagnostics.
func preprocess(code string) string {
	lines := splitLines(code)
	for i, line := range lines {
		trimmed := trimLeftSpace(line)
		if len(trimmed) > 0 && (trimmed[0] == '!' || trimmed[0] == '%') {
			indent := line[:len(line)-len(trimmed)]
			lines[i] = indent + "pass"
		}
	}
	return joinLines(lines)
}

func findErrorNode(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := findErrorNode(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func snippet(src []byte, n *sitter.Node) string {
	start, end := n.StartByte(), n.EndByte()
	if int(end) > len(src) {
		end = uint32(len(src))
	}
	if start >= end {
		return ""
	}
	s := string(src[start:end])
	const maxLen = 40
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}

func summarize(issues []plan.Issue) string {
	if len(issues) == 0 {
		return "no issues found"
	}
	errs, warns := 0, 0
	for _, i := range issues {
		switch i.Severity {
		case plan.IssueError:
			errs++
		case plan.IssueWarning:
			warns++
		}
	}
	return fmt.Sprintf("%d error(s), %d warning(s)", errs, warns)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func trimLeftSpace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[i:]
}
