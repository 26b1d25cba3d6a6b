package validator

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/cellmind/agentcore/runtime/notebook"
	"github.com/cellmind/agentcore/runtime/plan"
)

var pythonBuiltins = map[string]bool{
	"print": true, "len": true, "range": true, "str": true, "int": true, "float": true,
	"bool": true, "list": true, "dict": true, "set": true, "tuple": true, "frozenset": true,
	"bytes": true, "bytearray": true, "object": true, "type": true, "isinstance": true,
	"issubclass": true, "super": true, "open": true, "input": true, "enumerate": true,
	"zip": true, "map": true, "filter": true, "sorted": true, "reversed": true, "sum": true,
	"min": true, "max": true, "abs": true, "round": true, "pow": true, "divmod": true,
	"all": true, "any": true, "iter": true, "next": true, "hasattr": true, "getattr": true,
	"setattr": true, "delattr": true, "id": true, "hash": true, "repr": true, "format": true,
	"vars": true, "dir": true, "globals": true, "locals": true, "callable": true,
	"staticmethod": true, "classmethod": true, "property": true, "None": true, "True": true,
	"False": true, "self": true, "cls": true, "Exception": true, "BaseException": true,
	"ValueError": true, "TypeError": true, "KeyError": true, "IndexError": true,
	"AttributeError": true, "NameError": true, "RuntimeError": true, "StopIteration": true,
	"ImportError": true, "ModuleNotFoundError": true, "FileNotFoundError": true,
	"OSError": true, "IOError": true, "NotImplementedError": true, "ZeroDivisionError": true,
	"KeyboardInterrupt": true, "AssertionError": true, "Ellipsis": true, "NotImplemented": true,
	"__name__": true, "__file__": true, "__doc__": true, "_": true,
}

// commonAliases covers the handful of import aliases so conventional they
// show up unqualified in snippets the notebook context hasn't seen yet
// (e.g. a helper cell referencing pd before the import cell ran in this
// validator's view, since notebooks execute cells out of textual order).
var commonAliases = map[string]bool{
	"pd": true, "np": true, "plt": true, "sns": true, "tf": true, "torch": true,
	"sp": true, "os": true, "sys": true, "json": true, "re": true, "math": true,
	"dd": true, "pl": true,
}

func detectUndefinedNames(d *dependencies, nb notebook.Context) []plan.Issue {
	if d.hasWildcardImport {
		return nil
	}
	seen := map[string]bool{}
	var issues []plan.Issue
	for _, u := range d.used {
		if seen[u.Name] || isKnownName(u.Name, d, nb) {
			continue
		}
		seen[u.Name] = true
		severity := plan.IssueError
		if d.attrRoots[u.Name] && !d.bareUses[u.Name] {
			severity = plan.IssueWarning
		}
		issues = append(issues, plan.Issue{
			Severity: severity,
			Category: plan.CategoryUndefinedName,
			Line:     u.Line,
			Column:   u.Column,
			Message:  fmt.Sprintf("undefined name %q", u.Name),
		})
	}
	return issues
}

func isKnownName(name string, d *dependencies, nb notebook.Context) bool {
	if d.defined[name] || d.imports[name] {
		return true
	}
	if pythonBuiltins[name] || commonAliases[name] {
		return true
	}
	return nb.KnownName(name)
}

func lint(d *dependencies) []plan.Issue {
	var issues []plan.Issue
	for name := range d.imports {
		if !d.bareUses[name] && !d.attrRoots[name] {
			issues = append(issues, plan.Issue{
				Severity: plan.IssueWarning,
				Category: plan.CategoryUnusedImport,
				Message:  fmt.Sprintf("imported %q is never used", name),
			})
		}
	}
	for name := range d.assignedVars {
		if !d.bareUses[name] && !d.attrRoots[name] {
			issues = append(issues, plan.Issue{
				Severity: plan.IssueWarning,
				Category: plan.CategoryUnusedVariable,
				Message:  fmt.Sprintf("variable %q is assigned but never used", name),
			})
		}
		if d.imports[name] {
			issues = append(issues, plan.Issue{
				Severity: plan.IssueWarning,
				Category: plan.CategoryRedefined,
				Message:  fmt.Sprintf("%q redefines an imported name", name),
			})
		}
	}
	return issues
}

var (
	daskLazyPattern   = regexp.MustCompile(`(\w+)\s*=\s*dd\.\w+\(`)
	plotCallPattern   = regexp.MustCompile(`(?:plt|sns)\.\w+\(\s*([A-Za-z_]\w*)`)
	polarsLazyPattern = regexp.MustCompile(`(\w+)\s*=\s*pl\.scan_\w+\(`)
	lenCallPattern    = regexp.MustCompile(`len\(\s*([A-Za-z_]\w*)\s*\)`)
)

// apiPatternChecks applies a small set of per-library anti-pattern rules
// that a syntax/undefined-name pass can't see: passing an uncollected lazy
// frame into an API that expects materialized data.
func apiPatternChecks(d *dependencies, src string) []plan.Issue {
	var issues []plan.Issue

	if d.imports["dask"] || d.imports["dd"] {
		lazy := map[string]bool{}
		for _, m := range daskLazyPattern.FindAllStringSubmatch(src, -1) {
			lazy[m[1]] = true
		}
		for _, m := range plotCallPattern.FindAllStringSubmatch(src, -1) {
			if lazy[m[1]] {
				issues = append(issues, plan.Issue{
					Severity: plan.IssueWarning,
					Category: plan.CategoryTypeError,
					Message:  fmt.Sprintf("%q is a lazy dask frame; call .compute() before plotting", m[1]),
				})
			}
		}
	}

	if d.imports["polars"] || d.imports["pl"] {
		lazy := map[string]bool{}
		for _, m := range polarsLazyPattern.FindAllStringSubmatch(src, -1) {
			lazy[m[1]] = true
		}
		for _, m := range lenCallPattern.FindAllStringSubmatch(src, -1) {
			if lazy[m[1]] {
				issues = append(issues, plan.Issue{
					Severity: plan.IssueWarning,
					Category: plan.CategoryTypeError,
					Message:  fmt.Sprintf("%q is a lazy polars frame; call .collect() before len()", m[1]),
				})
			}
		}
	}

	return issues
}

func dedupeAndSort(issues []plan.Issue) []plan.Issue {
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Line != issues[j].Line {
			return issues[i].Line < issues[j].Line
		}
		if issues[i].Column != issues[j].Column {
			return issues[i].Column < issues[j].Column
		}
		return issues[i].Message < issues[j].Message
	})
	seen := map[string]bool{}
	out := issues[:0]
	for _, it := range issues {
		if seen[it.Message] {
			continue
		}
		seen[it.Message] = true
		out = append(out, it)
	}
	return out
}
