// Package classifier implements the Error Classifier: a deterministic
// decision table mapping an executor's reported error into a recovery
// decision, with no LLM call in the common path. An optional LLM fallback
// may be wired in for the small set of cases the table itself flags as
// ambiguous; any fallback failure leaves the deterministic result untouched.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/plan"
)

// InstallCommand is the configurable template used to synthesize an install
// step for a missing package; "%s" is replaced with the resolved pip name.
type InstallCommand string

// DefaultInstallCommand is the notebook-native install invocation every
// generated install step must start with: "!pip install ".
const DefaultInstallCommand InstallCommand = "!pip install %s"

// Input is everything the Classifier needs to produce an ErrorAnalysis.
type Input struct {
	Kind              string
	Message           string
	Traceback         string
	InstalledPackages []string
	// ConsecutiveCount is how many times, including this one, the same
	// normalized kind has occurred back to back for the current step.
	ConsecutiveCount int
}

// LLMFallback produces an alternative ErrorAnalysis for ambiguous cases. Any
// returned error means the deterministic result is kept as-is.
type LLMFallback func(in Input, deterministic plan.ErrorAnalysis) (plan.ErrorAnalysis, error)

var refinableKinds = map[string]bool{
	"SyntaxError":       true,
	"TypeError":         true,
	"ValueError":        true,
	"KeyError":          true,
	"IndexError":        true,
	"AttributeError":    true,
	"NameError":         true,
	"FileNotFoundError": true,
	"PermissionError":   true,
	"RuntimeError":      true,
	"ZeroDivisionError": true,
}

var aliasToPackage = map[string]string{
	"sklearn":  "scikit-learn",
	"cv2":      "opencv-python",
	"PIL":      "pillow",
	"yaml":     "pyyaml",
	"bs4":      "beautifulsoup4",
	"skimage":  "scikit-image",
	"dotenv":   "python-dotenv",
	"dateutil": "python-dateutil",
}

type importExtractor struct {
	re    *regexp.Regexp
	group int
}

// Ordered so the most specific message shapes are tried first.
var importExtractors = []importExtractor{
	{regexp.MustCompile(`No module named '([^']+)'`), 1},
	{regexp.MustCompile(`No module named "([^"]+)"`), 1},
	{regexp.MustCompile(`cannot import name '[^']+' from '([^']+)'`), 1},
	{regexp.MustCompile(`No module named ([^\s;]+)`), 1},
}

var (
	dylibPattern = regexp.MustCompile(`dlopen\(.*?\)\s*Library not loaded:?\s*(?:@rpath/)?([\w.+-]+\.dylib)`)
	soPattern    = regexp.MustCompile(`(lib[\w.+-]*\.so(?:\.\d+)*)`)
	dllPattern   = regexp.MustCompile(`([\w.+-]+\.dll)`)
)

// Normalize reduces a raw error kind string to the classifier's table keys:
// the token before the first ':' (if any), then after the last '.' (if any).
// An empty result becomes RuntimeError.
func Normalize(kind string) string {
	k := kind
	if idx := strings.Index(k, ":"); idx >= 0 {
		k = k[:idx]
	}
	if idx := strings.LastIndex(k, "."); idx >= 0 {
		k = k[idx+1:]
	}
	k = strings.TrimSpace(k)
	if k == "" {
		return "RuntimeError"
	}
	return k
}

func isKnownKind(kind string) bool {
	if kind == "ModuleNotFoundError" || kind == "ImportError" || kind == "OSError" {
		return true
	}
	if refinableKinds[kind] {
		return true
	}
	return strings.HasPrefix(kind, "Unicode")
}

// ShouldUseLLMFallback reports whether the optional LLM fallback should be
// consulted: the same kind has repeated at least twice in a row, the kind
// isn't in the deterministic table, or the traceback shows at least two
// chained exception frames.
func ShouldUseLLMFallback(in Input) bool {
	if in.ConsecutiveCount >= 2 {
		return true
	}
	if !isKnownKind(Normalize(in.Kind)) {
		return true
	}
	return strings.Count(in.Traceback, "During handling of the above exception") >= 2
}

// Classify runs the deterministic decision table and, when ShouldUseLLMFallback
// says the case is ambiguous and a fallback is wired in, lets the fallback
// override the result. A fallback error or nil fallback leaves the
// deterministic analysis untouched.
func Classify(in Input, installCmd InstallCommand, fallback LLMFallback) plan.ErrorAnalysis {
	if installCmd == "" {
		installCmd = DefaultInstallCommand
	}
	result := classifyDeterministic(in, installCmd)

	if fallback != nil && ShouldUseLLMFallback(in) {
		if llmResult, err := fallback(in, result); err == nil {
			llmResult.UsedLLM = true
			return llmResult
		}
	}
	result.UsedLLM = false
	return result
}

func classifyDeterministic(in Input, installCmd InstallCommand) plan.ErrorAnalysis {
	kind := Normalize(in.Kind)

	switch {
	case kind == "ModuleNotFoundError" || kind == "ImportError":
		return classifyImportError(kind, in, installCmd)
	case kind == "OSError":
		return classifyOSError(in)
	default:
		return refine(kind, "")
	}
}

func classifyImportError(kind string, in Input, installCmd InstallCommand) plan.ErrorAnalysis {
	raw := extractMissingImport(in.Message)
	if raw == "" {
		return refine(kind, "could not extract a missing module name from the error message")
	}
	pkg := resolvePackage(raw)

	if contains(in.InstalledPackages, pkg) {
		return plan.ErrorAnalysis{
			Decision:       plan.DecisionRefine,
			RootCause:      fmt.Sprintf("%q raised for %q, but %q is already installed", kind, raw, pkg),
			Reasoning:      "the package is present, so this is a code issue rather than a missing dependency",
			MissingPackage: pkg,
			Confidence:     0.85,
		}
	}

	code := fmt.Sprintf(string(installCmd), pkg)
	newStep := plan.Step{
		ToolCalls: []model.ToolCall{{
			Name:       model.ToolJupyterCell,
			Parameters: model.JupyterCellParams{Code: model.SanitizeJupyterCode(code)},
		}},
	}
	return plan.ErrorAnalysis{
		Decision:       plan.DecisionInsertSteps,
		RootCause:      fmt.Sprintf("missing package %q", pkg),
		Reasoning:      fmt.Sprintf("%s raised for %q; installing %q before retrying the failed step", kind, raw, pkg),
		MissingPackage: pkg,
		Changes:        plan.ErrorAnalysisChanges{NewSteps: []plan.Step{newStep}},
		Confidence:     0.95,
	}
}

func classifyOSError(in Input) plan.ErrorAnalysis {
	if dep := extractSystemDependency(in.Message); dep != "" {
		return plan.ErrorAnalysis{
			Decision:   plan.DecisionReplanRemaining,
			RootCause:  fmt.Sprintf("missing system-level dependency %q", dep),
			Reasoning:  "a dynamic-loader failure cannot be fixed by installing a Python package; the remaining plan must route around it",
			Changes:    plan.ErrorAnalysisChanges{SystemDependency: dep},
			Confidence: 0.9,
		}
	}
	return refine("OSError", "OSError did not match a known dynamic-loader pattern")
}

func refine(kind, note string) plan.ErrorAnalysis {
	reasoning := fmt.Sprintf("%s is handled by refining the failed step's code", kind)
	if note != "" {
		reasoning = note
	}
	return plan.ErrorAnalysis{
		Decision:   plan.DecisionRefine,
		RootCause:  kind,
		Reasoning:  reasoning,
		Confidence: 0.7,
	}
}

func extractMissingImport(message string) string {
	for _, e := range importExtractors {
		if m := e.re.FindStringSubmatch(message); len(m) > e.group {
			return m[e.group]
		}
	}
	return ""
}

func resolvePackage(raw string) string {
	root := raw
	if idx := strings.IndexByte(root, '.'); idx >= 0 {
		root = root[:idx]
	}
	if pkg, ok := aliasToPackage[root]; ok {
		return pkg
	}
	return root
}

func extractSystemDependency(message string) string {
	if m := dylibPattern.FindStringSubmatch(message); len(m) > 1 {
		return m[1]
	}
	if strings.Contains(message, "cannot open shared object file") {
		if m := soPattern.FindString(message); m != "" {
			return m
		}
	}
	if strings.Contains(strings.ToLower(message), "dll load failed") {
		if m := dllPattern.FindString(message); m != "" {
			return m
		}
	}
	return ""
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
