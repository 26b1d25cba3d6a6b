// Package librarydetect implements the Library Detector: a deterministic
// scorer that picks which library API guides the Prompt Assembler should
// inline for a given request, from three signals in priority order —
// explicit word-boundary patterns, keyword scoring, and libraries already
// imported in the notebook.
package librarydetect

import (
	"regexp"
	"sort"
	"strings"
)

// Input is what the detector needs to pick library guides for one request.
type Input struct {
	RequestText       string
	ImportedLibraries []string
	// AvailableGuides restricts the result to libraries a guide exists for.
	// A nil map disables the filter (every matched library is emitted).
	AvailableGuides map[string]bool
}

type explicitPattern struct {
	re      *regexp.Regexp
	library string
}

// Ordered only for readability; matching is independent per pattern.
var explicitPatterns = []explicitPattern{
	{regexp.MustCompile(`\bdask\b`), "dask"},
	{regexp.MustCompile(`\bdd\.read`), "dask"},
	{regexp.MustCompile(`\bpolars\b`), "polars"},
	{regexp.MustCompile(`\bpl\.read`), "polars"},
	{regexp.MustCompile(`\bseaborn\b`), "matplotlib"},
	{regexp.MustCompile(`\bplt\.`), "matplotlib"},
	{regexp.MustCompile(`\bpyspark\b`), "pyspark"},
}

// keywordScores maps a library to a small dictionary of keyword -> score in
// [0,1], Korean and English terms mixed, matching the user base this system
// serves. The library is selected if its best matched keyword scores >= 0.7.
var keywordScores = map[string]map[string]float64{
	"matplotlib": {
		"그래프":      0.8,
		"시각화":      0.85,
		"chart":    0.7,
		"plot":     0.75,
		"visualize": 0.8,
	},
	"pandas": {
		"데이터프레임":    0.9,
		"dataframe":  0.9,
		"csv":        0.6,
		"엑셀":        0.5,
	},
	"numpy": {
		"배열":     0.7,
		"array":  0.6,
		"행렬":     0.8,
		"matrix": 0.75,
	},
	"scikit-learn": {
		"머신러닝":            0.9,
		"machine learning": 0.9,
		"모델 학습":           0.85,
		"train a model":    0.85,
		"classifier":        0.75,
	},
}

// importAlias maps an imported module name to the guide it implies, for
// modules whose guide is published under a different library's name.
var importAlias = map[string]string{
	"seaborn": "matplotlib",
	"sns":     "matplotlib",
	"plt":     "matplotlib",
	"np":      "numpy",
	"pd":      "pandas",
}

// Detect returns the deduplicated, sorted set of libraries whose guide
// should be inlined for this request.
func Detect(in Input) []string {
	selected := make(map[string]bool)

	for _, p := range explicitPatterns {
		if p.re.MatchString(in.RequestText) {
			selected[p.library] = true
		}
	}

	lower := strings.ToLower(in.RequestText)
	for lib, keywords := range keywordScores {
		best := 0.0
		for kw, score := range keywords {
			if score > best && strings.Contains(lower, strings.ToLower(kw)) {
				best = score
			}
		}
		if best >= 0.7 {
			selected[lib] = true
		}
	}

	for _, imp := range in.ImportedLibraries {
		lib := imp
		if alias, ok := importAlias[imp]; ok {
			lib = alias
		}
		selected[lib] = true
	}

	result := make([]string, 0, len(selected))
	for lib := range selected {
		if in.AvailableGuides != nil && !in.AvailableGuides[lib] {
			continue
		}
		result = append(result, lib)
	}
	sort.Strings(result)
	return result
}
