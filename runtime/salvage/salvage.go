// Package salvage recovers a JSON object from LLM output that is not
// guaranteed to be valid JSON. It tries a fixed sequence of increasingly
// permissive strategies and stops at the first one that yields valid JSON;
// if every strategy fails it returns nil rather than guess at a shape.
package salvage

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*```")
	bareKeyPattern    = regexp.MustCompile(`^"[^"]+"\s*:`)
	codeFieldPattern  = regexp.MustCompile(`"code"\s*:\s*"`)
)

// Sentinels standing in for literal braces inside a "code" field's string
// value while the brace-counting strategy runs, so a jupyter_cell body
// containing its own braces (f-strings, dict literals, ...) never confuses
// the object boundary it's looking for. They're private-use code points and
// so never occur in legitimate LLM text.
const (
	openSentinel  = ""
	closeSentinel = ""
)

// JSON attempts, in order: parse the full body as-is; extract the first
// fenced ```json block; extract from the first '{' to its matching '}' via
// brace-counting that respects string literals and backslash escapes,
// truncating to the last balanced position on imbalance; and, if the body
// begins with a bare `"key":` instead of `{`, wrap it in braces. It returns
// the first candidate that parses as valid JSON, or nil if none do.
func JSON(raw string) json.RawMessage {
	escaped := escapeCodeFieldBraces(raw)

	strategies := []func(string) (string, bool){
		extractFullBody,
		extractFencedBlock,
		extractByBraceCounting,
		extractBareKeyWrapped,
	}
	for _, try := range strategies {
		candidate, ok := try(escaped)
		if !ok {
			continue
		}
		candidate = unescapeCodeFieldBraces(candidate)
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate)
		}
	}
	return nil
}

func extractFullBody(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return "", false
	}
	return trimmed, true
}

func extractFencedBlock(s string) (string, bool) {
	m := fencedJSONPattern.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// extractByBraceCounting scans from the first '{' tracking nesting depth,
// skipping over characters inside string literals (honoring backslash
// escapes so an escaped quote never closes a string early). It records
// every position where depth returns to zero and returns the span up to the
// last one seen, which is the exact match on well-formed input and the
// truncation-to-last-balanced-position behavior on trailing garbage.
func extractByBraceCounting(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	lastZero := -1

	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '{':
			depth++
		case !inString && ch == '}':
			depth--
			if depth == 0 {
				lastZero = i
			}
		}
	}
	if lastZero < 0 {
		return "", false
	}
	return s[start : lastZero+1], true
}

func extractBareKeyWrapped(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !bareKeyPattern.MatchString(trimmed) {
		return "", false
	}
	wrapped := "{" + trimmed + "}"
	if candidate, ok := extractByBraceCounting(wrapped); ok {
		return candidate, true
	}
	return wrapped, true
}

// escapeCodeFieldBraces finds every "code": "..." string value and swaps its
// literal braces for sentinel runes, so extractByBraceCounting never counts
// them as object delimiters.
func escapeCodeFieldBraces(s string) string {
	var b strings.Builder
	i := 0
	for {
		loc := codeFieldPattern.FindStringIndex(s[i:])
		if loc == nil {
			b.WriteString(s[i:])
			break
		}
		valueStart := i + loc[1]
		b.WriteString(s[i:valueStart])
		end := findStringEnd(s, valueStart)
		b.WriteString(escapeBraces(s[valueStart:end]))
		i = end
	}
	return b.String()
}

func escapeBraces(s string) string {
	s = strings.ReplaceAll(s, "{", openSentinel)
	s = strings.ReplaceAll(s, "}", closeSentinel)
	return s
}

// findStringEnd returns the index of the unescaped closing quote starting
// the scan at start, or len(s) if the string never closes.
func findStringEnd(s string, start int) int {
	escaped := false
	for i := start; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			return i
		}
	}
	return len(s)
}

func unescapeCodeFieldBraces(s string) string {
	s = strings.ReplaceAll(s, openSentinel, "{")
	s = strings.ReplaceAll(s, closeSentinel, "}")
	return s
}
