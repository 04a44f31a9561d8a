// Package schema parses and repairs st2.v3 structured outputs.
//
// Raw model text is framed by a <final>...</final> delimiter and may be
// wrapped in markdown code fences. Parsing never aborts a run: anything
// that cannot be turned into JSON is reported as unparseable and scored
// with zero credit by the evaluator.
package schema

import (
	"encoding/json"
	"regexp"
	"strings"
)

var finalPattern = regexp.MustCompile(`(?is)<final>([\s\S]*?)</final>`)

// ExtractFinalBlock returns the content of the last <final>...</final>
// block, or "" if none is present.
func ExtractFinalBlock(text string) string {
	matches := finalPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.TrimSpace(matches[len(matches)-1][1])
}

// StripCodeFences removes a surrounding markdown code fence, if present
func StripCodeFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	lines := strings.Split(t, "\n")
	if len(lines) == 0 {
		return t
	}
	// Find the last fence line; everything between the first and last fence
	// is the payload.
	last := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			last = i
			break
		}
	}
	if last <= 0 {
		return strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}
	return strings.TrimSpace(strings.Join(lines[1:last], "\n"))
}

// ParsedOutput is the result of parsing one raw model response
type ParsedOutput struct {
	FinalText  string
	Value      interface{}
	ParseError string
}

// ParseModelOutput extracts the <final> block and parses the JSON inside it
func ParseModelOutput(raw string) ParsedOutput {
	final := ExtractFinalBlock(raw)
	if final == "" {
		return ParsedOutput{ParseError: "missing_final_block"}
	}
	candidate := StripCodeFences(final)
	var v interface{}
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return ParsedOutput{FinalText: final, ParseError: "json_parse_error: " + err.Error()}
	}
	return ParsedOutput{FinalText: final, Value: v}
}
