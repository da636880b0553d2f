package structured

import (
	"regexp"
	"strings"
)

var (
	// A value end (closing quote, bracket or brace) followed by a line break and
	// another quoted token: the model forgot the comma between two fields or
	// two array elements.
	missingCommaPattern    = regexp.MustCompile(`([\]}"])[ \t\r]*\n\s*"`)
	whitespacePattern      = regexp.MustCompile(`\s+`)
	trailingBracePattern   = regexp.MustCompile(`,\s*}`)
	trailingBracketPattern = regexp.MustCompile(`,\s*]`)
)

// ExtractObject returns the span from the first '{' to the last '}' in raw.
func ExtractObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return "", ErrNoStructuredOutput
	}
	return raw[start : end+1], nil
}

// Repair applies the fixed sequence of textual fixes for mistakes models make
// in hand-written JSON: missing commas between values split across lines,
// redundant whitespace, and trailing commas before a closing brace or bracket.
//
// The comma fix runs before whitespace is collapsed because it keys on the
// line break between the two values.
func Repair(s string) string {
	s = missingCommaPattern.ReplaceAllString(s, `$1, "`)
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = trailingBracePattern.ReplaceAllString(s, "}")
	s = trailingBracketPattern.ReplaceAllString(s, "]")
	return strings.TrimSpace(s)
}
