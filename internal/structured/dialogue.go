package structured

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DialogueLineCount is the arity of a canonical dialogue array.
	DialogueLineCount = 3

	// minDialogueRunes: shorter lines are fragments, headings or stray labels.
	minDialogueRunes = 31
)

var (
	// conversational preamble; matched on word boundaries so "treasure"
	// does not trip "sure"
	preamblePattern = regexp.MustCompile(`\b(sure|here are|here is|certainly|of course|i'll|i will|let me)\b`)
	openerPattern   = regexp.MustCompile(`^(okay|sure|certainly)`)

	listPrefixPattern = regexp.MustCompile(`^\d+[.):\-]\s*`)
	asteriskPattern   = regexp.MustCompile(`\*[^*]+\*`)
	parenPattern      = regexp.MustCompile(`\([^)]+\)`)
	bracketPattern    = regexp.MustCompile(`\[[^\]]+\]`)
)

const lineQuotes = "\"'“”‘’"

// ParseDialogueLines extracts at most DialogueLineCount spoken lines from a
// line-oriented model response. Preamble, list numbering, enclosing quotes
// and stage directions are removed; short lines and echoed instructions are
// discarded.
func ParseDialogueLines(raw string) []string {
	lines := make([]string, 0, DialogueLineCount)

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if preamblePattern.MatchString(lower) || openerPattern.MatchString(lower) {
			continue
		}

		cleaned := listPrefixPattern.ReplaceAllString(trimmed, "")
		cleaned = strings.Trim(cleaned, lineQuotes)
		cleaned = asteriskPattern.ReplaceAllString(cleaned, "")
		cleaned = parenPattern.ReplaceAllString(cleaned, "")
		cleaned = bracketPattern.ReplaceAllString(cleaned, "")
		cleaned = strings.TrimSpace(cleaned)

		if utf8.RuneCountInString(cleaned) < minDialogueRunes {
			continue
		}
		if strings.HasPrefix(strings.ToLower(cleaned), "write") {
			continue
		}

		lines = append(lines, cleaned)
		if len(lines) == DialogueLineCount {
			break
		}
	}

	return lines
}

// DialogueLines is ParseDialogueLines with the success policy applied: fewer
// than DialogueLineCount surviving lines is a malformed structure.
func DialogueLines(raw string) ([]string, error) {
	lines := ParseDialogueLines(raw)
	if len(lines) < DialogueLineCount {
		return nil, fmt.Errorf("%w: got %d dialogue lines, need %d",
			ErrMalformedStructure, len(lines), DialogueLineCount)
	}
	return lines, nil
}
