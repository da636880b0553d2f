// Package speech prepares generated text for speech synthesis.
package speech

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// FallbackUtterance replaces text that cleans down to almost nothing.
const FallbackUtterance = "Welcome, traveler."

const minUtteranceRunes = 3

var (
	markerPattern = regexp.MustCompile(`\*[^*]+\*|\([^)]+\)|\[[^\]]+\]`)
	symbolPattern = regexp.MustCompile("[*#@~`^<>{}|\\\\]")

	// emotion verbs the model writes as stage directions, with an optional
	// adverb: "laughs softly", "sighs"
	emotionPattern = regexp.MustCompile(`(?i)\b(?:laughs?|chuckles?|giggles?|sighs?|gasps?|groans?|sobs?|coughs?|sniffs?|snickers?|whispers|grumbles?)\b(?:\s+[a-z]+ly\b)?`)

	interjectionPattern = regexp.MustCompile(`(?i)\b(ha|he)(?:ha|he)+\b`)
	punctuationRun      = regexp.MustCompile(`\.{2,}|!{2,}|\?{2,}|,{2,}`)
	whitespacePattern   = regexp.MustCompile(`\s+`)

	quoteReplacer = strings.NewReplacer(
		"“", "'", "”", "'", // double curly
		"‘", "'", "’", "'", // single curly
		"«", "'", "»", "'", // guillemets
		`"`, "'",
	)
)

// CleanForTTS returns a speakable, non-empty version of text: stage
// directions and symbols removed, emotion verbs dropped, laughter collapsed,
// quotes and punctuation normalized, terminated with sentence punctuation.
//
// CleanForTTS(CleanForTTS(x)) == CleanForTTS(x).
func CleanForTTS(text string) string {
	text = markerPattern.ReplaceAllString(text, "")
	text = symbolPattern.ReplaceAllString(text, "")
	text = emotionPattern.ReplaceAllString(text, "")
	text = interjectionPattern.ReplaceAllString(text, "$1")
	text = quoteReplacer.Replace(text)
	text = punctuationRun.ReplaceAllStringFunc(text, func(run string) string {
		return run[:1]
	})
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))

	if text != "" && !strings.ContainsAny(text[len(text)-1:], ".!?") {
		text += "."
	}
	if utf8.RuneCountInString(text) < minUtteranceRunes {
		return FallbackUtterance
	}

	return text
}
