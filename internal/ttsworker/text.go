package ttsworker

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	codeBlockRegex       = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodeRegex      = regexp.MustCompile("`([^`]+)`")
	boldRegex            = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRegex          = regexp.MustCompile(`\*([^*]+)\*`)
	italicUnderscoreRegex = regexp.MustCompile(`_([^_]+)_`)
	strikeRegex          = regexp.MustCompile(`~~([^~]+)~~`)
	linkRegex            = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headerRegex          = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	bulletRegex          = regexp.MustCompile(`(?m)^[*-]\s+`)
)

// StripMarkdown removes markdown formatting so assistant text reads cleanly
// as speech instead of literal asterisks and brackets.
func StripMarkdown(text string) string {
	text = codeBlockRegex.ReplaceAllString(text, "")
	text = inlineCodeRegex.ReplaceAllString(text, "$1")
	text = boldRegex.ReplaceAllString(text, "$1")
	text = italicRegex.ReplaceAllString(text, "$1")
	text = italicUnderscoreRegex.ReplaceAllString(text, "$1")
	text = strikeRegex.ReplaceAllString(text, "$1")
	text = linkRegex.ReplaceAllString(text, "$1")
	text = headerRegex.ReplaceAllString(text, "")
	text = bulletRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

var abbreviations = map[string]string{
	"Mr.":  "Mister",
	"Mrs.": "Misses",
	"Dr.":  "Doctor",
	"vs.":  "versus",
	"e.g.": "for example",
	"i.e.": "that is",
	"etc.": "etcetera",
}

var numberRegex = regexp.MustCompile(`\b\d{1,9}\b`)

// NormalizeForSpeech expands common abbreviations and spells out bare
// integers up to 999, since a TTS engine reads "Dr." and "42" more naturally when
// they arrive as words.
func NormalizeForSpeech(text string) string {
	for abbr, expansion := range abbreviations {
		text = strings.ReplaceAll(text, abbr, expansion)
	}
	text = numberRegex.ReplaceAllStringFunc(text, spellOutNumber)
	return text
}

var ones = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// spellOutNumber spells out integers from 0 to 999 digit by digit, so "42"
// becomes "four two"; larger values such as years are returned unchanged.
func spellOutNumber(match string) string {
	n, err := strconv.Atoi(match)
	if err != nil || n < 0 || n > 999 {
		return match
	}
	digits := match
	var b strings.Builder
	for i, r := range digits {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(ones[r-'0'])
	}
	return b.String()
}
