package vadasr

import "strings"

// defaultConfidenceThreshold is the no-speech probability above which an
// ASR result is discarded as noise.
const defaultConfidenceThreshold = 0.6

// noisePatterns are common ASR hallucinations from background noise or filler speech.
var noisePatterns = map[string]bool{
	"crunching": true, "static": true, "silence": true, "noise": true,
	"inaudible": true, "unintelligible": true, "background noise": true,
	"music": true, "typing": true, "breathing": true, "sigh": true,
	"cough": true, "sneeze": true, "laughter": true, "applause": true,
	"you": true, "the": true, "a": true, "um": true, "uh": true,
	"hmm": true, "ah": true, "oh": true, "mhm": true,
}

// isNoiseTranscript returns true if the ASR output is likely background noise.
func isNoiseTranscript(text string) bool {
	// Asterisk-wrapped text like *crunching*, *static*
	if strings.HasPrefix(text, "*") && strings.HasSuffix(text, "*") {
		return true
	}
	// Bracket-wrapped like [noise], [inaudible]
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return true
	}
	// Parentheses-wrapped like (crunching)
	if strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")") {
		return true
	}
	lower := strings.ToLower(text)
	return noisePatterns[lower]
}

// filterTranscript applies the confidence and noise filters to one ASR
// result. Returns the cleaned transcript, or "" if it should be discarded.
func filterTranscript(text string, noSpeechProb, threshold float64) string {
	if threshold == 0 {
		threshold = defaultConfidenceThreshold
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || noSpeechProb > threshold || isNoiseTranscript(trimmed) {
		return ""
	}
	return trimmed
}
