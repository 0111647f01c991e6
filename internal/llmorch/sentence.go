package llmorch

import "strings"

var sentenceEnders = map[byte]bool{'.': true, '!': true, '?': true}

// sentenceBuffer accumulates streamed tokens and splits at sentence
// boundaries, force-flushing at maxChars when no boundary appears (the
// "sentence boundary detection on input containing no punctuation and
// exceeding the max length flushes at the max" boundary behavior) and
// holding back a too-short first sentence until firstMinChars is reached,
// so the opening utterance isn't a single clipped word.
type sentenceBuffer struct {
	buf           strings.Builder
	maxChars      int
	firstMinChars int
	flushed       int
}

func newSentenceBuffer(maxChars, firstMinChars int) *sentenceBuffer {
	return &sentenceBuffer{maxChars: maxChars, firstMinChars: firstMinChars}
}

// Add appends a token and returns any complete sentence ready for TTS.
// Returns empty string if no sentence is ready yet.
func (s *sentenceBuffer) Add(token string) string {
	s.buf.WriteString(token)
	text := s.buf.String()

	complete, remainder := splitAtSentence(text)
	if complete == "" && s.maxChars > 0 && len(text) >= s.maxChars {
		complete, remainder = strings.TrimSpace(text), ""
	}
	if complete == "" {
		return ""
	}

	if s.flushed == 0 && s.firstMinChars > 0 && len(complete) < s.firstMinChars {
		// First sentence is too short — keep accumulating into the buffer
		// rather than speaking a clipped opener.
		s.buf.Reset()
		s.buf.WriteString(complete)
		if remainder == "" || !isWordBoundary(remainder[0]) {
			s.buf.WriteString(" ")
		}
		s.buf.WriteString(remainder)
		return ""
	}

	s.flushed++
	s.buf.Reset()
	s.buf.WriteString(remainder)
	return complete
}

// Flush returns any remaining text in the buffer.
func (s *sentenceBuffer) Flush() string {
	text := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return text
}

// splitAtSentence finds the last sentence boundary in text. A boundary is a
// sentence ender (.!?) followed by whitespace. Returns (completeSentences,
// remainder). If no boundary, returns ("", text).
func splitAtSentence(text string) (string, string) {
	lastIdx := -1
	for i := 0; i < len(text)-1; i++ {
		if sentenceEnders[text[i]] && isWordBoundary(text[i+1]) {
			lastIdx = i + 1
		}
	}
	if lastIdx < 0 {
		return "", text
	}
	return strings.TrimSpace(text[:lastIdx]), text[lastIdx:]
}

func isWordBoundary(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\t'
}
