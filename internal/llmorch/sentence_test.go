package llmorch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentenceBufferSplitsOnBoundary(t *testing.T) {
	buf := newSentenceBuffer(0, 0)

	assert.Empty(t, buf.Add("Hello"))
	assert.Equal(t, "Hello world.", buf.Add(" world. "))
}

func TestSentenceBufferAccumulatesAcrossTokens(t *testing.T) {
	buf := newSentenceBuffer(0, 0)

	assert.Empty(t, buf.Add("The "))
	assert.Empty(t, buf.Add("quick "))
	assert.Equal(t, "The quick brown fox.", buf.Add("brown fox. "))
}

func TestSentenceBufferForceFlushesAtMaxChars(t *testing.T) {
	buf := newSentenceBuffer(10, 0)

	out := buf.Add("no punctuation here at all")
	assert.Equal(t, "no punctuation here at all", out)
}

func TestSentenceBufferHoldsShortFirstSentence(t *testing.T) {
	buf := newSentenceBuffer(0, 20)

	// "Hi." is well under firstMinChars, so it should be held back
	// rather than spoken as a clipped opener.
	assert.Empty(t, buf.Add("Hi. "))
	out := buf.Add("Nice to meet you today. ")
	assert.Equal(t, "Hi. Nice to meet you today.", out)
}

func TestSentenceBufferFlushReturnsRemainder(t *testing.T) {
	buf := newSentenceBuffer(0, 0)

	buf.Add("trailing fragment without a stop")
	assert.Equal(t, "trailing fragment without a stop", buf.Flush())
	assert.Empty(t, buf.Flush())
}

func TestSentenceBufferMultipleSentencesInOneToken(t *testing.T) {
	buf := newSentenceBuffer(0, 0)

	out := buf.Add("One. Two. Three")
	assert.Equal(t, "One. Two.", out)
	assert.Equal(t, "Three", buf.Flush())
}
