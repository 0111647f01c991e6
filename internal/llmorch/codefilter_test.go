package llmorch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeFilterPassesPlainText(t *testing.T) {
	var f codeFilter
	assert.Equal(t, "hello ", f.Filter("hello "))
}

func TestCodeFilterStripsFenceWithinOneToken(t *testing.T) {
	var f codeFilter
	assert.Equal(t, "before  after", f.Filter("before ```code here``` after"))
}

func TestCodeFilterStripsFenceAcrossTokens(t *testing.T) {
	var f codeFilter
	var out string
	out += f.Filter("before ```")
	out += f.Filter("code line one\n")
	out += f.Filter("code line two```")
	out += f.Filter(" after")
	assert.Equal(t, "before  after", out)
}

func TestCodeFilterUnterminatedFenceSuppressesRest(t *testing.T) {
	var f codeFilter
	out := f.Filter("before ```unterminated")
	assert.Equal(t, "before ", out)
	assert.Empty(t, f.Filter("still inside the fence"))
}
