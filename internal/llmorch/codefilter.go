package llmorch

import "strings"

// codeFilter strips fenced code blocks from a token stream before it reaches
// the sentence buffer, so generated code is shown to the client but never
// spoken. It assumes a ``` fence marker arrives intact within a single
// token, which holds for the streaming chunk sizes observed from the LLM
// providers wired in; a marker split across a token boundary is missed.
type codeFilter struct {
	inFence bool
}

// Filter returns token with any fenced-code portion removed.
func (c *codeFilter) Filter(token string) string {
	if !strings.Contains(token, "```") {
		if c.inFence {
			return ""
		}
		return token
	}

	parts := strings.Split(token, "```")
	var out strings.Builder
	for i, part := range parts {
		if !c.inFence {
			out.WriteString(part)
		}
		if i < len(parts)-1 {
			c.inFence = !c.inFence
		}
	}
	return out.String()
}
