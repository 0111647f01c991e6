package trace

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNilTracerIsANoop(t *testing.T) {
	var tr *Tracer

	assert.Equal(t, "", tr.StartTurn("conv-1"))
	assert.NotPanics(t, func() {
		tr.EndTurn("turn-1", 42, "hi", "hello", "ok")
		tr.RecordSpan("turn-1", "llm", time.Now(), 10, "in", "out", "ok", "")
		tr.Close()
	})
}

func TestTruncateLeavesShortStringsUnchanged(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 500))
}

func TestTruncateCapsLongStrings(t *testing.T) {
	long := strings.Repeat("a", 600)
	got := truncate(long, 500)
	assert.Len(t, got, 500)
}
