package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStrReturnsFallbackWhenUnset(t *testing.T) {
	t.Setenv("CONFIG_TEST_STR", "")
	assert.Equal(t, "fallback", Str("CONFIG_TEST_STR", "fallback"))
}

func TestStrReturnsSetValue(t *testing.T) {
	t.Setenv("CONFIG_TEST_STR", "actual")
	assert.Equal(t, "actual", Str("CONFIG_TEST_STR", "fallback"))
}

func TestIntParsesOrFallsBack(t *testing.T) {
	t.Setenv("CONFIG_TEST_INT", "42")
	assert.Equal(t, 42, Int("CONFIG_TEST_INT", 7))

	t.Setenv("CONFIG_TEST_INT", "not-a-number")
	assert.Equal(t, 7, Int("CONFIG_TEST_INT", 7))
}

func TestFloatParsesOrFallsBack(t *testing.T) {
	t.Setenv("CONFIG_TEST_FLOAT", "0.6")
	assert.InDelta(t, 0.6, Float("CONFIG_TEST_FLOAT", 0.1), 1e-9)

	t.Setenv("CONFIG_TEST_FLOAT", "bad")
	assert.InDelta(t, 0.1, Float("CONFIG_TEST_FLOAT", 0.1), 1e-9)
}

func TestDurationParsesOrFallsBack(t *testing.T) {
	t.Setenv("CONFIG_TEST_DURATION", "30s")
	assert.Equal(t, 30*time.Second, Duration("CONFIG_TEST_DURATION", time.Second))

	t.Setenv("CONFIG_TEST_DURATION", "not-a-duration")
	assert.Equal(t, time.Second, Duration("CONFIG_TEST_DURATION", time.Second))
}

func TestBoolParsesOrFallsBack(t *testing.T) {
	t.Setenv("CONFIG_TEST_BOOL", "true")
	assert.True(t, Bool("CONFIG_TEST_BOOL", false))

	t.Setenv("CONFIG_TEST_BOOL", "nonsense")
	assert.False(t, Bool("CONFIG_TEST_BOOL", false))
}
