package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuneEstimate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{name: "empty", input: "", expected: 0},
		{name: "one rune", input: "a", expected: 1},
		{name: "four runes", input: "abcd", expected: 1},
		{name: "five runes", input: "abcde", expected: 2},
		{name: "multibyte", input: "你好你好你", expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RuneEstimate(tt.input))
		})
	}
}

func TestTiktokenEstimatorIsDeterministic(t *testing.T) {
	e := NewTiktokenEstimator("")
	text := "The quick brown fox jumps over the lazy dog."
	first := e.Count(text)
	require.Greater(t, first, 0)
	assert.Equal(t, first, e.Count(text))
}

func TestTiktokenEstimatorGrowsWithText(t *testing.T) {
	e := NewTiktokenEstimator("")
	short := e.Count("hello world")
	long := e.Count(strings.Repeat("hello world ", 50))
	assert.GreaterOrEqual(t, long, short)
	assert.Equal(t, 0, e.Count(""))
}

func TestUnknownEncodingFallsBack(t *testing.T) {
	e := NewTiktokenEstimator("no-such-encoding")
	assert.Equal(t, RuneEstimate("abcdefgh"), e.Count("abcdefgh"))
}

func TestForModelUnknownUsesDefault(t *testing.T) {
	e := ForModel("definitely-not-a-model")
	require.NotNil(t, e)
	assert.Equal(t, string(DefaultEncoding), e.Name())
	assert.Greater(t, e.Count("some text"), 0)
}

func TestNilEstimatorFallsBack(t *testing.T) {
	var e *TiktokenEstimator
	assert.Equal(t, 1, e.Count("abc"))
}

func TestFuncEstimatorClampsNegative(t *testing.T) {
	e := FuncEstimator(func(string) int { return -3 })
	assert.Equal(t, 0, e.Count("x"))
}
