package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_ShouldReturnTrue_WhenExpressionHolds(t *testing.T) {
	e := NewEvaluator()
	ok, err := e.Evaluate("x > 5", map[string]any{"x": 10})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_ShouldReturnFalse_WhenExpressionDoesNotHold(t *testing.T) {
	e := NewEvaluator()
	ok, err := e.Evaluate("x > 5", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_ShouldError_WhenExpressionEmpty(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("", map[string]any{})
	assert.Error(t, err)
}

func TestEvaluate_ShouldError_WhenExpressionFailsToCompile(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("x >", map[string]any{"x": 1})
	assert.Error(t, err)
}

func TestEvaluate_ShouldError_WhenResultIsNotBool(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("x + 1", map[string]any{"x": 1})
	assert.Error(t, err)
}

func TestEvaluate_ShouldAllowUndefinedVariables_AndTreatThemAsNil(t *testing.T) {
	e := NewEvaluator()
	ok, err := e.Evaluate("missing == nil", map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_ShouldReuseCachedProgram_OnRepeatedCalls(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("x == 1", map[string]any{"x": 1})
	require.NoError(t, err)

	assert.Len(t, e.cache, 1)

	ok, err := e.Evaluate("x == 1", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, e.cache, 1)
}
