package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvSlice_ShouldFormatAsKeyEqualsValue(t *testing.T) {
	out := envSlice(map[string]string{"FOO": "bar"})
	assert.Equal(t, []string{"FOO=bar"}, out)
}

func TestEnvSlice_ShouldReturnNil_WhenMapIsNil(t *testing.T) {
	assert.Nil(t, envSlice(nil))
}

func TestToSet_ShouldReturnNil_WhenNamesEmpty(t *testing.T) {
	assert.Nil(t, toSet(nil))
}

func TestToSet_ShouldBuildMembershipSet(t *testing.T) {
	set := toSet([]string{"a", "b"})
	assert.True(t, set["a"])
	assert.False(t, set["c"])
}

func TestCall_ShouldReturnNotFoundError_WhenToolIsUnregistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), "ghost_tool", "{}")
	assert.Error(t, err)
}

func TestToolSpecs_ShouldReturnEmpty_WhenNoServersRegistered(t *testing.T) {
	r := NewRegistry()
	specs, err := r.ToolSpecs(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, specs)
}
