package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/handler"
)

// CodeHandler's interpreter-dispatch path shells out to python3/node/bash,
// so only the config-validation path that never reaches exec.CommandContext
// is exercised here; see engine_test.go's stub handlers for coverage of the
// handler contract itself without depending on what's installed locally.
func TestCodeHandler_ShouldFail_WhenLanguageUnsupported(t *testing.T) {
	h := NewCodeHandler()
	node := &domain.Node{ID: "code1", Type: domain.NodeTypeCode, Data: map[string]any{
		"language": "cobol",
		"code":     "DISPLAY 'HELLO'.",
	}}

	_, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})
	assert.Error(t, err)
}

func TestCodeHandler_ShouldFail_WhenConfigUnparsable(t *testing.T) {
	h := NewCodeHandler()
	node := &domain.Node{ID: "code1", Type: domain.NodeTypeCode, Data: map[string]any{
		"language": 123,
	}}

	_, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})
	assert.Error(t, err)
}
