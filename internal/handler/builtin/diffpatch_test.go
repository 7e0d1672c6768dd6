package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/handler"
)

const sampleUnifiedDiff = "@@ -1,3 +1,3 @@\n alpha\n-beta\n+BETA\n gamma"

func TestDiffPatchHandler_ShouldApplyHunkAndWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\nbeta\ngamma\n"), 0o644))

	h := NewDiffPatchHandler()
	node := &domain.Node{ID: "diff1", Type: domain.NodeTypeDiffPatch, Data: map[string]any{
		"target_path": path,
		"diff":        sampleUnifiedDiff,
	}}

	env, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})
	require.NoError(t, err)
	body := env.Body.(map[string]any)
	assert.Equal(t, true, body["applied"])

	patched, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alpha\nBETA\ngamma\n", string(patched))
}

func TestDiffPatchHandler_ShouldNotWriteFile_WhenDryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\nbeta\ngamma\n"), 0o644))

	h := NewDiffPatchHandler()
	node := &domain.Node{ID: "diff1", Type: domain.NodeTypeDiffPatch, Data: map[string]any{
		"target_path": path,
		"diff":        sampleUnifiedDiff,
		"apply_mode":  "dry_run",
	}}

	env, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})
	require.NoError(t, err)
	body := env.Body.(map[string]any)
	assert.Equal(t, false, body["applied"])

	unchanged, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta\ngamma\n", string(unchanged))
}

func TestDiffPatchHandler_ShouldFail_WhenContextLineDoesNotMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	h := NewDiffPatchHandler()
	node := &domain.Node{ID: "diff1", Type: domain.NodeTypeDiffPatch, Data: map[string]any{
		"target_path": path,
		"diff":        sampleUnifiedDiff,
	}}

	_, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})
	assert.Error(t, err)
}

func TestDiffPatchHandler_ShouldFail_WhenFormatUnsupported(t *testing.T) {
	h := NewDiffPatchHandler()
	node := &domain.Node{ID: "diff1", Type: domain.NodeTypeDiffPatch, Data: map[string]any{
		"target_path": "whatever.txt",
		"diff":        sampleUnifiedDiff,
		"format":      "context",
	}}

	_, err := h.Execute(context.Background(), handler.Request{ExecutionID: "exec-1", Node: node})
	assert.Error(t, err)
}
