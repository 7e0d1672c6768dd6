package builtin

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/handler"
)

// DiffPatchConfig is a diff_patch node's type-specific data. Only the
// "unified" diff format is supported; git/context/ed/normal formats are
// rejected since no library in this module's dependency set parses them.
type DiffPatchConfig struct {
	TargetPath    string `json:"target_path"`
	Diff          string `json:"diff"`
	Format        string `json:"format"`
	ApplyMode     string `json:"apply_mode"`
	Backup        bool   `json:"backup"`
	BackupDir     string `json:"backup_dir"`
	CreateMissing bool   `json:"create_missing"`
}

// DiffPatchHandler applies a unified diff to a file on disk. Hunk
// matching is exact (no fuzz factor); the only in-pack diffing library,
// go-difflib, generates diffs rather than applying them, so applying the
// hunks to the target file is hand-rolled here.
type DiffPatchHandler struct{}

func NewDiffPatchHandler() *DiffPatchHandler {
	return &DiffPatchHandler{}
}

func (h *DiffPatchHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	cfg, err := parseConfig[DiffPatchConfig](req.Node.Data)
	if err != nil {
		return domain.Envelope{}, h.fail(req, err.Error(), err)
	}
	if cfg.Format != "" && cfg.Format != "unified" {
		return domain.Envelope{}, h.fail(req, "unsupported diff format "+cfg.Format, nil)
	}
	if cfg.TargetPath == "" || cfg.Diff == "" {
		return domain.Envelope{}, h.fail(req, "diff_patch node missing target_path or diff", nil)
	}

	original, err := os.ReadFile(cfg.TargetPath)
	if err != nil {
		if !os.IsNotExist(err) || !cfg.CreateMissing {
			return domain.Envelope{}, h.fail(req, "reading target file", err)
		}
		original = nil
	}

	hunks, err := parseUnifiedDiff(cfg.Diff)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "parsing diff", err)
	}

	patched, err := applyHunks(strings.Split(string(original), "\n"), hunks)
	if err != nil {
		return domain.Envelope{}, h.fail(req, "applying patch", err)
	}
	patchedContent := strings.Join(patched, "\n")

	dryRun := cfg.ApplyMode == "dry_run"
	if !dryRun {
		if cfg.Backup && len(original) > 0 {
			backupPath := cfg.TargetPath + ".bak"
			if cfg.BackupDir != "" {
				backupPath = cfg.BackupDir + "/" + strings.TrimPrefix(cfg.TargetPath, "/") + ".bak"
			}
			if err := os.WriteFile(backupPath, original, 0o644); err != nil {
				return domain.Envelope{}, h.fail(req, "writing backup", err)
			}
		}
		if err := os.WriteFile(cfg.TargetPath, []byte(patchedContent), 0o644); err != nil {
			return domain.Envelope{}, h.fail(req, "writing patched file", err)
		}
	}

	verification := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(original)),
		B:        difflib.SplitLines(patchedContent),
		FromFile: cfg.TargetPath,
		ToFile:   cfg.TargetPath,
		Context:  3,
	}
	verifyText, _ := difflib.GetUnifiedDiffString(verification)

	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{
		"applied":    !dryRun,
		"dry_run":    dryRun,
		"hunks":      len(hunks),
		"diff_check": verifyText,
	}), nil
}

type diffHunk struct {
	oldStart int
	oldLines int
	lines    []string // prefixed with ' ', '+', '-'
}

func parseUnifiedDiff(diff string) ([]diffHunk, error) {
	var hunks []diffHunk
	var current *diffHunk
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			if current != nil {
				hunks = append(hunks, *current)
			}
			start, count, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			current = &diffHunk{oldStart: start, oldLines: count}
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++"):
			continue
		case current != nil:
			current.lines = append(current.lines, line)
		}
	}
	if current != nil {
		hunks = append(hunks, *current)
	}
	return hunks, nil
}

func parseHunkHeader(line string) (start, count int, err error) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("malformed hunk header: %s", line)
	}
	oldRange := strings.TrimPrefix(parts[1], "-")
	fields := strings.SplitN(oldRange, ",", 2)
	start, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed hunk start: %s", line)
	}
	count = 1
	if len(fields) == 2 {
		count, err = strconv.Atoi(fields[1])
		if err != nil {
			return 0, 0, fmt.Errorf("malformed hunk count: %s", line)
		}
	}
	return start, count, nil
}

func applyHunks(original []string, hunks []diffHunk) ([]string, error) {
	result := make([]string, 0, len(original))
	cursor := 0 // 0-based index into original

	for _, hunk := range hunks {
		targetIdx := hunk.oldStart - 1
		if targetIdx < 0 {
			targetIdx = 0
		}
		if targetIdx > len(original) {
			return nil, fmt.Errorf("hunk start %d beyond file length %d", hunk.oldStart, len(original))
		}
		result = append(result, original[cursor:targetIdx]...)
		cursor = targetIdx

		for _, line := range hunk.lines {
			if line == "" {
				continue
			}
			switch line[0] {
			case ' ':
				if cursor >= len(original) || original[cursor] != line[1:] {
					return nil, fmt.Errorf("context mismatch at line %d", cursor+1)
				}
				result = append(result, original[cursor])
				cursor++
			case '-':
				if cursor >= len(original) || original[cursor] != line[1:] {
					return nil, fmt.Errorf("removal mismatch at line %d", cursor+1)
				}
				cursor++
			case '+':
				result = append(result, line[1:])
			}
		}
	}
	result = append(result, original[cursor:]...)
	return result, nil
}

func (h *DiffPatchHandler) fail(req handler.Request, msg string, cause error) error {
	return domainerr.NewHandlerError(string(req.ExecutionID), string(req.Node.ID), string(req.Node.Type), req.Iteration, msg, cause, false)
}
