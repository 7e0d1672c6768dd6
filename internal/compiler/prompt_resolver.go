package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
)

// PromptResolver resolves PersonJob prompt_file/first_prompt_file
// references to their literal content at compile time, so the engine never
// touches the filesystem mid-execution. Resolution order mirrors the
// layout convention used across diagram projects:
//
//  1. paths already rooted under "projects/" or "files/" resolve against
//     BaseDir directly.
//  2. otherwise, resolve relative to the diagram's own "prompts/" dir.
//  3. fall back to BaseDir/files/prompts/.
//  4. an absolute path is used as-is.
//
// Results are cached by (diagram dir, filename) for the lifetime of one
// PromptResolver, since the same prompt file is commonly shared by many
// nodes.
type PromptResolver struct {
	baseDir string
	cache   map[string]string
	read    func(path string) (string, error)
}

// NewPromptResolver returns a resolver rooted at baseDir. baseDir defaults
// to the current working directory when empty.
func NewPromptResolver(baseDir string) *PromptResolver {
	if baseDir == "" {
		baseDir = "."
	}
	return &PromptResolver{
		baseDir: baseDir,
		cache:   map[string]string{},
		read:    readFile,
	}
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ResolvePromptFiles fills in each PersonJob node's resolved_prompt /
// resolved_first_prompt Data entries in place. diagramDir, when non-empty,
// is the directory containing the source diagram file (used for the
// diagram-relative "prompts/" lookup).
func (r *PromptResolver) ResolvePromptFiles(nodes []domain.Node, diagramDir string) []error {
	var errs []error
	for i := range nodes {
		n := &nodes[i]
		if n.Type != domain.NodeTypePersonJob || n.Data == nil {
			continue
		}
		if f, ok := n.Data["prompt_file"].(string); ok && f != "" {
			content, err := r.resolveOne(f, diagramDir)
			if err != nil {
				errs = append(errs, domainerr.NewIOError(f, fmt.Sprintf("resolving prompt_file for node %s", n.ID), err))
				continue
			}
			n.Data["resolved_prompt"] = content
		}
		if f, ok := n.Data["first_prompt_file"].(string); ok && f != "" {
			content, err := r.resolveOne(f, diagramDir)
			if err != nil {
				errs = append(errs, domainerr.NewIOError(f, fmt.Sprintf("resolving first_prompt_file for node %s", n.ID), err))
				continue
			}
			n.Data["resolved_first_prompt"] = content
		}
	}
	return errs
}

func (r *PromptResolver) resolveOne(filename, diagramDir string) (string, error) {
	cacheKey := diagramDir + ":" + filename
	if content, ok := r.cache[cacheKey]; ok {
		return content, nil
	}

	path, err := r.resolvePath(filename, diagramDir)
	if err != nil {
		return "", err
	}
	content, err := r.read(path)
	if err != nil {
		return "", err
	}
	r.cache[cacheKey] = content
	return content, nil
}

func (r *PromptResolver) resolvePath(filename, diagramDir string) (string, error) {
	if strings.HasPrefix(filename, "projects/") || strings.HasPrefix(filename, "files/") {
		p := filepath.Join(r.baseDir, filename)
		if fileExists(p) {
			return p, nil
		}
	}

	if diagramDir != "" {
		p := filepath.Join(diagramDir, "prompts", filename)
		if fileExists(p) {
			return p, nil
		}
	}

	p := filepath.Join(r.baseDir, "files", "prompts", filename)
	if fileExists(p) {
		return p, nil
	}

	if filepath.IsAbs(filename) && fileExists(filename) {
		return filename, nil
	}

	return "", fmt.Errorf("prompt file not found: %s", filename)
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
