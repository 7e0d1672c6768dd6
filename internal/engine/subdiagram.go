package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dipeo/dipeo/internal/compiler"
	"github.com/dipeo/dipeo/internal/diagramio"
	"github.com/dipeo/dipeo/internal/domainerr"
	"github.com/dipeo/dipeo/internal/eventbus"
	"github.com/dipeo/dipeo/internal/handler/builtin"
)

// SubDiagramRunner adapts an Engine into a builtin.Runner, the closure a
// sub_diagram node calls to compile and execute a nested diagram. It runs
// the nested diagram against a NullBus and nil EventStore per spec §6's
// "lightweight mode": the parent's subscribers never see the
// sub-diagram's own node-level events, only whatever the sub_diagram
// handler itself surfaces as this node's single envelope.
//
// diagramName, when set, is resolved relative to baseDir as a Diagram
// Light YAML file; diagramData, when set, is an inline Diagram Light
// document already parsed into a generic map (re-marshaled to YAML so it
// can go through the same loader as a file-backed diagram). Exactly one
// of the two is expected to be non-empty, enforced by SubDiagramHandler
// before Runner is ever called.
func SubDiagramRunner(parent *Engine, baseDir string) builtin.Runner {
	return func(ctx context.Context, diagramName string, diagramData map[string]any, inputs map[string]any) (map[string]any, error) {
		diagramID := diagramName
		if diagramID == "" {
			diagramID = "inline"
		}

		var raw []byte
		var err error
		if len(diagramData) > 0 {
			raw, err = yaml.Marshal(diagramData)
			if err != nil {
				return nil, fmt.Errorf("marshaling inline sub-diagram data: %w", err)
			}
		} else {
			path := diagramName
			if filepath.Ext(path) == "" {
				path += ".light.yaml"
			}
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			raw, err = os.ReadFile(path)
			if err != nil {
				return nil, domainerr.NewIOError(path, "failed to read sub-diagram file", err)
			}
		}

		diagram, err := diagramio.LoadLight(diagramID, raw)
		if err != nil {
			return nil, err
		}

		compiled, errs := compiler.Compile(diagram, compiler.Options{DiagramDir: baseDir, BaseDir: baseDir})
		if len(errs) > 0 {
			return nil, fmt.Errorf("compiling sub-diagram %q: %w", diagramID, errs[0])
		}

		sub := New(parent.Registry, eventbus.NullBus{}, nil, parent.Cfg)
		state, err := sub.Run(ctx, compiled, inputs)
		if err != nil {
			return nil, err
		}
		return state.Variables, nil
	}
}
