// Package diagramio loads the Diagram Light YAML format (spec §6.5) into
// a domain.Diagram the compiler can validate and compile. Light diagrams
// address nodes and connections by human-readable label rather than by
// node id; the loader is the one place that resolves a label into a
// stable domain.NodeID, grounded on original_source's
// connection_resolver.py (arrow -> node lookup by parsed reference) and
// edge_builder.py (branch/condition/label handling folded into the
// compiler's own buildEdge, which this loader feeds with arrow handles
// in the same "nodeID:handle" shorthand the compiler already parses).
package diagramio

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/domainerr"
)

// lightDiagram mirrors the Light format's top-level shape.
type lightDiagram struct {
	Version     string                   `yaml:"version"`
	Nodes       []lightNode              `yaml:"nodes"`
	Connections []lightConnection        `yaml:"connections"`
	Persons     map[string]lightPerson   `yaml:"persons"`
	Metadata    map[string]any           `yaml:"metadata"`
}

type lightNode struct {
	Label    string         `yaml:"label"`
	Type     string         `yaml:"type"`
	Position lightPosition  `yaml:"position"`
	Props    map[string]any `yaml:",inline"`
}

type lightPosition struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type lightConnection struct {
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	Label       string `yaml:"label"`
	ContentType string `yaml:"content_type"`
}

type lightPerson struct {
	Service      string `yaml:"service"`
	Model        string `yaml:"model"`
	ApiKeyID     string `yaml:"api_key_id"`
	SystemPrompt string `yaml:"system_prompt"`
}

// LoadLight parses a Diagram Light YAML document into a domain.Diagram.
// diagramID is used only to label compile errors raised downstream; the
// format itself carries no id field.
func LoadLight(diagramID string, data []byte) (*domain.Diagram, error) {
	var raw lightDiagram
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, domainerr.NewIOError(diagramID, "failed to parse light diagram yaml", err)
	}
	if raw.Version != "" && raw.Version != "light" {
		return nil, domainerr.NewCompileError(diagramID, "", "version", fmt.Sprintf("unsupported diagram format version %q", raw.Version))
	}

	labelToID := make(map[string]domain.NodeID, len(raw.Nodes))
	nodes := make([]domain.Node, 0, len(raw.Nodes))
	for i, n := range raw.Nodes {
		if n.Label == "" {
			return nil, domainerr.NewCompileError(diagramID, "", "label", fmt.Sprintf("node at index %d is missing a label", i))
		}
		if _, dup := labelToID[n.Label]; dup {
			return nil, domainerr.NewCompileError(diagramID, "", "label", fmt.Sprintf("duplicate node label %q", n.Label))
		}
		id := domain.NodeID(fmt.Sprintf("n%d", i))
		labelToID[n.Label] = id
		nodes = append(nodes, domain.Node{
			ID:   id,
			Type: domain.NodeType(n.Type),
			Name: n.Label,
			Position: domain.Position{
				X: n.Position.X,
				Y: n.Position.Y,
			},
			Data: stripYAMLReserved(n.Props),
		})
	}

	arrows := make([]domain.Arrow, 0, len(raw.Connections))
	for i, c := range raw.Connections {
		sourceID, sourceHandle, err := resolveHandleRef(labelToID, c.From)
		if err != nil {
			return nil, domainerr.NewCompileError(diagramID, "", "connections", fmt.Sprintf("connection %d: %s", i, err))
		}
		targetID, targetHandle, err := resolveHandleRef(labelToID, c.To)
		if err != nil {
			return nil, domainerr.NewCompileError(diagramID, "", "connections", fmt.Sprintf("connection %d: %s", i, err))
		}

		if sourceHandle == "" {
			sourceHandle = "default"
		}
		if targetHandle == "" {
			targetHandle = "default"
		}
		sourceHandleRef := string(sourceID) + ":" + sourceHandle
		targetHandleRef := string(targetID) + ":" + targetHandle

		arrows = append(arrows, domain.Arrow{
			ID:              domain.NodeID(fmt.Sprintf("a%d", i)),
			SourceHandle:    sourceHandleRef,
			TargetHandle:    targetHandleRef,
			ContentTypeHint: domain.ContentType(c.ContentType),
			Label:           c.Label,
		})
	}

	persons := make([]domain.PersonSpec, 0, len(raw.Persons))
	for name, p := range raw.Persons {
		persons = append(persons, domain.PersonSpec{
			ID:           domain.PersonID(name),
			Name:         name,
			Service:      p.Service,
			Model:        p.Model,
			ApiKeyID:     domain.ApiKeyID(p.ApiKeyID),
			SystemPrompt: p.SystemPrompt,
		})
	}

	return &domain.Diagram{
		ID:       diagramID,
		Nodes:    nodes,
		Arrows:   arrows,
		Persons:  persons,
		Metadata: raw.Metadata,
	}, nil
}

// resolveHandleRef splits a Light connection endpoint of the form
// "Label" or "Label:handle" and resolves Label to its assigned NodeID.
func resolveHandleRef(labelToID map[string]domain.NodeID, ref string) (domain.NodeID, string, error) {
	label, handle := ref, ""
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == ':' {
			label, handle = ref[:i], ref[i+1:]
			break
		}
	}
	id, ok := labelToID[label]
	if !ok {
		return "", "", fmt.Errorf("references unknown node label %q", label)
	}
	return id, handle, nil
}

// stripYAMLReserved removes the fields already promoted to typed Node
// struct members so a handler's config parser does not see them twice.
func stripYAMLReserved(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	delete(props, "label")
	delete(props, "type")
	delete(props, "position")
	return props
}
