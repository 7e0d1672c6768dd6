package compiler

import (
	"strings"

	"github.com/dipeo/dipeo/internal/domain"
)

// parseHandle splits a raw handle reference of the form "nodeID:label" into
// its node id and label, defaulting the label to "default" when the arrow
// author omitted it (the node's sole input/output port).
func parseHandle(raw string) (domain.NodeID, string) {
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		return domain.NodeID(raw[:i]), raw[i+1:]
	}
	return domain.NodeID(raw), "default"
}
