package builtin

import (
	"encoding/json"
	"fmt"
)

// parseConfig converts a node's Data map into a typed config struct via a
// JSON marshal/unmarshal roundtrip, the same approach the teacher's
// executor package uses to turn arbitrary diagram JSON into Go structs.
func parseConfig[T any](data map[string]any) (*T, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling node config: %w", err)
	}
	var cfg T
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling node config: %w", err)
	}
	return &cfg, nil
}

// stringField reads a string key from a raw data map, defaulting to "".
func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
