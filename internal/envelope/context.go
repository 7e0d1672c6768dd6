package envelope

// Context is the namespaced variable view a handler renders its templates
// against. It exposes three tiers — globals (diagram-level variables),
// inputs (this node's resolved input envelopes, addressed by input
// handle), and local (the handler's own reserved keys, e.g. loop index) —
// plus a flattened root view where local shadows inputs which shadows
// globals, so a template author can write {{foo}} instead of
// {{local.foo}} in the common case.
type Context struct {
	Globals map[string]any
	Inputs  map[string]any
	Local   map[string]any
}

// NewContext builds a Context from the three tiers, defaulting nils to
// empty maps so template rendering never nil-derefs.
func NewContext(globals, inputs, local map[string]any) Context {
	if globals == nil {
		globals = map[string]any{}
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	if local == nil {
		local = map[string]any{}
	}
	return Context{Globals: globals, Inputs: inputs, Local: local}
}

// Flatten returns the single namespace a template expression runs
// against: globals, then inputs, then local, each overriding the last,
// plus the three tiers nested under their own names for explicit access.
func (c Context) Flatten() map[string]any {
	flat := make(map[string]any, len(c.Globals)+len(c.Inputs)+len(c.Local)+3)
	for k, v := range c.Globals {
		flat[k] = v
	}
	for k, v := range c.Inputs {
		flat[k] = v
	}
	for k, v := range c.Local {
		flat[k] = v
	}
	flat["globals"] = c.Globals
	flat["inputs"] = c.Inputs
	flat["local"] = c.Local
	return flat
}
