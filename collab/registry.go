package collab

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

// ToolDefinition is one entry registered into Registry: the spec plus a
// ParameterSchema, either supplied directly or derived from a Go type by
// RegisterTyped (via GenerateSchema).
type ToolDefinition struct {
	Name           string
	RequiredScopes []string
	PeerAgentName  string // set iff this tool is a peer delegation
	ParameterSchema map[string]any
}

// Registry is a small in-memory reference ToolRegistry (spec §6 deliberately
// leaves the registry's storage unspecified). Grounded on the teacher's
// functiontool schema generation (pkg/tool/functiontool/schema.go), reusing
// invopop/jsonschema to build ParameterSchema for tools registered via
// RegisterTyped instead of a hand-written map.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]ToolSpec
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]ToolSpec)}
}

// Register adds a tool whose ParameterSchema is already known.
func (r *Registry) Register(def ToolDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[def.Name] = ToolSpec{
		Name:            def.Name,
		RequiredScopes:  def.RequiredScopes,
		ParameterSchema: def.ParameterSchema,
		PeerAgentName:   def.PeerAgentName,
	}
}

// RegisterTyped adds a tool and derives its ParameterSchema from the Go
// type T's struct tags (json/jsonschema), the same convention the teacher's
// function tools use for their call signatures.
func RegisterTyped[T any](r *Registry, name string, requiredScopes []string, peerAgentName string) error {
	schema, err := GenerateSchema[T]()
	if err != nil {
		return err
	}
	r.Register(ToolDefinition{Name: name, RequiredScopes: requiredScopes, PeerAgentName: peerAgentName, ParameterSchema: schema})
	return nil
}

func (r *Registry) Lookup(name string) (ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

func (r *Registry) IsPeerDelegation(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return ok && spec.PeerAgentName != ""
}

// ListTools implements sac.ToolLister so a Registry can back AgentCard
// publishing directly.
func (r *Registry) ListTools() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec)
	}
	return out
}

// GenerateSchema reflects a JSON Schema for T using jsonschema struct tags
// (required, description, default, enum, minimum/maximum), matching the
// teacher's generateSchema[T] convention but returning the full object
// schema rather than hoisting just its properties, since ToolSpec.ParameterSchema
// is consumed as a complete schema document by AgentCard subscribers.
func GenerateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	delete(result, "$schema")
	delete(result, "$id")
	return result, nil
}
