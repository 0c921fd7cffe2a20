package capability

import "context"

// Capability is one named, schema-validated operation the model may
// request. Implementations declare a parameter schema used both to
// validate invocation arguments and to advertise the capability to the
// completion service.
type Capability interface {
	Name() string
	Description() string
	Schema() *Schema
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Descriptor advertises a capability for prompt construction
type Descriptor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Schema      *Schema `json:"parameters,omitempty"`
}

// Schema captures the subset of JSON Schema needed for parameter validation
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single schema field
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}
