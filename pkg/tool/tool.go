// Package tool defines the tool contract the agent loop executes against:
// a named handler with a JSON-Schema-validated argument shape. Schema
// validation happens before a handler ever runs, so handlers can trust
// their argument types.
package tool

import (
	"context"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cognipeer/smartagent-go/pkg/model"
)

// Handler is the function signature for tool execution. Implementations
// must be safe to re-run with identical arguments, since results may be
// served from the session cache.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Parameter declares one named argument of a tool.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

// Tool couples a tool's metadata with its handler and compiled schema.
type Tool struct {
	Name        string
	Description string
	Parameters  []Parameter
	// Schema overrides Parameters when set; a raw JSON-Schema object map.
	Schema  map[string]any
	Handler Handler

	compiled *gojsonschema.Schema
}

// New validates a definition, compiles its argument schema and returns the
// ready-to-register tool.
func New(t Tool) (*Tool, error) {
	if err := validate(t); err != nil {
		return nil, fmt.Errorf("invalid tool definition: %w", err)
	}

	schemaMap := t.Schema
	if schemaMap == nil {
		schemaMap = buildSchema(t.Parameters)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s: %w", t.Name, err)
	}

	t.Schema = schemaMap
	t.compiled = compiled
	return &t, nil
}

// MustNew is New for statically known-good definitions.
func MustNew(t Tool) *Tool {
	built, err := New(t)
	if err != nil {
		panic(err)
	}
	return built
}

// Spec returns the provider-facing descriptor for this tool.
func (t *Tool) Spec() model.ToolSpec {
	return model.ToolSpec{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.Schema,
	}
}

// ValidateArgs checks call arguments against the compiled schema.
func (t *Tool) ValidateArgs(args map[string]any) error {
	if t.compiled == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := t.compiled.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		details := []string{}
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("validation errors: %v", details)
	}
	return nil
}

func validate(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if t.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range t.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

func buildSchema(params []Parameter) map[string]any {
	properties := map[string]any{}
	required := []string{}

	for _, param := range params {
		prop := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
