package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ToolSchemaValidator compiles and caches JSON Schemas declared on
// session.ToolSpec and validates tool-call parameters against them before
// dispatch. This runs independent of whatever schema genkit's own tool
// wrapper enforces (spec §4.1/§9): it is what turns a malformed or
// unexpected parameter set into a structured tool-result error rather than a
// panic reaching the dispatcher. Grounded on engine/structured.go's
// jsonschema/v6 compile-and-validate pattern.
type ToolSchemaValidator struct {
	mu     sync.Mutex
	cache  map[string]*jsonschema.Schema
	failed map[string]error
}

// NewToolSchemaValidator returns an empty validator; schemas are compiled
// lazily on first use and cached by tool name.
func NewToolSchemaValidator() *ToolSchemaValidator {
	return &ToolSchemaValidator{
		cache:  make(map[string]*jsonschema.Schema),
		failed: make(map[string]error),
	}
}

// Validate checks params (raw JSON) against the schema declared for
// toolName. A nil or empty schema is treated as "no constraint" and always
// passes.
func (v *ToolSchemaValidator) Validate(toolName string, schema json.RawMessage, params json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}

	compiled, err := v.compiled(toolName, schema)
	if err != nil {
		return fmt.Errorf("tool %s: invalid schema: %w", toolName, err)
	}

	if len(params) == 0 {
		params = []byte("{}")
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(params)))
	if err != nil {
		return fmt.Errorf("tool %s: invalid parameters JSON: %w", toolName, err)
	}

	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("tool %s: parameters do not match schema: %w", toolName, err)
	}
	return nil
}

func (v *ToolSchemaValidator) compiled(toolName string, schema json.RawMessage) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.cache[toolName]; ok {
		return s, nil
	}
	if err, ok := v.failed[toolName]; ok {
		return nil, err
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schema)))
	if err != nil {
		v.failed[toolName] = err
		return nil, err
	}
	c := jsonschema.NewCompiler()
	resourceID := "tool://" + toolName
	if err := c.AddResource(resourceID, doc); err != nil {
		v.failed[toolName] = err
		return nil, err
	}
	compiled, err := c.Compile(resourceID)
	if err != nil {
		v.failed[toolName] = err
		return nil, err
	}
	v.cache[toolName] = compiled
	return compiled, nil
}
