package model

import "testing"

const sampleSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string"}
	},
	"required": ["path"]
}`

func TestToolSchemaValidator_AcceptsValidParams(t *testing.T) {
	v := NewToolSchemaValidator()
	err := v.Validate("read_file", []byte(sampleSchema), []byte(`{"path":"a.txt"}`))
	if err != nil {
		t.Fatalf("expected valid params to pass, got %v", err)
	}
}

func TestToolSchemaValidator_RejectsMissingRequiredField(t *testing.T) {
	v := NewToolSchemaValidator()
	err := v.Validate("read_file", []byte(sampleSchema), []byte(`{}`))
	if err == nil {
		t.Fatal("expected missing required field to fail validation")
	}
}

func TestToolSchemaValidator_NoSchemaAlwaysPasses(t *testing.T) {
	v := NewToolSchemaValidator()
	if err := v.Validate("anything", nil, []byte(`{"whatever":true}`)); err != nil {
		t.Fatalf("expected nil schema to always pass, got %v", err)
	}
}

func TestToolSchemaValidator_CachesCompiledSchema(t *testing.T) {
	v := NewToolSchemaValidator()
	for i := 0; i < 3; i++ {
		if err := v.Validate("read_file", []byte(sampleSchema), []byte(`{"path":"x"}`)); err != nil {
			t.Fatalf("iteration %d: unexpected error %v", i, err)
		}
	}
	if len(v.cache) != 1 {
		t.Fatalf("expected exactly 1 cached compiled schema, got %d", len(v.cache))
	}
}
