package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	editSchema := compile("edit.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "name":"viewer1",
	  "view_radius":2
	}`), &hello)
	validate(helloSchema, hello)

	var edit any
	_ = json.Unmarshal([]byte(`{
	  "type":"EDIT",
	  "protocol_version":"1.0",
	  "pos":[4,37,-12],
	  "block":7,
	  "tag":"e-001"
	}`), &edit)
	validate(editSchema, edit)
}

func TestSchemas_RejectMalformed(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", name))
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	helloSchema := compile("hello.schema.json")
	editSchema := compile("edit.schema.json")

	var noName any
	_ = json.Unmarshal([]byte(`{"type":"HELLO","protocol_version":"1.0"}`), &noName)
	if err := helloSchema.Validate(noName); err == nil {
		t.Fatalf("expected HELLO without name rejected")
	}

	var shortPos any
	_ = json.Unmarshal([]byte(`{
	  "type":"EDIT","protocol_version":"1.0","pos":[1,2],"block":0
	}`), &shortPos)
	if err := editSchema.Validate(shortPos); err == nil {
		t.Fatalf("expected EDIT with 2d pos rejected")
	}

	var bigBlock any
	_ = json.Unmarshal([]byte(`{
	  "type":"EDIT","protocol_version":"1.0","pos":[1,2,3],"block":70000
	}`), &bigBlock)
	if err := editSchema.Validate(bigBlock); err == nil {
		t.Fatalf("expected EDIT with oversize block rejected")
	}
}
