package protocol

import (
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schemas holds compiled validators for the inbound client messages.
// The transport checks HELLO and EDIT payloads against them before
// decoding into typed structs.
type Schemas struct {
	Hello *jsonschema.Schema
	Edit  *jsonschema.Schema
}

func CompileSchemas(dir string) (*Schemas, error) {
	hello, err := jsonschema.Compile(filepath.Join(dir, "hello.schema.json"))
	if err != nil {
		return nil, err
	}
	edit, err := jsonschema.Compile(filepath.Join(dir, "edit.schema.json"))
	if err != nil {
		return nil, err
	}
	return &Schemas{Hello: hello, Edit: edit}, nil
}
