package block

import (
	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed blocks.schema.json
var blocksSchemaJSON string

var blocksSchema = jsonschema.MustCompileString("blocks.schema.json", blocksSchemaJSON)
