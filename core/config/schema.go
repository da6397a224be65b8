package config

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/astrape-core/core/invocation"
)

// Schema describes the configuration file. All fields are optional since
// every value has a default.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
		Mapper:                    mapType,
	}

	schema := r.Reflect(&Config{})
	schema.Title = "Astrape Configuration"
	schema.Description = "Schema for the Astrape assistant configuration file."
	schema.Required = nil
	return schema
}

// SchemaJSON is Schema rendered as indented JSON.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}

func mapType(t reflect.Type) *jsonschema.Schema {
	switch t {
	case reflect.TypeFor[invocation.Policy]():
		return &jsonschema.Schema{
			Description: "Invocation strategy: trusted (1), reliable (2) or zero_trust (3)",
			OneOf: []*jsonschema.Schema{
				{Type: "string", Enum: []any{"trusted", "reliable", "zero_trust"}},
				{Type: "integer", Enum: []any{1, 2, 3}},
			},
		}
	case reflect.TypeFor[ProviderSpec]():
		return &jsonschema.Schema{
			Type:        "string",
			Description: "Builtin engine name or http(s) endpoint URL",
		}
	case reflect.TypeFor[Phrases]():
		return &jsonschema.Schema{
			OneOf: []*jsonschema.Schema{
				{Type: "string"},
				{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			},
		}
	}
	return nil
}
