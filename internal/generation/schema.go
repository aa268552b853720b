package generation

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
)

// schemaFor reflects a JSON schema from the type of v. Slices produce an
// array schema of their element type.
func schemaFor(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflector.ReflectFromType(t)
}

func schemaJSON(v any) (json.RawMessage, error) {
	return json.Marshal(schemaFor(v))
}
