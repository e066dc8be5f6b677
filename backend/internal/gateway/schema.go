package gateway

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaCache sync.Map // reflect.Type -> string

// SchemaFor renders the JSON Schema of the Go type of value. Schemas are
// generated once per type.
func SchemaFor(value any) string {
	if value == nil {
		return ""
	}
	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(string)
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(reflect.New(t).Interface())
	data, err := json.Marshal(schema)
	if err != nil {
		return ""
	}

	s := string(data)
	schemaCache.Store(t, s)
	return s
}
