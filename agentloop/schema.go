package agentloop

import (
	"reflect"
	"slices"

	invopop "github.com/invopop/jsonschema"
)

// Parameter names that the runtime supplies itself. They never appear in a
// tool's advertised schema; the values reach tools through ActionContextFrom.
const (
	ParamActionContext = "action_context"
	ParamActionAgent   = "action_agent"
)

// Schema is the JSON Schema object advertised for a tool's arguments.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property describes one argument.
type Property struct {
	Type string `json:"type"`
}

// EmptySchema returns an object schema with no properties.
func EmptySchema() Schema {
	return Schema{Type: "object", Properties: map[string]Property{}, Required: []string{}}
}

// Clone returns a deep copy.
func (s Schema) Clone() Schema {
	out := Schema{Type: s.Type, Properties: make(map[string]Property, len(s.Properties)), Required: slices.Clone(s.Required)}
	for k, v := range s.Properties {
		out.Properties[k] = v
	}
	if out.Required == nil {
		out.Required = []string{}
	}
	if out.Type == "" {
		out.Type = "object"
	}
	return out
}

// IsRequired reports whether name is a required argument.
func (s Schema) IsRequired(name string) bool {
	return slices.Contains(s.Required, name)
}

// AsMap renders the schema as generic JSON values for transports that take
// untyped parameter objects.
func (s Schema) AsMap() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = map[string]any{"type": p.Type}
	}
	required := make([]any, 0, len(s.Required))
	for _, r := range s.Required {
		required = append(required, r)
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// Param declares one argument of a tool built with NewTool.
type Param struct {
	Name       string
	Type       reflect.Type
	Default    any
	HasDefault bool
}

// Required declares an argument of type T with no default.
func Required[T any](name string) Param {
	return Param{Name: name, Type: reflect.TypeFor[T]()}
}

// Optional declares an argument of type T that falls back to def.
func Optional[T any](name string, def T) Param {
	return Param{Name: name, Type: reflect.TypeFor[T](), Default: def, HasDefault: true}
}

// JSONType maps a Go type onto a JSON Schema primitive. The mapping is closed:
// anything it does not recognize is advertised as "string".
func JSONType(t reflect.Type) string {
	if t == nil {
		return "string"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

func isReserved(name string) bool {
	return name == ParamActionContext || name == ParamActionAgent
}

// SchemaFromParams derives a schema from declared parameters. A parameter is
// required exactly when it has no default.
func SchemaFromParams(params []Param) (Schema, map[string]any) {
	s := EmptySchema()
	defaults := map[string]any{}
	for _, p := range params {
		if isReserved(p.Name) {
			continue
		}
		s.Properties[p.Name] = Property{Type: JSONType(p.Type)}
		if p.HasDefault {
			defaults[p.Name] = p.Default
			continue
		}
		s.Required = append(s.Required, p.Name)
	}
	return s, defaults
}

var jsonPrimitives = map[string]bool{
	"string": true, "integer": true, "number": true, "boolean": true, "array": true, "object": true,
}

// SchemaFromStruct derives a schema from the exported fields of a struct.
// Field names follow json tags. A field is optional when it is tagged
// omitempty or carries a jsonschema default.
func SchemaFromStruct(v any) Schema {
	r := &invopop.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	reflected := r.Reflect(v)

	s := EmptySchema()
	if reflected == nil || reflected.Properties == nil {
		return s
	}
	for pair := reflected.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name := pair.Key
		if isReserved(name) {
			continue
		}
		typ := "string"
		if pair.Value != nil && jsonPrimitives[pair.Value.Type] {
			typ = pair.Value.Type
		}
		s.Properties[name] = Property{Type: typ}
		if slices.Contains(reflected.Required, name) && (pair.Value == nil || pair.Value.Default == nil) {
			s.Required = append(s.Required, name)
		}
	}
	return s
}
