package tool

import (
	"reflect"
	"strings"

	"trpc.group/trpc-go/trpc-graph-go/tool"
)

// GenerateJSONSchema derives a JSON schema from a Go type. Struct fields
// follow their json tags; fields tagged "-" are skipped. A field is required
// unless it is a pointer or carries omitempty.
func GenerateJSONSchema(t reflect.Type) *tool.Schema {
	return typeSchema(t)
}

func typeSchema(t reflect.Type) *tool.Schema {
	switch t.Kind() {
	case reflect.String:
		return &tool.Schema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &tool.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &tool.Schema{Type: "number"}
	case reflect.Bool:
		return &tool.Schema{Type: "boolean"}
	case reflect.Slice, reflect.Array:
		return &tool.Schema{Type: "array", Items: typeSchema(t.Elem())}
	case reflect.Map:
		return &tool.Schema{Type: "object", AdditionalProperties: typeSchema(t.Elem())}
	case reflect.Ptr:
		s := typeSchema(t.Elem())
		s.Type += ",null"
		return s
	case reflect.Struct:
		return structSchema(t)
	default:
		return &tool.Schema{Type: "object"}
	}
}

func structSchema(t reflect.Type) *tool.Schema {
	schema := &tool.Schema{
		Type:       "object",
		Properties: make(map[string]*tool.Schema),
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitEmpty, ok := jsonFieldName(field)
		if !ok {
			continue
		}
		schema.Properties[name] = typeSchema(field.Type)
		if field.Type.Kind() != reflect.Ptr && !omitEmpty {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

// jsonFieldName resolves the wire name of a struct field from its json tag.
// The third return is false for fields excluded from serialization.
func jsonFieldName(field reflect.StructField) (string, bool, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}
	name := field.Name
	omitEmpty := false
	if tag != "" {
		if idx := strings.Index(tag, ","); idx != -1 {
			if tag[:idx] != "" {
				name = tag[:idx]
			}
			omitEmpty = strings.Contains(tag[idx:], "omitempty")
		} else {
			name = tag
		}
	}
	return name, omitEmpty, true
}
