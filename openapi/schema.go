package openapi

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

func (o *OpenAPI) generateSchema(example any) *openapi3.SchemaRef {
	o.mu.Lock()
	defer o.mu.Unlock()

	if example == nil {
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}

	visited := make(map[string]bool)
	return o.schemaFromType(reflect.TypeOf(example), visited)
}

func typeKey(t reflect.Type) string {
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

func (o *OpenAPI) schemaFromType(t reflect.Type, visited map[string]bool) *openapi3.SchemaRef {
	if t.Kind() == reflect.Pointer {
		inner := o.schemaFromType(t.Elem(), visited)
		if inner.Ref != "" {
			return &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{inner}, Nullable: true}}
		}
		inner.Value.Nullable = true
		return inner
	}

	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: openapi3.NewStringSchema()}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &openapi3.SchemaRef{Value: openapi3.NewIntegerSchema()}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: openapi3.NewIntegerSchema().WithMin(0)}
	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: openapi3.NewFloat64Schema()}
	case reflect.Bool:
		return &openapi3.SchemaRef{Value: openapi3.NewBoolSchema()}
	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:  &openapi3.Types{openapi3.TypeArray},
			Items: o.schemaFromType(t.Elem(), visited),
		}}
	case reflect.Map:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type: &openapi3.Types{openapi3.TypeObject},
			AdditionalProperties: openapi3.AdditionalProperties{
				Schema: o.schemaFromType(t.Elem(), visited),
			},
		}}
	case reflect.Struct:
		return o.structSchemaRef(t, visited)
	default:
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}
}

// structSchemaRef registers named structs as components and returns a $ref to them.
// Two types with the same name from different packages get numbered component names.
func (o *OpenAPI) structSchemaRef(t reflect.Type, visited map[string]bool) *openapi3.SchemaRef {
	if t.PkgPath() == "time" && t.Name() == "Time" {
		return &openapi3.SchemaRef{Value: openapi3.NewDateTimeSchema()}
	}

	if t.Name() == "" || t.PkgPath() == "" {
		return &openapi3.SchemaRef{Value: o.buildStructSchema(t, visited)}
	}

	key := typeKey(t)
	if registered, ok := o.schemaRegistry[key]; ok {
		return openapi3.NewSchemaRef("#/components/schemas/"+registered, o.spec.Components.Schemas[registered].Value)
	}

	name := t.Name()
	if existing, taken := o.schemaNameRegistry[name]; taken && existing != key {
		for suffix := 2; ; suffix++ {
			candidate := name + strconv.Itoa(suffix)
			if _, used := o.schemaNameRegistry[candidate]; !used {
				name = candidate
				break
			}
		}
	}

	o.schemaRegistry[key] = name
	o.schemaNameRegistry[name] = key

	// registered before building so self-referencing types resolve to the same value
	schema := &openapi3.Schema{}
	if o.spec.Components.Schemas == nil {
		o.spec.Components.Schemas = make(openapi3.Schemas)
	}
	o.spec.Components.Schemas[name] = &openapi3.SchemaRef{Value: schema}
	*schema = *o.buildStructSchema(t, visited)

	return openapi3.NewSchemaRef("#/components/schemas/"+name, schema)
}

// buildStructSchema follows encoding/json naming. Fields without omitempty are required;
// `doc` and `example` tags become description and example.
func (o *OpenAPI) buildStructSchema(t reflect.Type, visited map[string]bool) *openapi3.Schema {
	key := typeKey(t)
	if visited[key] {
		return openapi3.NewObjectSchema()
	}
	visited[key] = true
	defer delete(visited, key)

	schema := &openapi3.Schema{
		Type:       &openapi3.Types{openapi3.TypeObject},
		Properties: make(openapi3.Schemas),
	}

	var required []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		tagParts := strings.Split(jsonTag, ",")
		name := field.Name
		if tagParts[0] != "" {
			name = tagParts[0]
		}

		optional := false
		for _, part := range tagParts[1:] {
			if part == "omitempty" {
				optional = true
			}
		}

		ref := o.schemaFromType(field.Type, visited)
		doc, ex := field.Tag.Get("doc"), field.Tag.Get("example")
		if doc != "" || ex != "" {
			if ref.Ref != "" {
				ref = &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{ref}}}
			}
			if doc != "" {
				ref.Value.Description = doc
			}
			if ex != "" {
				ref.Value.Example = ex
			}
		}

		schema.Properties[name] = ref
		if !optional {
			required = append(required, name)
		}
	}

	if len(required) > 0 {
		schema.Required = required
	}

	return schema
}
