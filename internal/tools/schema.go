package tools

import (
	"encoding/json"
	"strings"
)

// Property is a JSON schema property.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// Schema is a JSON schema object describing tool arguments.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Field is one named property of an object schema.
type Field struct {
	name     string
	prop     Property
	required bool
}

// Required marks the field as mandatory.
func (f Field) Required() Field {
	f.required = true
	return f
}

// String declares a string field.
func String(name, description string) Field {
	return Field{name: name, prop: Property{Type: "string", Description: description}}
}

// Enum declares a string field restricted to values.
func Enum(name, description string, values ...string) Field {
	return Field{name: name, prop: Property{Type: "string", Description: description, Enum: values}}
}

// StringList declares an array of strings. Handlers also accept a single
// delimited string for these fields.
func StringList(name, description string) Field {
	return Field{name: name, prop: Property{Type: "array", Description: description, Items: &Property{Type: "string"}}}
}

// Object builds an object schema from fields.
func Object(fields ...Field) Schema {
	s := Schema{Type: "object", Properties: make(map[string]Property, len(fields))}
	for _, f := range fields {
		s.Properties[f.name] = f.prop
		if f.required {
			s.Required = append(s.Required, f.name)
		}
	}
	return s
}

// JSON renders the schema.
func (s Schema) JSON() json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// stringList decodes either a JSON array of strings or one string
// separated by commas, semicolons or ampersands.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = cleanList(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = cleanList(strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '&'
	}))
	return nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// mergeSet appends additions not already present, ignoring case.
func mergeSet(existing []string, additions []string) []string {
	out := append([]string(nil), existing...)
	seen := make(map[string]bool, len(out))
	for _, v := range out {
		seen[strings.ToLower(v)] = true
	}
	for _, v := range additions {
		key := strings.ToLower(v)
		if !seen[key] {
			seen[key] = true
			out = append(out, v)
		}
	}
	return out
}
