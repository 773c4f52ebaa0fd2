// Package validation implements the per-tool schema declarations and the
// pure validator of : every tool's input is checked against a
// declared Schema before a handler ever sees it.
package validation

// FieldType is the closed set of primitive types a Field may declare.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBool    FieldType = "bool"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeStringArray FieldType = "stringArray"
)

// Field declares one schema field's type and constraints. Only the
// constraints relevant to FieldType are consulted.
type Field struct {
	Name     string
	Type     FieldType
	Required bool

	// Enum restricts a string field to a fixed set of values.
	Enum []string

	// MinLength/MaxLength bound a string field's length after trimming.
	MinLength int
	MaxLength int

	// Min/Max bound a number field's value.
	Min *float64
	Max *float64

	// TrimString trims leading/trailing whitespace off a string value.
	TrimString bool

	// CoerceNumericString allows a JSON string to be parsed into a number,
	// matching  "numeric parse from string where schema declares".
	CoerceNumericString bool
}

// Schema is a named, ordered set of fields for one tool. Fields are checked
// in declaration order so the first failure found is deterministic, which
// is what makes the validator pure.
type Schema struct {
	ToolName string
	Fields   []Field
}

// field looks up a field declaration by name, or reports ok=false.
func (s Schema) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
