package record

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Vardef is the schema descriptor of one field: its type plus arbitrary
// legacy metadata (vname, len, options, ...).
type Vardef map[string]interface{}

// Type returns the declared field type, or "" when absent.
func (v Vardef) Type() string {
	return v.String("type")
}

// String returns a metadata value as a string, or "" when absent or not a string.
func (v Vardef) String(key string) string {
	if v == nil {
		return ""
	}
	s, _ := v[key].(string)
	return s
}

// Clone returns a shallow copy.
func (v Vardef) Clone() Vardef {
	if v == nil {
		return nil
	}
	out := make(Vardef, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// FieldDefinition is the ordered field schema of one module.
type FieldDefinition struct {
	module  string
	fields  []string
	vardefs map[string]Vardef
}

// NewFieldDefinition creates an empty definition for module.
func NewFieldDefinition(module string) *FieldDefinition {
	return &FieldDefinition{
		module:  module,
		vardefs: make(map[string]Vardef),
	}
}

// Module returns the module the definition belongs to.
func (d *FieldDefinition) Module() string {
	if d == nil {
		return ""
	}
	return d.module
}

// Add appends a field. Re-adding a field replaces its vardef and keeps its position.
func (d *FieldDefinition) Add(name string, vardef Vardef) {
	if d.vardefs == nil {
		d.vardefs = make(map[string]Vardef)
	}
	if _, exists := d.vardefs[name]; !exists {
		d.fields = append(d.fields, name)
	}
	if vardef == nil {
		vardef = Vardef{}
	}
	d.vardefs[name] = vardef
}

// Fields returns field names in declared order.
func (d *FieldDefinition) Fields() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.fields))
	copy(out, d.fields)
	return out
}

// Vardef returns the descriptor for a field.
func (d *FieldDefinition) Vardef(name string) (Vardef, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.vardefs[name]
	return v, ok
}

// Has reports whether the schema declares field.
func (d *FieldDefinition) Has(name string) bool {
	_, ok := d.Vardef(name)
	return ok
}

// Len returns the number of declared fields.
func (d *FieldDefinition) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// ParseFieldDefinition decodes a JSON object of field name to vardef,
// keeping the document's key order.
func ParseFieldDefinition(module string, data []byte) (*FieldDefinition, error) {
	def := NewFieldDefinition(module)
	if err := def.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return def, nil
}

// UnmarshalJSON keeps the declared field order of the source document.
func (d *FieldDefinition) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("vardefs: invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return fmt.Errorf("vardefs: expected object, got %s", root.Type)
	}

	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			parseErr = fmt.Errorf("vardefs: field %q: expected object", key.String())
			return false
		}
		vardef, ok := value.Value().(map[string]interface{})
		if !ok {
			parseErr = fmt.Errorf("vardefs: field %q: unexpected value", key.String())
			return false
		}
		d.Add(key.String(), Vardef(vardef))
		return true
	})
	return parseErr
}

// MarshalJSON writes fields in declared order.
func (d *FieldDefinition) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range d.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(d.vardefs[name])
		if err != nil {
			return nil, fmt.Errorf("vardefs: field %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML keeps the declared field order of a YAML mapping.
func (d *FieldDefinition) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("vardefs: expected mapping at line %d", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i]
		var vardef map[string]interface{}
		if err := value.Content[i+1].Decode(&vardef); err != nil {
			return fmt.Errorf("vardefs: field %q: %w", key.Value, err)
		}
		d.Add(key.Value, Vardef(vardef))
	}
	return nil
}
