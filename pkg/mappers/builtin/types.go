// Package builtin provides the stock field type, field and record mappers.
package builtin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wehubfusion/Ariadne/pkg/mappers"
	"github.com/wehubfusion/Ariadne/pkg/record"
)

// InternalDateTimeLayout is the storage layout of datetime fields, always UTC.
const InternalDateTimeLayout = "2006-01-02 15:04:05"

// BoolMapper maps external booleans to the internal "1"/"0" flags.
type BoolMapper struct {
	module string
}

// NewBoolMapper creates a bool mapper for module (DefaultModule for all).
func NewBoolMapper(module string) *BoolMapper {
	return &BoolMapper{module: module}
}

// Key and the methods below implement mappers.FieldTypeMapper.
func (m *BoolMapper) Key() string        { return "bool" }
func (m *BoolMapper) ModuleName() string { return m.module }
func (m *BoolMapper) FieldType() string  { return "bool" }

// ToInternal stores the field as "1" or "0".
func (m *BoolMapper) ToInternal(rec *record.Record, _ *record.FieldDefinition, field string) error {
	value, ok := rec.Get(field)
	if !ok || value == nil {
		return nil
	}
	b, err := parseBool(value)
	if err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	if b {
		rec.Set(field, "1")
	} else {
		rec.Set(field, "0")
	}
	return nil
}

// ToExternal turns a stored flag back into a bool.
func (m *BoolMapper) ToExternal(rec *record.Record, _ *record.FieldDefinition, field string) error {
	value, ok := rec.Get(field)
	if !ok || value == nil {
		return nil
	}
	b, err := parseBool(value)
	if err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	rec.Set(field, b)
	return nil
}

func parseBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes":
			return true, nil
		case "0", "false", "off", "no", "":
			return false, nil
		}
		return false, fmt.Errorf("invalid boolean %q", v)
	}
	return false, fmt.Errorf("invalid boolean of type %T", value)
}

// DateTimeMapper maps RFC 3339 timestamps to the internal UTC layout.
type DateTimeMapper struct {
	module    string
	fieldType string
}

// NewDateTimeMapper creates a mapper for fieldType ("datetime" or "datetimecombo").
func NewDateTimeMapper(module, fieldType string) *DateTimeMapper {
	return &DateTimeMapper{module: module, fieldType: fieldType}
}

// Key and the methods below implement mappers.FieldTypeMapper.
func (m *DateTimeMapper) Key() string        { return "datetime" }
func (m *DateTimeMapper) ModuleName() string { return m.module }
func (m *DateTimeMapper) FieldType() string  { return m.fieldType }

// ToInternal converts an RFC 3339 timestamp to InternalDateTimeLayout in UTC.
// Values already in the internal layout are left alone.
func (m *DateTimeMapper) ToInternal(rec *record.Record, _ *record.FieldDefinition, field string) error {
	s, ok := stringValue(rec, field)
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		if _, internalErr := time.Parse(InternalDateTimeLayout, s); internalErr == nil {
			return nil
		}
		return fmt.Errorf("field %s: invalid timestamp %q", field, s)
	}
	rec.Set(field, t.UTC().Format(InternalDateTimeLayout))
	return nil
}

// ToExternal converts a stored UTC timestamp to RFC 3339.
func (m *DateTimeMapper) ToExternal(rec *record.Record, _ *record.FieldDefinition, field string) error {
	s, ok := stringValue(rec, field)
	if !ok {
		return nil
	}
	t, err := time.ParseInLocation(InternalDateTimeLayout, s, time.UTC)
	if err != nil {
		if _, externalErr := time.Parse(time.RFC3339, s); externalErr == nil {
			return nil
		}
		return fmt.Errorf("field %s: invalid timestamp %q", field, s)
	}
	rec.Set(field, t.Format(time.RFC3339))
	return nil
}

// MultiEnumMapper maps external string lists to the internal ^a^,^b^ encoding.
type MultiEnumMapper struct {
	module string
}

// NewMultiEnumMapper creates a multienum mapper for module.
func NewMultiEnumMapper(module string) *MultiEnumMapper {
	return &MultiEnumMapper{module: module}
}

// Key and the methods below implement mappers.FieldTypeMapper.
func (m *MultiEnumMapper) Key() string        { return "multienum" }
func (m *MultiEnumMapper) ModuleName() string { return m.module }
func (m *MultiEnumMapper) FieldType() string  { return "multienum" }

// ToInternal encodes a list of values as ^a^,^b^.
func (m *MultiEnumMapper) ToInternal(rec *record.Record, _ *record.FieldDefinition, field string) error {
	value, ok := rec.Get(field)
	if !ok || value == nil {
		return nil
	}

	var items []string
	switch v := value.(type) {
	case []string:
		items = v
	case []interface{}:
		items = make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, toString(item))
		}
	case string:
		return nil
	default:
		return fmt.Errorf("field %s: expected list, got %T", field, value)
	}

	encoded := make([]string, len(items))
	for i, item := range items {
		encoded[i] = "^" + item + "^"
	}
	rec.Set(field, strings.Join(encoded, ","))
	return nil
}

// ToExternal decodes ^a^,^b^ into a list of values.
func (m *MultiEnumMapper) ToExternal(rec *record.Record, _ *record.FieldDefinition, field string) error {
	s, ok := rec.Get(field)
	if !ok || s == nil {
		return nil
	}
	encoded, isString := s.(string)
	if !isString {
		return nil
	}
	items := []string{}
	if encoded != "" {
		for _, part := range strings.Split(encoded, ",") {
			items = append(items, strings.Trim(part, "^"))
		}
	}
	rec.Set(field, items)
	return nil
}

func stringValue(rec *record.Record, field string) (string, bool) {
	value, ok := rec.Get(field)
	if !ok {
		return "", false
	}
	s, isString := value.(string)
	if !isString || s == "" {
		return "", false
	}
	return s, true
}

// Compile-time interface checks
var (
	_ mappers.FieldTypeMapper = (*BoolMapper)(nil)
	_ mappers.FieldTypeMapper = (*DateTimeMapper)(nil)
	_ mappers.FieldTypeMapper = (*MultiEnumMapper)(nil)
	_ mappers.FieldMapper     = (*TransformMapper)(nil)
	_ mappers.RecordMapper    = (*PersonNameMapper)(nil)
)

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
