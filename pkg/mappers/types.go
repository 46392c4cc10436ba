// Package mappers converts CRM record attributes between their internal
// (storage) and external (API) representations.
//
// Mappers are registered per module at three levels: record mappers see the
// whole record, field type mappers run for every field of a vardef type, and
// field mappers run for one named field. Mappers registered under
// DefaultModule apply to every module.
package mappers

import (
	"fmt"

	"github.com/wehubfusion/Ariadne/pkg/record"
)

// Direction selects which side of a mapper runs.
type Direction string

const (
	// ToInternal maps API values into their storage representation.
	ToInternal Direction = "toInternal"
	// ToExternal maps storage values into their API representation.
	ToExternal Direction = "toExternal"
)

// DefaultModule is the module whose mappers apply to every module.
const DefaultModule = "default"

// ParseDirection parses "toInternal"/"internal" and "toExternal"/"external".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case string(ToInternal), "internal", "to-internal":
		return ToInternal, nil
	case string(ToExternal), "external", "to-external":
		return ToExternal, nil
	}
	return "", fmt.Errorf("unknown mapping direction %q", s)
}

// RecordMapper transforms a whole record.
type RecordMapper interface {
	Key() string
	ModuleName() string
	ToInternal(rec *record.Record, defs *record.FieldDefinition) error
	ToExternal(rec *record.Record, defs *record.FieldDefinition) error
}

// FieldMapper transforms one named field of a module.
type FieldMapper interface {
	Key() string
	ModuleName() string
	Field() string
	ToInternal(rec *record.Record, defs *record.FieldDefinition) error
	ToExternal(rec *record.Record, defs *record.FieldDefinition) error
}

// FieldTypeMapper transforms every field of a vardef type. The field being
// mapped is passed explicitly.
type FieldTypeMapper interface {
	Key() string
	ModuleName() string
	FieldType() string
	ToInternal(rec *record.Record, defs *record.FieldDefinition, field string) error
	ToExternal(rec *record.Record, defs *record.FieldDefinition, field string) error
}

// RecordMapperLookup returns the record mappers applicable to a module.
type RecordMapperLookup interface {
	GetMappers(module string) []RecordMapper
}

// FieldMapperLookup returns the field mappers applicable to a module field.
type FieldMapperLookup interface {
	GetMappers(module, field string) []FieldMapper
}

// FieldTypeMapperLookup returns the type mappers applicable to a module field type.
type FieldTypeMapperLookup interface {
	GetMappers(module, fieldType string) []FieldTypeMapper
}
