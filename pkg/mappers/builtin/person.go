package builtin

import (
	"strings"

	"github.com/wehubfusion/Ariadne/pkg/record"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PersonModules lists the modules whose records carry person name fields.
var PersonModules = []string{"Contacts", "Leads", "Prospects", "Users", "Employees"}

// PersonNameMapper derives full_name from salutation, first and last name.
// The derived field never reaches storage.
type PersonNameMapper struct {
	module string
}

// NewPersonNameMapper creates a person-name mapper for module.
func NewPersonNameMapper(module string) *PersonNameMapper {
	return &PersonNameMapper{module: module}
}

// Key and ModuleName implement mappers.RecordMapper.
func (m *PersonNameMapper) Key() string        { return "person-name" }
func (m *PersonNameMapper) ModuleName() string { return m.module }

// ToInternal drops the derived full_name.
func (m *PersonNameMapper) ToInternal(rec *record.Record, _ *record.FieldDefinition) error {
	rec.Delete("full_name")
	return nil
}

// ToExternal sets full_name from the title-cased name parts.
func (m *PersonNameMapper) ToExternal(rec *record.Record, _ *record.FieldDefinition) error {
	caser := cases.Title(language.Und, cases.NoLower)
	parts := make([]string, 0, 3)
	for _, field := range []string{"salutation", "first_name", "last_name"} {
		value, ok := rec.Get(field)
		if !ok {
			continue
		}
		s := strings.TrimSpace(toString(value))
		if s == "" {
			continue
		}
		if field != "salutation" {
			s = caser.String(s)
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return nil
	}
	rec.Set("full_name", strings.Join(parts, " "))
	return nil
}
