package builtin

import (
	"fmt"

	"github.com/wehubfusion/Ariadne/pkg/mappers"
)

// TransformSpec configures a TransformMapper.
type TransformSpec struct {
	Module    string `yaml:"module" json:"module"`
	Field     string `yaml:"field" json:"field"`
	Transform string `yaml:"transform" json:"transform"`
}

// Register installs the stock mappers: type mappers for every module, the
// person-name mapper for person modules, and one TransformMapper per spec.
func Register(regs *mappers.Registries, specs []TransformSpec) error {
	regs.FieldTypes.Register(NewBoolMapper(mappers.DefaultModule))
	regs.FieldTypes.Register(NewDateTimeMapper(mappers.DefaultModule, "datetime"))
	regs.FieldTypes.Register(NewDateTimeMapper(mappers.DefaultModule, "datetimecombo"))
	regs.FieldTypes.Register(NewMultiEnumMapper(mappers.DefaultModule))

	for _, module := range PersonModules {
		regs.Records.Register(NewPersonNameMapper(module))
	}

	for i, spec := range specs {
		m, err := NewTransformMapper(spec.Module, spec.Field, spec.Transform)
		if err != nil {
			return fmt.Errorf("transform %d: %w", i, err)
		}
		regs.Fields.Register(m)
	}
	return nil
}
