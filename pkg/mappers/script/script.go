// Package script provides field mappers whose conversions are JavaScript
// expressions evaluated by goja.
//
// Each expression sees two globals: value (the field's current value) and
// record (a copy of the record attributes). The expression's result becomes
// the new value; undefined leaves the field unchanged.
package script

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/wehubfusion/Ariadne/pkg/mappers"
	"github.com/wehubfusion/Ariadne/pkg/record"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single expression evaluation.
const DefaultTimeout = 100 * time.Millisecond

// ErrTimeout is returned when an expression exceeds its timeout.
var ErrTimeout = errors.New("script execution timeout")

// Spec configures one script mapper.
type Spec struct {
	Module     string `yaml:"module" json:"module"`
	Field      string `yaml:"field" json:"field"`
	ToInternal string `yaml:"to_internal" json:"toInternal"`
	ToExternal string `yaml:"to_external" json:"toExternal"`
	TimeoutMs  int    `yaml:"timeout_ms" json:"timeoutMs"`
}

// Mapper is a FieldMapper backed by precompiled goja programs.
type Mapper struct {
	module     string
	field      string
	toInternal *goja.Program
	toExternal *goja.Program
	timeout    time.Duration
	logger     *zap.Logger
}

// New compiles the expressions of spec. An empty expression disables that direction.
func New(spec Spec, logger *zap.Logger) (*Mapper, error) {
	if spec.Module == "" || spec.Field == "" {
		return nil, fmt.Errorf("script mapper requires module and field")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Mapper{
		module:  spec.Module,
		field:   spec.Field,
		timeout: DefaultTimeout,
		logger:  logger,
	}
	if spec.TimeoutMs > 0 {
		m.timeout = time.Duration(spec.TimeoutMs) * time.Millisecond
	}

	var err error
	if m.toInternal, err = compile(spec, "to_internal", spec.ToInternal); err != nil {
		return nil, err
	}
	if m.toExternal, err = compile(spec, "to_external", spec.ToExternal); err != nil {
		return nil, err
	}
	return m, nil
}

func compile(spec Spec, direction, src string) (*goja.Program, error) {
	if src == "" {
		return nil, nil
	}
	name := fmt.Sprintf("%s.%s.%s.js", spec.Module, spec.Field, direction)
	program, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", name, err)
	}
	return program, nil
}

// Key and the methods below implement mappers.FieldMapper.
func (m *Mapper) Key() string        { return "script:" + m.field }
func (m *Mapper) ModuleName() string { return m.module }
func (m *Mapper) Field() string      { return m.field }

// ToInternal runs the to_internal expression. A mapper without one does nothing.
func (m *Mapper) ToInternal(rec *record.Record, _ *record.FieldDefinition) error {
	return m.apply(rec, m.toInternal)
}

// ToExternal runs the to_external expression.
func (m *Mapper) ToExternal(rec *record.Record, _ *record.FieldDefinition) error {
	return m.apply(rec, m.toExternal)
}

func (m *Mapper) apply(rec *record.Record, program *goja.Program) error {
	if program == nil {
		return nil
	}
	value, ok := rec.Get(m.field)
	if !ok {
		return nil
	}

	attrs := make(map[string]interface{}, len(rec.Attributes))
	for k, v := range rec.Attributes {
		attrs[k] = v
	}

	result, err := m.run(program, value, attrs)
	if err != nil {
		m.logger.Warn("Script mapper failed",
			zap.String("module", m.module),
			zap.String("field", m.field),
			zap.Error(err))
		return err
	}
	if goja.IsUndefined(result) {
		return nil
	}
	if goja.IsNull(result) {
		rec.Set(m.field, nil)
		return nil
	}
	rec.Set(m.field, result.Export())
	return nil
}

func (m *Mapper) run(program *goja.Program, value interface{}, attrs map[string]interface{}) (result goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during script execution: %v", r)
		}
	}()

	vm := goja.New()
	if err := applySandbox(vm); err != nil {
		return nil, err
	}
	if err := vm.Set("value", value); err != nil {
		return nil, fmt.Errorf("failed to set value: %w", err)
	}
	if err := vm.Set("record", attrs); err != nil {
		return nil, fmt.Errorf("failed to set record: %w", err)
	}

	timer := time.AfterFunc(m.timeout, func() {
		vm.Interrupt("execution timeout")
	})
	defer timer.Stop()

	result, err = vm.RunProgram(program)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("%s.%s after %s: %w", m.module, m.field, m.timeout, ErrTimeout)
		}
		return nil, fmt.Errorf("%s.%s: %w", m.module, m.field, err)
	}
	return result, nil
}

// applySandbox hides host-escape globals and disables eval.
func applySandbox(vm *goja.Runtime) error {
	for _, name := range []string{"require", "module", "exports", "process", "global", "Buffer"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return vm.Set("eval", func(goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("eval is not allowed"))
	})
}

// Register compiles every spec and adds the mappers to the field registry.
func Register(regs *mappers.Registries, specs []Spec, logger *zap.Logger) error {
	for i, spec := range specs {
		m, err := New(spec, logger)
		if err != nil {
			return fmt.Errorf("script %d: %w", i, err)
		}
		regs.Fields.Register(m)
	}
	return nil
}

var _ mappers.FieldMapper = (*Mapper)(nil)
