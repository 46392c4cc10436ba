package mappers

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Ariadne/pkg/fielddefs"
	"github.com/wehubfusion/Ariadne/pkg/record"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Runner runs every applicable mapper over a record in one direction.
type Runner struct {
	provider      fielddefs.Provider
	recordMappers RecordMapperLookup
	fieldMappers  FieldMapperLookup
	typeMappers   FieldTypeMapperLookup
	logger        *zap.Logger
	tracer        trace.Tracer
}

// NewRunner creates a runner over the given schema provider and registries.
func NewRunner(
	provider fielddefs.Provider,
	recordMappers RecordMapperLookup,
	fieldMappers FieldMapperLookup,
	typeMappers FieldTypeMapperLookup,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		provider:      provider,
		recordMappers: recordMappers,
		fieldMappers:  fieldMappers,
		typeMappers:   typeMappers,
		logger:        logger,
		tracer:        otel.Tracer("ariadne/mappers"),
	}
}

// NewRunnerFromRegistries creates a runner over a Registries bundle.
func NewRunnerFromRegistries(provider fielddefs.Provider, regs *Registries, logger *zap.Logger) *Runner {
	return NewRunner(provider, regs.Records, regs.Fields, regs.FieldTypes, logger)
}

// ToInternal maps rec into its storage representation.
func (r *Runner) ToInternal(ctx context.Context, rec *record.Record) error {
	return r.Run(ctx, rec, ToInternal)
}

// ToExternal maps rec into its API representation.
func (r *Runner) ToExternal(ctx context.Context, rec *record.Record) error {
	return r.Run(ctx, rec, ToExternal)
}

// Run applies record mappers, then the type and field mappers of every schema
// field in declared order, then the field mappers of attributes the schema
// does not declare. Records without a module or attributes are left alone.
func (r *Runner) Run(ctx context.Context, rec *record.Record, direction Direction) error {
	if direction != ToInternal && direction != ToExternal {
		return fmt.Errorf("unknown mapping direction %q", direction)
	}
	if rec.IsEmpty() {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "mappers.run",
		trace.WithAttributes(
			attribute.String("record.module", rec.Module),
			attribute.String("mapping.direction", string(direction)),
		),
	)
	defer span.End()

	if err := r.run(ctx, rec, direction); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *Runner) run(ctx context.Context, rec *record.Record, direction Direction) error {
	module := rec.Module
	attributes := rec.AttributeNames()

	defs, err := r.provider.GetVardef(ctx, module)
	if err != nil {
		return fmt.Errorf("failed to load field definitions for %s: %w", module, err)
	}
	if defs == nil {
		defs = record.NewFieldDefinition(module)
	}

	for _, m := range r.recordMappers.GetMappers(module) {
		if err := runRecordMapper(m, rec, defs, direction); err != nil {
			return fmt.Errorf("record mapper %s for %s: %w", m.Key(), module, err)
		}
	}

	seen := make(map[string]struct{}, defs.Len())
	for _, field := range defs.Fields() {
		seen[field] = struct{}{}
		vardef, _ := defs.Vardef(field)
		if err := r.runField(module, field, vardef, rec, defs, direction); err != nil {
			return err
		}
	}

	for _, field := range attributes {
		if _, ok := seen[field]; ok {
			continue
		}
		if err := r.runField(module, field, nil, rec, defs, direction); err != nil {
			return err
		}
	}

	r.logger.Debug("Mapped record",
		zap.String("module", module),
		zap.String("direction", string(direction)),
		zap.Int("schema_fields", defs.Len()),
		zap.Int("attributes", len(attributes)))
	return nil
}

func (r *Runner) runField(module, field string, vardef record.Vardef, rec *record.Record, defs *record.FieldDefinition, direction Direction) error {
	if fieldType := vardef.Type(); fieldType != "" {
		for _, m := range r.typeMappers.GetMappers(module, fieldType) {
			var err error
			if direction == ToInternal {
				err = m.ToInternal(rec, defs, field)
			} else {
				err = m.ToExternal(rec, defs, field)
			}
			if err != nil {
				return fmt.Errorf("type mapper %s for %s.%s: %w", m.Key(), module, field, err)
			}
		}
	}

	for _, m := range r.fieldMappers.GetMappers(module, field) {
		var err error
		if direction == ToInternal {
			err = m.ToInternal(rec, defs)
		} else {
			err = m.ToExternal(rec, defs)
		}
		if err != nil {
			return fmt.Errorf("field mapper %s for %s.%s: %w", m.Key(), module, field, err)
		}
	}
	return nil
}

func runRecordMapper(m RecordMapper, rec *record.Record, defs *record.FieldDefinition, direction Direction) error {
	if direction == ToInternal {
		return m.ToInternal(rec, defs)
	}
	return m.ToExternal(rec, defs)
}
