package viewdefs

import (
	"strings"

	"github.com/wehubfusion/Ariadne/pkg/record"
	"go.uber.org/zap"
)

// Template meta defaults applied when the legacy document omits a value.
const (
	DefaultMaxColumns = 2
	DefaultUseTabs    = true
)

// Assembler converts legacy definitions using a module's vardefs.
type Assembler struct {
	logger *zap.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger}
}

// RecordView assembles a detail view. Empty and nameless cells are skipped,
// cells naming unknown fields are logged and dropped, rows are always kept.
func (a *Assembler) RecordView(legacy *LegacyDetailDefs, vardefs *record.FieldDefinition) *RecordView {
	if legacy == nil {
		legacy = &LegacyDetailDefs{}
	}

	view := &RecordView{
		TemplateMeta: templateMeta(legacy.TemplateMeta),
		Actions:      []interface{}{},
		Panels:       []Panel{},
	}

	for _, panel := range legacy.Panels {
		rows := make([]Row, 0, len(panel.Rows))
		for _, legacyRow := range panel.Rows {
			row := Row{Cols: []Cell{}}
			for _, raw := range legacyRow {
				cell, ok := a.fieldCell(raw, vardefs, "RecordViewDefinitions")
				if !ok {
					continue
				}
				row.Cols = append(row.Cols, cell)
			}
			rows = append(rows, row)
		}
		view.Panels = append(view.Panels, Panel{Key: panel.Key, Rows: rows})
	}
	return view
}

// ListView assembles list columns. Legacy keys are upper-case field names.
func (a *Assembler) ListView(legacy LegacyListDefs, vardefs *record.FieldDefinition) *ListView {
	view := &ListView{Columns: []Cell{}}
	for _, column := range legacy {
		def := make(map[string]interface{}, len(column.Definition)+1)
		for k, v := range column.Definition {
			def[k] = v
		}
		def["name"] = strings.ToLower(column.Key)

		cell, ok := a.fieldCell(def, vardefs, "ListViewDefinitions")
		if !ok {
			continue
		}
		view.Columns = append(view.Columns, cell)
	}
	return view
}

// SearchDefs assembles the basic and advanced search layouts.
func (a *Assembler) SearchDefs(legacy *LegacySearchDefs, vardefs *record.FieldDefinition) *SearchDefs {
	defs := &SearchDefs{Layout: SearchLayout{Basic: map[string]Cell{}, Advanced: map[string]Cell{}}}
	if legacy == nil {
		return defs
	}
	for _, raw := range legacy.Layout.BasicSearch {
		if cell, ok := a.fieldCell(raw, vardefs, "SearchDefinitions"); ok {
			defs.Layout.Basic[cell.Name()] = cell
		}
	}
	for _, raw := range legacy.Layout.AdvancedSearch {
		if cell, ok := a.fieldCell(raw, vardefs, "SearchDefinitions"); ok {
			defs.Layout.Advanced[cell.Name()] = cell
		}
	}
	return defs
}

func (a *Assembler) fieldCell(raw interface{}, vardefs *record.FieldDefinition, source string) (Cell, bool) {
	var definition map[string]interface{}
	switch v := raw.(type) {
	case nil:
		return nil, false
	case string:
		if v == "" {
			return nil, false
		}
		definition = map[string]interface{}{"name": v, "label": ""}
	case map[string]interface{}:
		if len(v) == 0 {
			return nil, false
		}
		definition = v
	default:
		return nil, false
	}

	name, _ := definition["name"].(string)
	if name == "" {
		return nil, false
	}

	vardef, ok := vardefs.Vardef(name)
	if !ok {
		a.logger.Warn(source+": field not set on vardefs. Ignoring.",
			zap.String("module", vardefs.Module()),
			zap.String("field", name))
		return nil, false
	}

	return buildFieldCell(definition, vardef), true
}

// buildFieldCell merges the cell over the default {name, label} definition
// and attaches the vardef. Empty label and type fall back to the vardef.
func buildFieldCell(definition map[string]interface{}, vardef record.Vardef) Cell {
	cell := Cell{"name": "", "label": ""}
	for k, v := range definition {
		cell[k] = v
	}
	cell["fieldDefinition"] = vardef.Clone()

	if label, _ := cell["label"].(string); label == "" {
		if vname := vardef.String("vname"); vname != "" {
			cell["label"] = vname
		}
	}
	if fieldType, _ := cell["type"].(string); fieldType == "" {
		if t := vardef.Type(); t != "" {
			cell["type"] = t
		}
	}
	return cell
}

func templateMeta(legacy LegacyTemplateMeta) TemplateMeta {
	meta := TemplateMeta{
		MaxColumns: DefaultMaxColumns,
		UseTabs:    DefaultUseTabs,
		TabDefs:    []interface{}{},
	}
	if legacy.MaxColumns != nil {
		meta.MaxColumns = *legacy.MaxColumns
	}
	if legacy.UseTabs != nil {
		meta.UseTabs = *legacy.UseTabs
	}
	if legacy.TabDefs != nil {
		meta.TabDefs = legacy.TabDefs
	}
	return meta
}
