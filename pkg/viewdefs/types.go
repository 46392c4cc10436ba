// Package viewdefs converts legacy view metadata (detail, list and search
// definitions) into the JSON shapes consumed by the frontend.
package viewdefs

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Cell is one field definition inside a row, list column or search layout.
type Cell map[string]interface{}

// Name returns the cell's field name.
func (c Cell) Name() string {
	s, _ := c["name"].(string)
	return s
}

// TemplateMeta holds the layout settings of a record view.
type TemplateMeta struct {
	MaxColumns int         `json:"maxColumns"`
	UseTabs    bool        `json:"useTabs"`
	TabDefs    interface{} `json:"tabDefs"`
}

// Row is a row of cells.
type Row struct {
	Cols []Cell `json:"cols"`
}

// Panel is a keyed group of rows.
type Panel struct {
	Key  string `json:"key"`
	Rows []Row  `json:"rows"`
}

// RecordView is the assembled detail view.
type RecordView struct {
	TemplateMeta TemplateMeta  `json:"templateMeta"`
	Actions      []interface{} `json:"actions"`
	Panels       []Panel       `json:"panels"`
}

// ListView is the assembled list view.
type ListView struct {
	Columns []Cell `json:"columns"`
}

// SearchLayout holds the basic and advanced search fields keyed by name.
type SearchLayout struct {
	Basic    map[string]Cell `json:"basic"`
	Advanced map[string]Cell `json:"advanced"`
}

// SearchDefs is the assembled search definition.
type SearchDefs struct {
	Layout SearchLayout `json:"layout"`
}

// ViewDefinition bundles the views of one module.
type ViewDefinition struct {
	ID         string      `json:"id"`
	RecordView *RecordView `json:"recordView,omitempty"`
	ListView   *ListView   `json:"listView,omitempty"`
	Search     *SearchDefs `json:"search,omitempty"`
}

// LegacyDetailDefs is the legacy detail view document.
type LegacyDetailDefs struct {
	TemplateMeta LegacyTemplateMeta `yaml:"templateMeta"`
	Panels       LegacyPanels       `yaml:"panels"`
}

// LegacyTemplateMeta mirrors legacy templateMeta; absent values take defaults.
type LegacyTemplateMeta struct {
	MaxColumns *int        `yaml:"maxColumns"`
	UseTabs    *bool       `yaml:"useTabs"`
	TabDefs    interface{} `yaml:"tabDefs"`
}

// LegacyPanel is one legacy panel: rows of cells, each cell a bare field
// name or a partial definition.
type LegacyPanel struct {
	Key  string
	Rows [][]interface{}
}

// LegacyPanels keeps the declared panel order. Panels may be a mapping of
// key to rows or a sequence, in which case keys are the indexes.
type LegacyPanels []LegacyPanel

// UnmarshalYAML decodes panels in document order.
func (p *LegacyPanels) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			rows, err := decodeRows(value.Content[i+1])
			if err != nil {
				return fmt.Errorf("panel %q: %w", value.Content[i].Value, err)
			}
			*p = append(*p, LegacyPanel{Key: value.Content[i].Value, Rows: rows})
		}
	case yaml.SequenceNode:
		for i, node := range value.Content {
			rows, err := decodeRows(node)
			if err != nil {
				return fmt.Errorf("panel %d: %w", i, err)
			}
			*p = append(*p, LegacyPanel{Key: strconv.Itoa(i), Rows: rows})
		}
	default:
		return fmt.Errorf("panels: expected mapping or sequence at line %d", value.Line)
	}
	return nil
}

// decodeRows accepts a sequence of rows, where a row is a sequence of cells
// or a single cell.
func decodeRows(node *yaml.Node) ([][]interface{}, error) {
	if node.ShortTag() == "!!null" {
		return [][]interface{}{}, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected sequence of rows at line %d", node.Line)
	}
	rows := make([][]interface{}, 0, len(node.Content))
	for _, rowNode := range node.Content {
		if rowNode.Kind != yaml.SequenceNode {
			var cell interface{}
			if err := rowNode.Decode(&cell); err != nil {
				return nil, err
			}
			rows = append(rows, []interface{}{cell})
			continue
		}
		var row []interface{}
		if err := rowNode.Decode(&row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LegacyListColumn is one legacy list column keyed by the upper-case field name.
type LegacyListColumn struct {
	Key        string
	Definition map[string]interface{}
}

// LegacyListDefs is the ordered legacy list view document.
type LegacyListDefs []LegacyListColumn

// UnmarshalYAML decodes columns in document order.
func (l *LegacyListDefs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("listviewdefs: expected mapping at line %d", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		var def map[string]interface{}
		if err := value.Content[i+1].Decode(&def); err != nil {
			return fmt.Errorf("column %q: %w", value.Content[i].Value, err)
		}
		*l = append(*l, LegacyListColumn{Key: value.Content[i].Value, Definition: def})
	}
	return nil
}

// LegacySearchDefs is the legacy search definition document.
type LegacySearchDefs struct {
	Layout struct {
		BasicSearch    LegacySearchFields `yaml:"basic_search"`
		AdvancedSearch LegacySearchFields `yaml:"advanced_search"`
	} `yaml:"layout"`
}

// LegacySearchFields is a list of field cells. The legacy format allows a
// sequence of names or definitions, or a mapping of name to definition.
type LegacySearchFields []interface{}

// UnmarshalYAML normalizes both legacy shapes into a list of cells.
func (f *LegacySearchFields) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var cells []interface{}
		if err := value.Decode(&cells); err != nil {
			return err
		}
		*f = cells
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			key := value.Content[i].Value
			var def map[string]interface{}
			if err := value.Content[i+1].Decode(&def); err != nil {
				return fmt.Errorf("search field %q: %w", key, err)
			}
			if def == nil {
				def = map[string]interface{}{}
			}
			if _, ok := def["name"]; !ok {
				def["name"] = key
			}
			*f = append(*f, def)
		}
	default:
		return fmt.Errorf("search layout: expected mapping or sequence at line %d", value.Line)
	}
	return nil
}
