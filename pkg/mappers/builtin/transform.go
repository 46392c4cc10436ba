package builtin

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wehubfusion/Ariadne/pkg/record"
)

type transformFunc func(value interface{}) (interface{}, error)

var transforms = map[string]transformFunc{
	"uppercase": stringTransform(strings.ToUpper),
	"lowercase": stringTransform(strings.ToLower),
	"trim":      stringTransform(strings.TrimSpace),
	"cents_to_dollars": func(value interface{}) (interface{}, error) {
		n, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		return n / 100, nil
	},
	"dollars_to_cents": func(value interface{}) (interface{}, error) {
		n, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		return int64(math.Round(n * 100)), nil
	},
	"string": func(value interface{}) (interface{}, error) {
		return toString(value), nil
	},
	"int": func(value interface{}) (interface{}, error) {
		n, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		return int64(n), nil
	},
	"bool": func(value interface{}) (interface{}, error) {
		return parseBool(value)
	},
	"date_iso": func(value interface{}) (interface{}, error) {
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return value, nil
		}
		return t.Format(time.RFC3339), nil
	},
	"iso_date": func(value interface{}) (interface{}, error) {
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return value, nil
		}
		return t.Format("2006-01-02"), nil
	},
}

// inverses pairs directional transforms. Transforms without an entry apply
// the same way in both directions.
var inverses = map[string]string{
	"cents_to_dollars": "dollars_to_cents",
	"dollars_to_cents": "cents_to_dollars",
	"date_iso":         "iso_date",
	"iso_date":         "date_iso",
}

// TransformNames returns the names of the supported value transforms.
func TransformNames() []string {
	names := make([]string, 0, len(transforms))
	for name := range transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stringTransform(fn func(string) string) transformFunc {
	return func(value interface{}) (interface{}, error) {
		if s, ok := value.(string); ok {
			return fn(s), nil
		}
		return value, nil
	}
}

// TransformMapper applies a named value transform to one field: the
// transform itself on the way out, its inverse on the way in.
type TransformMapper struct {
	module    string
	field     string
	transform string
}

// NewTransformMapper validates the transform name and creates the mapper.
func NewTransformMapper(module, field, transform string) (*TransformMapper, error) {
	if module == "" || field == "" {
		return nil, fmt.Errorf("transform mapper requires module and field")
	}
	if _, ok := transforms[transform]; !ok {
		return nil, fmt.Errorf("unknown transform %q", transform)
	}
	return &TransformMapper{module: module, field: field, transform: transform}, nil
}

// Key and the methods below implement mappers.FieldMapper.
func (m *TransformMapper) Key() string        { return "transform:" + m.field }
func (m *TransformMapper) ModuleName() string { return m.module }
func (m *TransformMapper) Field() string      { return m.field }

// ToExternal applies the transform.
func (m *TransformMapper) ToExternal(rec *record.Record, _ *record.FieldDefinition) error {
	return m.apply(rec, m.transform)
}

// ToInternal applies the registered inverse, or the transform itself when it
// has none.
func (m *TransformMapper) ToInternal(rec *record.Record, _ *record.FieldDefinition) error {
	name := m.transform
	if inverse, ok := inverses[name]; ok {
		name = inverse
	}
	return m.apply(rec, name)
}

func (m *TransformMapper) apply(rec *record.Record, name string) error {
	value, ok := rec.Get(m.field)
	if !ok || value == nil {
		return nil
	}
	out, err := transforms[name](value)
	if err != nil {
		return fmt.Errorf("transform %s on %s: %w", name, m.field, err)
	}
	rec.Set(m.field, out)
	return nil
}

func toFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", val)
		}
		return f, nil
	}
	return 0, fmt.Errorf("invalid number of type %T", v)
}
