package mappers

import (
	"sync"
)

type keyed interface {
	Key() string
}

// bucket holds the mappers of one lookup key in insertion order.
type bucket[M keyed] struct {
	mappers []M
}

func (b *bucket[M]) put(m M) {
	for i, existing := range b.mappers {
		if existing.Key() == m.Key() {
			b.mappers[i] = m
			return
		}
	}
	b.mappers = append(b.mappers, m)
}

// index maps module -> sub key -> bucket. Record mappers use an empty sub key.
type index[M keyed] struct {
	mu      sync.RWMutex
	entries map[string]map[string]*bucket[M]
}

func newIndex[M keyed]() *index[M] {
	return &index[M]{entries: make(map[string]map[string]*bucket[M])}
}

func (x *index[M]) add(module, sub string, m M) {
	x.mu.Lock()
	defer x.mu.Unlock()

	byModule, ok := x.entries[module]
	if !ok {
		byModule = make(map[string]*bucket[M])
		x.entries[module] = byModule
	}
	b, ok := byModule[sub]
	if !ok {
		b = &bucket[M]{}
		byModule[sub] = b
	}
	b.put(m)
}

// lookup returns default mappers followed by module mappers. A module mapper
// sharing a key with a default mapper takes the default's position.
func (x *index[M]) lookup(module, sub string) []M {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var merged bucket[M]
	if b, ok := x.entries[DefaultModule][sub]; ok {
		merged.mappers = append(merged.mappers, b.mappers...)
	}
	if module != DefaultModule {
		if b, ok := x.entries[module][sub]; ok {
			for _, m := range b.mappers {
				merged.put(m)
			}
		}
	}
	return merged.mappers
}

func (x *index[M]) count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	n := 0
	for _, byModule := range x.entries {
		for _, b := range byModule {
			n += len(b.mappers)
		}
	}
	return n
}

// RecordMapperRegistry holds record mappers keyed by module.
type RecordMapperRegistry struct {
	idx *index[RecordMapper]
}

// NewRecordMapperRegistry creates an empty registry.
func NewRecordMapperRegistry() *RecordMapperRegistry {
	return &RecordMapperRegistry{idx: newIndex[RecordMapper]()}
}

// Register adds a mapper under its ModuleName.
func (r *RecordMapperRegistry) Register(m RecordMapper) {
	r.idx.add(m.ModuleName(), "", m)
}

// GetMappers returns the record mappers for module.
func (r *RecordMapperRegistry) GetMappers(module string) []RecordMapper {
	return r.idx.lookup(module, "")
}

// Len returns the number of registered mappers.
func (r *RecordMapperRegistry) Len() int { return r.idx.count() }

// FieldMapperRegistry holds field mappers keyed by module and field.
type FieldMapperRegistry struct {
	idx *index[FieldMapper]
}

// NewFieldMapperRegistry creates an empty registry.
func NewFieldMapperRegistry() *FieldMapperRegistry {
	return &FieldMapperRegistry{idx: newIndex[FieldMapper]()}
}

// Register adds a mapper under its ModuleName and Field.
func (r *FieldMapperRegistry) Register(m FieldMapper) {
	r.idx.add(m.ModuleName(), m.Field(), m)
}

// GetMappers returns the field mappers for module and field.
func (r *FieldMapperRegistry) GetMappers(module, field string) []FieldMapper {
	return r.idx.lookup(module, field)
}

// Len returns the number of registered mappers.
func (r *FieldMapperRegistry) Len() int { return r.idx.count() }

// FieldTypeMapperRegistry holds type mappers keyed by module and vardef type.
type FieldTypeMapperRegistry struct {
	idx *index[FieldTypeMapper]
}

// NewFieldTypeMapperRegistry creates an empty registry.
func NewFieldTypeMapperRegistry() *FieldTypeMapperRegistry {
	return &FieldTypeMapperRegistry{idx: newIndex[FieldTypeMapper]()}
}

// Register adds a mapper under its ModuleName and FieldType.
func (r *FieldTypeMapperRegistry) Register(m FieldTypeMapper) {
	r.idx.add(m.ModuleName(), m.FieldType(), m)
}

// GetMappers returns the type mappers for module and fieldType.
func (r *FieldTypeMapperRegistry) GetMappers(module, fieldType string) []FieldTypeMapper {
	return r.idx.lookup(module, fieldType)
}

// Len returns the number of registered mappers.
func (r *FieldTypeMapperRegistry) Len() int { return r.idx.count() }

// Registries bundles the three registries used by a Runner.
type Registries struct {
	Records    *RecordMapperRegistry
	Fields     *FieldMapperRegistry
	FieldTypes *FieldTypeMapperRegistry
}

// NewRegistries creates empty registries.
func NewRegistries() *Registries {
	return &Registries{
		Records:    NewRecordMapperRegistry(),
		Fields:     NewFieldMapperRegistry(),
		FieldTypes: NewFieldTypeMapperRegistry(),
	}
}
