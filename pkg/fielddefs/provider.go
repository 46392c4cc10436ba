// Package fielddefs supplies per-module field schemas (vardefs) to the mapping
// pipeline and the view definition assembler.
package fielddefs

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"github.com/wehubfusion/Ariadne/pkg/record"
	"github.com/wehubfusion/Ariadne/pkg/storage"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Provider returns the field schema of a module. A module without a schema
// yields an empty definition, not an error.
type Provider interface {
	GetVardef(ctx context.Context, module string) (*record.FieldDefinition, error)
}

// DefaultTTL is how long a loaded definition stays cached.
const DefaultTTL = 5 * time.Minute

// vardefSchema constrains vardef documents: an object of field objects whose
// type and vname are strings.
const vardefSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": {
		"type": "object",
		"properties": {
			"type": {"type": "string"},
			"vname": {"type": "string"}
		}
	}
}`

type cacheEntry struct {
	def      *record.FieldDefinition
	loadedAt time.Time
}

// StoreProvider loads vardefs/<Module>.json (or .yaml) from a document store
// and caches the result per module.
type StoreProvider struct {
	store  storage.DocumentStore
	schema *jsonschema.Schema
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// Option configures a StoreProvider.
type Option func(*StoreProvider)

// WithTTL sets the cache lifetime. A non-positive TTL caches forever.
func WithTTL(ttl time.Duration) Option {
	return func(p *StoreProvider) { p.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *StoreProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewStoreProvider creates a caching provider over store.
func NewStoreProvider(store storage.DocumentStore, opts ...Option) (*StoreProvider, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("vardefs.json", strings.NewReader(vardefSchema)); err != nil {
		return nil, fmt.Errorf("failed to add vardef schema: %w", err)
	}
	schema, err := compiler.Compile("vardefs.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile vardef schema: %w", err)
	}

	p := &StoreProvider{
		store:  store,
		schema: schema,
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// GetVardef returns the cached definition for module, loading it on a miss.
func (p *StoreProvider) GetVardef(ctx context.Context, module string) (*record.FieldDefinition, error) {
	if module == "" {
		return record.NewFieldDefinition(module), nil
	}
	if err := ValidateModule(module); err != nil {
		return nil, err
	}

	p.mu.RLock()
	entry, ok := p.cache[module]
	p.mu.RUnlock()
	if ok && (p.ttl <= 0 || p.now().Sub(entry.loadedAt) < p.ttl) {
		return entry.def, nil
	}

	def, err := p.load(ctx, module)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[module] = cacheEntry{def: def, loadedAt: p.now()}
	p.mu.Unlock()

	return def, nil
}

// ValidateModule rejects module names that are not a single document name,
// so a module cannot address documents outside its own vardefs entry.
func ValidateModule(module string) error {
	if module == "." || strings.Contains(module, "..") || strings.ContainsAny(module, `/\`) {
		return fmt.Errorf("invalid module name %q: %w", module, sdkerrors.ErrInvalidRequest)
	}
	return nil
}

// Invalidate drops the cached definition of module.
func (p *StoreProvider) Invalidate(module string) {
	p.mu.Lock()
	delete(p.cache, module)
	p.mu.Unlock()
}

// Clear drops every cached definition.
func (p *StoreProvider) Clear() {
	p.mu.Lock()
	p.cache = make(map[string]cacheEntry)
	p.mu.Unlock()
}

func (p *StoreProvider) load(ctx context.Context, module string) (*record.FieldDefinition, error) {
	base := path.Join("vardefs", module)
	found, data, err := storage.FirstExisting(ctx, p.store, base+".json", base+".yaml", base+".yml")
	if err != nil {
		if sdkerrors.IsNotFound(err) {
			p.logger.Debug("No vardefs for module", zap.String("module", module))
			return record.NewFieldDefinition(module), nil
		}
		return nil, fmt.Errorf("failed to load vardefs for %s: %w", module, err)
	}

	if strings.HasSuffix(found, ".json") {
		return p.decodeJSON(module, data)
	}
	return p.decodeYAML(module, data)
}

func (p *StoreProvider) decodeJSON(module string, data []byte) (*record.FieldDefinition, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("vardefs for %s: %v: %w", module, err, sdkerrors.ErrInvalidDocument)
	}
	if err := p.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("vardefs for %s: %v: %w", module, err, sdkerrors.ErrInvalidDocument)
	}
	def, err := record.ParseFieldDefinition(module, data)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, sdkerrors.ErrInvalidDocument)
	}
	p.logger.Debug("Loaded vardefs",
		zap.String("module", module),
		zap.Int("fields", def.Len()))
	return def, nil
}

func (p *StoreProvider) decodeYAML(module string, data []byte) (*record.FieldDefinition, error) {
	var generic map[string]interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("vardefs for %s: %v: %w", module, err, sdkerrors.ErrInvalidDocument)
	}
	if err := p.schema.Validate(toJSONValue(generic)); err != nil {
		return nil, fmt.Errorf("vardefs for %s: %v: %w", module, err, sdkerrors.ErrInvalidDocument)
	}
	def := record.NewFieldDefinition(module)
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("%v: %w", err, sdkerrors.ErrInvalidDocument)
	}
	return def, nil
}

// toJSONValue converts YAML scalars into the value kinds the validator expects.
func toJSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = toJSONValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = toJSONValue(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	}
	return v
}

// Static serves fixed definitions keyed by module.
type Static map[string]*record.FieldDefinition

// GetVardef implements Provider.
func (s Static) GetVardef(_ context.Context, module string) (*record.FieldDefinition, error) {
	if def, ok := s[module]; ok && def != nil {
		return def, nil
	}
	return record.NewFieldDefinition(module), nil
}
