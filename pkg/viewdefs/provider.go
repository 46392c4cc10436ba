package viewdefs

import (
	"context"
	"fmt"
	"path"
	"sync"

	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"github.com/wehubfusion/Ariadne/pkg/fielddefs"
	"github.com/wehubfusion/Ariadne/pkg/storage"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// View names accepted by GetViewDefs.
const (
	ViewRecord = "recordView"
	ViewList   = "listView"
	ViewSearch = "search"
)

// AllViews lists every view GetViewDefs can build.
var AllViews = []string{ViewRecord, ViewList, ViewSearch}

const (
	detailDocument = "detailviewdefs"
	listDocument   = "listviewdefs"
	searchDocument = "searchdefs"
)

// Provider builds view definitions from legacy documents stored under
// viewdefs/<Module>/ and caches them per module and view.
type Provider struct {
	store     storage.DocumentStore
	fields    fielddefs.Provider
	assembler *Assembler
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string]map[string]interface{}
}

// NewProvider creates a view definitions provider.
func NewProvider(store storage.DocumentStore, fields fielddefs.Provider, logger *zap.Logger) (*Provider, error) {
	if store == nil || fields == nil {
		return nil, fmt.Errorf("document store and field definitions provider are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		store:     store,
		fields:    fields,
		assembler: NewAssembler(logger),
		logger:    logger,
		cache:     make(map[string]map[string]interface{}),
	}, nil
}

// GetViewDefs returns the requested views of module. No views means all.
func (p *Provider) GetViewDefs(ctx context.Context, module string, views []string) (*ViewDefinition, error) {
	if module == "" {
		return nil, fmt.Errorf("module is required: %w", sdkerrors.ErrInvalidRequest)
	}
	if len(views) == 0 {
		views = AllViews
	}

	def := &ViewDefinition{ID: module}
	for _, view := range views {
		built, err := p.view(ctx, module, view)
		if err != nil {
			return nil, err
		}
		switch v := built.(type) {
		case *RecordView:
			def.RecordView = v
		case *ListView:
			def.ListView = v
		case *SearchDefs:
			def.Search = v
		}
	}
	return def, nil
}

// GetListViewDef returns the list view of module.
func (p *Provider) GetListViewDef(ctx context.Context, module string) (*ViewDefinition, error) {
	return p.GetViewDefs(ctx, module, []string{ViewList})
}

// GetSearchDefs returns the search definitions of module.
func (p *Provider) GetSearchDefs(ctx context.Context, module string) (*ViewDefinition, error) {
	return p.GetViewDefs(ctx, module, []string{ViewSearch})
}

// Invalidate drops every cached view of module.
func (p *Provider) Invalidate(module string) {
	p.mu.Lock()
	delete(p.cache, module)
	p.mu.Unlock()
}

func (p *Provider) view(ctx context.Context, module, view string) (interface{}, error) {
	if err := fielddefs.ValidateModule(module); err != nil {
		return nil, err
	}

	p.mu.RLock()
	cached, ok := p.cache[module][view]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	vardefs, err := p.fields.GetVardef(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("failed to load field definitions for %s: %w", module, err)
	}

	var built interface{}
	switch view {
	case ViewRecord:
		var legacy LegacyDetailDefs
		if err := p.readLegacy(ctx, module, detailDocument, &legacy); err != nil {
			return nil, err
		}
		built = p.assembler.RecordView(&legacy, vardefs)
	case ViewList:
		var legacy LegacyListDefs
		if err := p.readLegacy(ctx, module, listDocument, &legacy); err != nil {
			return nil, err
		}
		built = p.assembler.ListView(legacy, vardefs)
	case ViewSearch:
		var legacy LegacySearchDefs
		if err := p.readLegacy(ctx, module, searchDocument, &legacy); err != nil {
			return nil, err
		}
		built = p.assembler.SearchDefs(&legacy, vardefs)
	default:
		return nil, fmt.Errorf("unknown view %q: %w", view, sdkerrors.ErrInvalidRequest)
	}

	p.mu.Lock()
	if p.cache[module] == nil {
		p.cache[module] = make(map[string]interface{})
	}
	p.cache[module][view] = built
	p.mu.Unlock()
	return built, nil
}

// readLegacy decodes viewdefs/<module>/<name>.yaml (or .yml, .json) into out.
// A missing document leaves out empty.
func (p *Provider) readLegacy(ctx context.Context, module, name string, out interface{}) error {
	base := path.Join("viewdefs", module, name)
	found, data, err := storage.FirstExisting(ctx, p.store, base+".yaml", base+".yml", base+".json")
	if err != nil {
		if sdkerrors.IsNotFound(err) {
			p.logger.Debug("No legacy view definition",
				zap.String("module", module),
				zap.String("document", name))
			return nil
		}
		return fmt.Errorf("failed to read %s for %s: %w", name, module, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %v: %w", found, err, sdkerrors.ErrInvalidDocument)
	}
	return nil
}
