// Package themes selects UI themes and resolves their image assets.
package themes

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"

	theme "github.com/goliatone/go-theme"
	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"github.com/wehubfusion/Ariadne/pkg/storage"
	"gopkg.in/yaml.v3"
)

// ManifestDoc is the YAML form of a theme manifest.
type ManifestDoc struct {
	Name     string                `yaml:"name"`
	Version  string                `yaml:"version"`
	Tokens   map[string]string     `yaml:"tokens"`
	Prefix   string                `yaml:"prefix"`
	Images   map[string]string     `yaml:"images"`
	Variants map[string]VariantDoc `yaml:"variants"`
}

// VariantDoc overrides tokens and images of a manifest.
type VariantDoc struct {
	Tokens map[string]string `yaml:"tokens"`
	Images map[string]string `yaml:"images"`
}

// Manifest converts the document into a go-theme manifest.
func (d ManifestDoc) Manifest() *theme.Manifest {
	m := &theme.Manifest{
		Name:    d.Name,
		Version: d.Version,
		Tokens:  d.Tokens,
		Assets: theme.Assets{
			Prefix: d.Prefix,
			Files:  d.Images,
		},
	}
	if len(d.Variants) > 0 {
		m.Variants = make(map[string]theme.Variant, len(d.Variants))
		for name, v := range d.Variants {
			m.Variants[name] = theme.Variant{
				Tokens: v.Tokens,
				Assets: theme.Assets{Files: v.Images},
			}
		}
	}
	return m
}

// Selector implements theme.ThemeSelector over a fixed set of manifests.
type Selector struct {
	manifests map[string]*theme.Manifest
}

var _ theme.ThemeSelector = (*Selector)(nil)

// NewSelector validates manifests through a go-theme registry and indexes them by name.
func NewSelector(manifests ...*theme.Manifest) (*Selector, error) {
	registry := theme.NewRegistry()
	s := &Selector{manifests: make(map[string]*theme.Manifest, len(manifests))}
	for _, m := range manifests {
		if m == nil || m.Name == "" {
			return nil, fmt.Errorf("theme manifest requires a name")
		}
		if err := registry.Register(m); err != nil {
			return nil, fmt.Errorf("register theme %s: %w", m.Name, err)
		}
		s.manifests[m.Name] = m
	}
	return s, nil
}

// LoadSelector reads themes/<name>.yaml for every name.
func LoadSelector(ctx context.Context, store storage.DocumentStore, names []string) (*Selector, error) {
	manifests := make([]*theme.Manifest, 0, len(names))
	for _, name := range names {
		data, err := store.ReadDocument(ctx, path.Join("themes", name+".yaml"))
		if err != nil {
			return nil, fmt.Errorf("theme %s: %w", name, err)
		}
		var doc ManifestDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("theme %s: %v: %w", name, err, sdkerrors.ErrInvalidDocument)
		}
		if doc.Name == "" {
			doc.Name = name
		}
		manifests = append(manifests, doc.Manifest())
	}
	return NewSelector(manifests...)
}

// Names returns the known theme names, sorted.
func (s *Selector) Names() []string {
	names := make([]string, 0, len(s.manifests))
	for name := range s.manifests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the manifest of name. An unknown variant is an error.
func (s *Selector) Select(name, variant string, _ ...theme.QueryOption) (*theme.Selection, error) {
	m, ok := s.manifests[name]
	if !ok {
		return nil, fmt.Errorf("theme %s: %w", name, sdkerrors.ErrNotFound)
	}
	if variant != "" {
		if _, ok := m.Variants[variant]; !ok {
			return nil, fmt.Errorf("theme %s variant %s: %w", name, variant, sdkerrors.ErrNotFound)
		}
	}
	return &theme.Selection{Theme: name, Variant: variant, Manifest: m}, nil
}

// Images is the resolved image set of a theme.
type Images struct {
	Theme  string            `json:"theme"`
	Images map[string]string `json:"images"`
}

// ImageLoader resolves theme images and remembers the last loaded theme.
type ImageLoader struct {
	selector theme.ThemeSelector

	mu      sync.RWMutex
	current *Images
}

// NewImageLoader creates a loader over selector.
func NewImageLoader(selector theme.ThemeSelector) *ImageLoader {
	return &ImageLoader{selector: selector}
}

// CurrentTheme returns the name of the last loaded theme, or "".
func (l *ImageLoader) CurrentTheme() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return ""
	}
	return l.current.Theme
}

// Load resolves the images of name, variant files overriding base files, and
// makes it the current theme.
func (l *ImageLoader) Load(ctx context.Context, name string) (*Images, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel, err := l.selector.Select(name, "")
	if err != nil {
		return nil, err
	}

	images := &Images{Theme: sel.Theme, Images: map[string]string{}}
	if m := sel.Manifest; m != nil {
		files := map[string]string{}
		for k, v := range m.Assets.Files {
			files[k] = v
		}
		if sel.Variant != "" {
			for k, v := range m.Variants[sel.Variant].Assets.Files {
				files[k] = v
			}
		}
		for k, v := range files {
			images.Images[k] = path.Join("/", m.Assets.Prefix, v)
		}
	}

	l.mu.Lock()
	l.current = images
	l.mu.Unlock()
	return images, nil
}
