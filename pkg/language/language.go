// Package language serves localized application strings from language packs
// stored as language/<lang>.yaml documents.
package language

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"github.com/wehubfusion/Ariadne/pkg/storage"
	"go.uber.org/zap"
	xlanguage "golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// String types of a language pack.
const (
	AppStrings     = "appStrings"
	AppListStrings = "appListStrings"
	ModStrings     = "modStrings"
)

// DefaultLanguage is used when no language is requested.
const DefaultLanguage = "en_us"

// Pack is one language's strings grouped by type.
type Pack map[string]map[string]interface{}

// Store loads and caches language packs.
type Store struct {
	store  storage.DocumentStore
	logger *zap.Logger

	mu    sync.RWMutex
	packs map[string]Pack
}

// NewStore creates a language store reading from store.
func NewStore(store storage.DocumentStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		store:  store,
		logger: logger,
		packs:  make(map[string]Pack),
	}
}

// AvailableStringsTypes returns every string type a pack can hold.
func (s *Store) AvailableStringsTypes() []string {
	return []string{AppStrings, AppListStrings, ModStrings}
}

// Normalize converts a language identifier ("en-US", "en_us", "EN") into the
// lower-case underscore form used for pack names.
func Normalize(lang string) (string, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return DefaultLanguage, nil
	}
	tag, err := xlanguage.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", lang, err)
	}
	base, _ := tag.Base()
	region, confidence := tag.Region()
	if confidence == xlanguage.Exact {
		return strings.ToLower(base.String() + "_" + region.String()), nil
	}
	return strings.ToLower(base.String()), nil
}

// Load returns the requested string types of lang. Unknown types are ignored.
func (s *Store) Load(ctx context.Context, lang string, types []string) (Pack, error) {
	pack, err := s.pack(ctx, lang)
	if err != nil {
		return nil, err
	}
	out := make(Pack, len(types))
	for _, t := range types {
		if strs, ok := pack[t]; ok {
			out[t] = strs
		}
	}
	return out, nil
}

// Translate returns the application string for key, or key itself when the
// language or key is unknown.
func (s *Store) Translate(ctx context.Context, lang, key string) string {
	pack, err := s.pack(ctx, lang)
	if err != nil {
		s.logger.Debug("Language pack unavailable",
			zap.String("language", lang),
			zap.Error(err))
		return key
	}
	if v, ok := pack[AppStrings][key].(string); ok && v != "" {
		return v
	}
	return key
}

func (s *Store) pack(ctx context.Context, lang string) (Pack, error) {
	name, err := Normalize(lang)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	pack, ok := s.packs[name]
	s.mu.RUnlock()
	if ok {
		return pack, nil
	}

	data, err := s.store.ReadDocument(ctx, path.Join("language", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("language %s: %w", name, err)
	}
	pack = Pack{}
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("language %s: %v: %w", name, err, sdkerrors.ErrInvalidDocument)
	}

	s.mu.Lock()
	s.packs[name] = pack
	s.mu.Unlock()

	s.logger.Debug("Loaded language pack", zap.String("language", name))
	return pack, nil
}
