// Package metadata aggregates the data a page needs before it renders:
// navigation, system configuration, language strings, user preferences and
// theme images.
package metadata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wehubfusion/Ariadne/pkg/language"
	"github.com/wehubfusion/Ariadne/pkg/themes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NavigationLoader loads the navigation tree.
type NavigationLoader interface {
	LoadNavigation(ctx context.Context) (interface{}, error)
}

// SystemConfigLoader loads system configuration values keyed by name.
type SystemConfigLoader interface {
	LoadSystemConfigs(ctx context.Context) (map[string]interface{}, error)
}

// PreferencesLoader loads the current user's preferences.
type PreferencesLoader interface {
	LoadPreferences(ctx context.Context) (map[string]interface{}, error)
}

// LanguageLoader loads language string packs.
type LanguageLoader interface {
	AvailableStringsTypes() []string
	Load(ctx context.Context, lang string, types []string) (language.Pack, error)
}

// ThemeImagesLoader loads theme images and reports the active theme.
type ThemeImagesLoader interface {
	CurrentTheme() string
	Load(ctx context.Context, theme string) (*themes.Images, error)
}

// AppState records whether the application metadata finished loading, and
// the most recently loaded system configs and user preferences.
type AppState struct {
	loaded atomic.Bool

	mu          sync.RWMutex
	configs     map[string]interface{}
	preferences map[string]interface{}
}

// SetLoaded sets the loaded flag.
func (s *AppState) SetLoaded(loaded bool) { s.loaded.Store(loaded) }

// Loaded reports the loaded flag.
func (s *AppState) Loaded() bool { return s.loaded.Load() }

// Configs returns the last loaded system configs, or nil.
func (s *AppState) Configs() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs
}

// Preferences returns the last loaded user preferences, or nil.
func (s *AppState) Preferences() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preferences
}

// remember keeps the values a resolve loaded. Nil maps leave the previous
// values in place.
func (s *AppState) remember(configs, preferences map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if configs != nil {
		s.configs = configs
	}
	if preferences != nil {
		s.preferences = preferences
	}
}

// Request is one resolve call. UserLanguage, when set, is a language the user
// switched to and overrides the system default.
type Request struct {
	Route        RouteData `json:"route"`
	UserLanguage string    `json:"userLanguage,omitempty"`
}

// Result carries everything that was loaded.
type Result struct {
	Navigation      interface{}            `json:"navigation,omitempty"`
	Configs         map[string]interface{} `json:"configs,omitempty"`
	Language        string                 `json:"language,omitempty"`
	LanguageStrings language.Pack          `json:"languageStrings,omitempty"`
	Preferences     map[string]interface{} `json:"preferences,omitempty"`
	Theme           string                 `json:"theme,omitempty"`
	ThemeImages     *themes.Images         `json:"themeImages,omitempty"`
}

// Resolver runs the loads requested by a route.
type Resolver struct {
	navigation  NavigationLoader
	configs     SystemConfigLoader
	preferences PreferencesLoader
	languages   LanguageLoader
	themeImages ThemeImagesLoader
	state       *AppState
	logger      *zap.Logger
	tracer      trace.Tracer
}

// Loaders groups the resolver's collaborators.
type Loaders struct {
	Navigation  NavigationLoader
	Configs     SystemConfigLoader
	Preferences PreferencesLoader
	Languages   LanguageLoader
	ThemeImages ThemeImagesLoader
}

// NewResolver creates a resolver. Every loader is required.
func NewResolver(loaders Loaders, state *AppState, logger *zap.Logger) (*Resolver, error) {
	if loaders.Navigation == nil || loaders.Configs == nil || loaders.Preferences == nil ||
		loaders.Languages == nil || loaders.ThemeImages == nil {
		return nil, fmt.Errorf("all metadata loaders are required")
	}
	if state == nil {
		state = &AppState{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		navigation:  loaders.Navigation,
		configs:     loaders.Configs,
		preferences: loaders.Preferences,
		languages:   loaders.Languages,
		themeImages: loaders.ThemeImages,
		state:       state,
		logger:      logger,
		tracer:      otel.Tracer("ariadne/metadata"),
	}, nil
}

// State returns the application state the resolver updates.
func (r *Resolver) State() *AppState { return r.state }

// Resolve runs the requested loads in parallel, then resolves and loads the
// theme, then marks the application state loaded.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	route := req.Route
	ctx, span := r.tracer.Start(ctx, "metadata.resolve",
		trace.WithAttributes(
			attribute.Bool("load.navigation", route.LoadNavigation()),
			attribute.Bool("load.configs", route.LoadConfigs()),
			attribute.Bool("load.preferences", route.LoadPreferences()),
		),
	)
	defer span.End()

	result := &Result{}
	g, gctx := errgroup.WithContext(ctx)

	if route.LoadNavigation() {
		g.Go(func() error {
			nav, err := r.navigation.LoadNavigation(gctx)
			if err != nil {
				return fmt.Errorf("load navigation: %w", err)
			}
			result.Navigation = nav
			return nil
		})
	}

	if route.LoadConfigs() {
		loadStrings := route.LoadLanguageStrings()
		types := route.LanguageStringTypes(r.languages.AvailableStringsTypes())
		g.Go(func() error {
			configs, err := r.configs.LoadSystemConfigs(gctx)
			if err != nil {
				return fmt.Errorf("load system configs: %w", err)
			}
			result.Configs = configs
			if !loadStrings {
				return nil
			}

			lang := ConfigString(configs, "default_language")
			if req.UserLanguage != "" {
				lang = req.UserLanguage
			}
			pack, err := r.languages.Load(gctx, lang, types)
			if err != nil {
				return fmt.Errorf("load language strings: %w", err)
			}
			result.Language = lang
			result.LanguageStrings = pack
			return nil
		})
	}

	if route.LoadPreferences() {
		g.Go(func() error {
			prefs, err := r.preferences.LoadPreferences(gctx)
			if err != nil {
				return fmt.Errorf("load preferences: %w", err)
			}
			result.Preferences = prefs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.fail(span, err)
		return nil, err
	}

	r.state.remember(result.Configs, result.Preferences)

	// Routes that skip a load still see the values an earlier resolve loaded.
	themeName := ""
	if v := ConfigString(r.state.Configs(), "default_theme"); v != "" {
		themeName = v
	}
	if v := ConfigString(r.state.Preferences(), "user_theme"); v != "" {
		themeName = v
	}
	if v := r.themeImages.CurrentTheme(); v != "" {
		themeName = v
	}

	if themeName != "" {
		images, err := r.themeImages.Load(ctx, themeName)
		if err != nil {
			err = fmt.Errorf("load theme images for %s: %w", themeName, err)
			r.fail(span, err)
			return nil, err
		}
		result.Theme = themeName
		result.ThemeImages = images
	}

	r.state.SetLoaded(true)
	span.SetAttributes(attribute.String("theme", themeName))
	span.SetStatus(codes.Ok, "")
	r.logger.Debug("Resolved route metadata",
		zap.String("theme", themeName),
		zap.String("language", result.Language))
	return result, nil
}

func (r *Resolver) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.logger.Warn("Route metadata resolve failed", zap.Error(err))
}

// ConfigString reads a string config value. Values may be plain strings or
// objects carrying the string under "value".
func ConfigString(values map[string]interface{}, key string) string {
	switch v := values[key].(type) {
	case string:
		return v
	case map[string]interface{}:
		s, _ := v["value"].(string)
		return s
	}
	return ""
}
