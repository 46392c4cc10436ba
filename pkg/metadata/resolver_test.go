package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/Ariadne/pkg/language"
	"github.com/wehubfusion/Ariadne/pkg/themes"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLanguages struct {
	mu    sync.Mutex
	calls []languageCall
	err   error
}

type languageCall struct {
	lang  string
	types []string
}

func (f *fakeLanguages) AvailableStringsTypes() []string {
	return []string{language.AppStrings, language.AppListStrings, language.ModStrings}
}

func (f *fakeLanguages) Load(_ context.Context, lang string, types []string) (language.Pack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, languageCall{lang: lang, types: types})
	if f.err != nil {
		return nil, f.err
	}
	return language.Pack{language.AppStrings: {"LBL_SAVE": "Save"}}, nil
}

type fakeThemeImages struct {
	current string
	loaded  []string
	err     error
}

func (f *fakeThemeImages) CurrentTheme() string { return f.current }

func (f *fakeThemeImages) Load(_ context.Context, theme string) (*themes.Images, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.loaded = append(f.loaded, theme)
	return &themes.Images{Theme: theme, Images: map[string]string{}}, nil
}

type failingNavigation struct{}

func (failingNavigation) LoadNavigation(context.Context) (interface{}, error) {
	return nil, errors.New("navigation down")
}

func newResolver(t *testing.T, langs *fakeLanguages, images *fakeThemeImages, prefs StaticPreferences) *Resolver {
	t.Helper()
	r, err := NewResolver(Loaders{
		Navigation:  StaticNavigation{Tree: map[string]interface{}{"modules": []string{"Accounts"}}},
		Configs:     StaticConfigs{"default_language": map[string]interface{}{"value": "en_us"}, "default_theme": "suite8"},
		Preferences: prefs,
		Languages:   langs,
		ThemeImages: images,
	}, nil, nil)
	require.NoError(t, err)
	return r
}

func boolPtr(b bool) *bool { return &b }

func TestRouteFlagsDefaults(t *testing.T) {
	var route RouteData
	assert.True(t, route.LoadNavigation())
	assert.True(t, route.LoadConfigs())
	assert.True(t, route.LoadPreferences())
	assert.True(t, route.LoadLanguageStrings())
	assert.Equal(t, []string{"a", "b"}, route.LanguageStringTypes([]string{"a", "b"}))
}

func TestRouteFlags(t *testing.T) {
	tests := []struct {
		name        string
		json        string
		navigation  bool
		configs     bool
		preferences bool
		strings     bool
		types       []string
	}{
		{name: "empty load", json: `{"load":{}}`, navigation: true, configs: true, preferences: true, strings: true, types: []string{"a", "b"}},
		{name: "no navigation", json: `{"load":{"navigation":false}}`, configs: true, preferences: true, types: []string{"a", "b"}},
		{name: "explicit list", json: `{"load":{"navigation":false,"languageStrings":["a"]}}`, configs: true, preferences: true, strings: true, types: []string{"a"}},
		{name: "strings true", json: `{"load":{"navigation":false,"languageStrings":true}}`, configs: true, preferences: true, strings: true, types: []string{"a", "b"}},
		{name: "nothing", json: `{"load":{"navigation":false,"configs":false,"preferences":false}}`, types: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var route RouteData
			require.NoError(t, json.Unmarshal([]byte(tt.json), &route))
			assert.Equal(t, tt.navigation, route.LoadNavigation())
			assert.Equal(t, tt.configs, route.LoadConfigs())
			assert.Equal(t, tt.preferences, route.LoadPreferences())
			assert.Equal(t, tt.strings, route.LoadLanguageStrings())
			assert.Equal(t, tt.types, route.LanguageStringTypes([]string{"a", "b"}))
		})
	}
}

func TestLanguageStringsYAML(t *testing.T) {
	var route RouteData
	require.NoError(t, yaml.Unmarshal([]byte("load:\n  navigation: false\n  languageStrings: [appStrings]\n"), &route))
	assert.Equal(t, []string{"appStrings"}, route.Load.LanguageStrings.Types)
	assert.True(t, route.LoadLanguageStrings())

	require.NoError(t, yaml.Unmarshal([]byte("load:\n  languageStrings: false\n"), &route))
	assert.False(t, route.Load.LanguageStrings.Enabled)
}

func TestLanguageStringsRejectsOtherJSON(t *testing.T) {
	var route RouteData
	assert.Error(t, json.Unmarshal([]byte(`{"load":{"languageStrings":"yes"}}`), &route))
}

func TestResolveDefaultRoute(t *testing.T) {
	langs := &fakeLanguages{}
	images := &fakeThemeImages{}
	r := newResolver(t, langs, images, StaticPreferences{})

	result, err := r.Resolve(context.Background(), Request{})
	require.NoError(t, err)

	assert.NotNil(t, result.Navigation)
	assert.Equal(t, "en_us", result.Language)
	require.Len(t, langs.calls, 1)
	assert.Equal(t, langs.AvailableStringsTypes(), langs.calls[0].types)
	assert.Equal(t, "suite8", result.Theme)
	assert.Equal(t, []string{"suite8"}, images.loaded)
	assert.True(t, r.State().Loaded())
}

func TestResolveThemePriority(t *testing.T) {
	images := &fakeThemeImages{}
	r := newResolver(t, &fakeLanguages{}, images, StaticPreferences{"user_theme": "dark"})

	result, err := r.Resolve(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "dark", result.Theme)

	images.current = "active"
	result, err = r.Resolve(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "active", result.Theme)
}

func TestResolveUserLanguageOverridesDefault(t *testing.T) {
	langs := &fakeLanguages{}
	r := newResolver(t, langs, &fakeThemeImages{}, StaticPreferences{})

	result, err := r.Resolve(context.Background(), Request{UserLanguage: "pt_br"})
	require.NoError(t, err)
	assert.Equal(t, "pt_br", result.Language)
}

func TestResolveSkipsUnrequestedLoads(t *testing.T) {
	langs := &fakeLanguages{}
	r := newResolver(t, langs, &fakeThemeImages{}, StaticPreferences{"user_theme": "dark"})

	route := RouteData{Load: &LoadOptions{Navigation: boolPtr(false), Preferences: boolPtr(false)}}
	result, err := r.Resolve(context.Background(), Request{Route: route})
	require.NoError(t, err)

	assert.Nil(t, result.Navigation)
	assert.Nil(t, result.Preferences)
	assert.Empty(t, langs.calls)
	assert.Equal(t, "suite8", result.Theme)
}

func TestResolveThemeUsesPreviouslyLoadedValues(t *testing.T) {
	skipAll := RouteData{Load: &LoadOptions{
		Navigation:  boolPtr(false),
		Configs:     boolPtr(false),
		Preferences: boolPtr(false),
	}}

	t.Run("nothing loaded yet", func(t *testing.T) {
		images := &fakeThemeImages{}
		r := newResolver(t, &fakeLanguages{}, images, StaticPreferences{"user_theme": "dark"})

		result, err := r.Resolve(context.Background(), Request{Route: skipAll})
		require.NoError(t, err)
		assert.Empty(t, result.Theme)
		assert.Empty(t, images.loaded)
		assert.True(t, r.State().Loaded())
	})

	t.Run("earlier resolve", func(t *testing.T) {
		images := &fakeThemeImages{}
		r := newResolver(t, &fakeLanguages{}, images, StaticPreferences{"user_theme": "dark"})

		_, err := r.Resolve(context.Background(), Request{})
		require.NoError(t, err)

		result, err := r.Resolve(context.Background(), Request{Route: skipAll})
		require.NoError(t, err)
		assert.Nil(t, result.Configs)
		assert.Nil(t, result.Preferences)
		assert.Equal(t, "dark", result.Theme)
		assert.Equal(t, "suite8", ConfigString(r.State().Configs(), "default_theme"))
		assert.Equal(t, []string{"dark", "dark"}, images.loaded)
	})
}

func TestResolveFailureDoesNotMarkLoaded(t *testing.T) {
	r, err := NewResolver(Loaders{
		Navigation:  failingNavigation{},
		Configs:     StaticConfigs{},
		Preferences: StaticPreferences{},
		Languages:   &fakeLanguages{},
		ThemeImages: &fakeThemeImages{},
	}, nil, nil)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), Request{})
	assert.ErrorContains(t, err, "navigation down")
	assert.False(t, r.State().Loaded())
}

func TestResolveThemeImageFailure(t *testing.T) {
	r := newResolver(t, &fakeLanguages{}, &fakeThemeImages{err: errors.New("no images")}, StaticPreferences{})
	_, err := r.Resolve(context.Background(), Request{})
	assert.ErrorContains(t, err, "no images")
	assert.False(t, r.State().Loaded())
}

func TestNewResolverRequiresLoaders(t *testing.T) {
	_, err := NewResolver(Loaders{}, nil, nil)
	assert.Error(t, err)
}

func TestConfigString(t *testing.T) {
	values := map[string]interface{}{
		"plain":  "x",
		"nested": map[string]interface{}{"value": "y"},
		"number": 3,
	}
	assert.Equal(t, "x", ConfigString(values, "plain"))
	assert.Equal(t, "y", ConfigString(values, "nested"))
	assert.Equal(t, "", ConfigString(values, "number"))
	assert.Equal(t, "", ConfigString(nil, "plain"))
}
