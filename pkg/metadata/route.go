package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RouteData is the metadata block attached to a route.
type RouteData struct {
	Load *LoadOptions `json:"load,omitempty" yaml:"load,omitempty"`
}

// LoadOptions selects what the resolver loads. Nil flags default to loading.
type LoadOptions struct {
	Navigation      *bool           `json:"navigation,omitempty" yaml:"navigation,omitempty"`
	Configs         *bool           `json:"configs,omitempty" yaml:"configs,omitempty"`
	Preferences     *bool           `json:"preferences,omitempty" yaml:"preferences,omitempty"`
	LanguageStrings LanguageStrings `json:"languageStrings,omitempty" yaml:"languageStrings,omitempty"`
}

// LanguageStrings is either a boolean or an explicit list of string types.
type LanguageStrings struct {
	Enabled bool
	Types   []string
	IsList  bool
}

// UnmarshalJSON accepts true/false or an array of string types.
func (l *LanguageStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = LanguageStrings{}
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var types []string
		if err := json.Unmarshal(data, &types); err != nil {
			return fmt.Errorf("languageStrings: %w", err)
		}
		*l = LanguageStrings{Enabled: true, Types: types, IsList: true}
		return nil
	}
	var enabled bool
	if err := json.Unmarshal(data, &enabled); err != nil {
		return fmt.Errorf("languageStrings: expected boolean or array")
	}
	*l = LanguageStrings{Enabled: enabled}
	return nil
}

// MarshalJSON writes the list form when a list was given.
func (l LanguageStrings) MarshalJSON() ([]byte, error) {
	if l.IsList {
		if l.Types == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(l.Types)
	}
	return json.Marshal(l.Enabled)
}

// UnmarshalYAML accepts true/false or a sequence of string types.
func (l *LanguageStrings) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var types []string
		if err := value.Decode(&types); err != nil {
			return fmt.Errorf("languageStrings: %w", err)
		}
		*l = LanguageStrings{Enabled: true, Types: types, IsList: true}
		return nil
	}
	var enabled bool
	if err := value.Decode(&enabled); err != nil {
		return fmt.Errorf("languageStrings: expected boolean or list")
	}
	*l = LanguageStrings{Enabled: enabled}
	return nil
}

func (r RouteData) hasLoad() bool { return r.Load != nil }

func isFalse(flag *bool) bool { return flag != nil && !*flag }

// LoadNavigation reports whether navigation loads. Defaults to true.
func (r RouteData) LoadNavigation() bool {
	return !r.hasLoad() || !isFalse(r.Load.Navigation)
}

// LoadConfigs reports whether system configs load. Defaults to true.
func (r RouteData) LoadConfigs() bool {
	return !r.hasLoad() || !isFalse(r.Load.Configs)
}

// LoadPreferences reports whether user preferences load. Defaults to true.
func (r RouteData) LoadPreferences() bool {
	return !r.hasLoad() || !isFalse(r.Load.Preferences)
}

// LoadLanguageStrings reports whether language strings load: always with
// navigation, otherwise only when requested as true or as a list.
func (r RouteData) LoadLanguageStrings() bool {
	if r.LoadNavigation() {
		return true
	}
	if !r.hasLoad() {
		return false
	}
	return r.Load.LanguageStrings.IsList || r.Load.LanguageStrings.Enabled
}

// LanguageStringTypes returns the string types to load given the available ones.
func (r RouteData) LanguageStringTypes(available []string) []string {
	if r.LoadNavigation() {
		return available
	}
	if !r.hasLoad() {
		return []string{}
	}
	if r.Load.LanguageStrings.IsList {
		return r.Load.LanguageStrings.Types
	}
	return available
}
