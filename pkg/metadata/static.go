package metadata

import "context"

// StaticNavigation serves a fixed navigation tree.
type StaticNavigation struct {
	Tree interface{}
}

// LoadNavigation returns the tree.
func (s StaticNavigation) LoadNavigation(ctx context.Context) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Tree, nil
}

// StaticConfigs serves fixed system configuration values.
type StaticConfigs map[string]interface{}

// LoadSystemConfigs returns a copy of the values.
func (s StaticConfigs) LoadSystemConfigs(ctx context.Context) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return copyMap(s), nil
}

// StaticPreferences serves fixed user preferences.
type StaticPreferences map[string]interface{}

// LoadPreferences returns a copy of the values.
func (s StaticPreferences) LoadPreferences(ctx context.Context) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return copyMap(s), nil
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
