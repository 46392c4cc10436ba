package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	dataDir := filepath.Join(dir, "data")
	writeFile(t, filepath.Join(dataDir, "vardefs", "Opportunities.json"), `{"closed": {"type": "bool"}, "name": {"type": "name"}}`)
	writeFile(t, filepath.Join(dataDir, "viewdefs", "Opportunities", "listviewdefs.yaml"), "NAME:\n  default: true\n")

	configPath := filepath.Join(dir, "ariadne.yaml")
	writeFile(t, configPath, "storage:\n  dir: "+dataDir+"\nlogging:\n  level: error\n")
	return configPath
}

func TestMapCommand(t *testing.T) {
	configPath := setup(t)
	input := filepath.Join(t.TempDir(), "record.json")
	writeFile(t, input, `{"closed": true, "name": "Big deal"}`)

	out, err := execute(t, "--config", configPath, "map", "--module", "Opportunities", "--direction", "to-internal", input)
	require.NoError(t, err, out)
	assert.Equal(t, "1", gjson.Get(out, "attributes.closed").String())
	assert.Equal(t, "Big deal", gjson.Get(out, "attributes.name").String())
	assert.Equal(t, "Opportunities", gjson.Get(out, "module").String())
}

func TestViewdefsCommand(t *testing.T) {
	configPath := setup(t)

	out, err := execute(t, "--config", configPath, "viewdefs", "Opportunities", "--view", "listView")
	require.NoError(t, err, out)
	assert.Equal(t, "name", gjson.Get(out, "listView.columns.0.name").String())
	assert.False(t, gjson.Get(out, "recordView").Exists())
}

func TestSearchCommand(t *testing.T) {
	configPath := setup(t)

	out, err := execute(t, "--config", configPath, "search", "--controller", "UnifiedSearch", "acme", "corp")
	require.NoError(t, err)
	assert.Equal(t, "/home/unified-search?query_string=acme+corp\n", out)
}

func TestBadConfigFails(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "search", "x")
	assert.Error(t, err)
}
