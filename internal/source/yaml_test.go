package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Josh5/secrets-sync/internal/config"
)

func writeYAML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestYAMLSource_MapShape(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "map.yaml", "DB_URL: postgres://x\nAPP_NAME: demo\n")

	s := newYAMLSource(config.SourceSpec{
		Name: "yaml",
		YAML: &config.YAMLOptions{Files: []string{path}},
	}, config.Vars{})

	items, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "APP_NAME", items[0].Name)
	assert.Equal(t, "DB_URL", items[1].Name)
}

func TestYAMLSource_ValuesListShape(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "values.yaml", `
values:
  - name: DB_URL
    value: postgres://x
    description: connection string
`)

	s := newYAMLSource(config.SourceSpec{
		Name: "yaml",
		YAML: &config.YAMLOptions{Files: []string{path}},
	}, config.Vars{})

	items, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "DB_URL", items[0].Name)
	assert.Equal(t, "connection string", items[0].Description)
}

func TestYAMLSource_BareListShape(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "list.yaml", `
- name: A
  value: "1"
- name: B
  value: "2"
`)

	s := newYAMLSource(config.SourceSpec{
		Name: "yaml",
		YAML: &config.YAMLOptions{Files: []string{path}},
	}, config.Vars{})

	items, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].Name)
	assert.Equal(t, "B", items[1].Name)
}

func TestYAMLSource_KeyDotPathDescent(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "nested.yaml", `
app:
  db:
    URL: postgres://x
`)

	s := newYAMLSource(config.SourceSpec{
		Name: "yaml",
		YAML: &config.YAMLOptions{Files: []string{path}, Key: "app.db"},
	}, config.Vars{})

	items, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "URL", items[0].Name)
	assert.Equal(t, "postgres://x", items[0].Value)
}

func TestYAMLSource_MissingKeyPathIsError(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "nested.yaml", "app:\n  db: {}\n")

	s := newYAMLSource(config.SourceSpec{
		Name: "yaml",
		YAML: &config.YAMLOptions{Files: []string{path}, Key: "app.missing"},
	}, config.Vars{})

	_, err := s.Collect(context.Background())
	assert.Error(t, err)
}

func TestYAMLSource_LookupResolvesRelativeToOwningFile(t *testing.T) {
	rootDir := t.TempDir()
	subDir := filepath.Join(rootDir, "sub")
	require.NoError(t, os.MkdirAll(subDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(subDir, "password.txt"), []byte("s3cr3t"), 0o600))
	nested := writeYAML(t, subDir, "nested.yaml", "DB_PASSWORD: \"{{ lookup('file', 'password.txt') }}\"\n")

	s := newYAMLSource(config.SourceSpec{
		Name: "yaml",
		YAML: &config.YAMLOptions{Files: []string{nested}},
	}, config.Vars{})

	items, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "s3cr3t", items[0].Value)
}

func TestYAMLSource_LaterFileWinsOnNameCollision(t *testing.T) {
	dir := t.TempDir()
	first := writeYAML(t, dir, "first.yaml", "KEY: from-first\n")
	second := writeYAML(t, dir, "second.yaml", "KEY: from-second\n")

	s := newYAMLSource(config.SourceSpec{
		Name: "yaml",
		YAML: &config.YAMLOptions{Files: []string{first, second}},
	}, config.Vars{})

	items, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "from-second", items[0].Value)
}
