package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_VariableSubstitution(t *testing.T) {
	r := Resolver{Vars: Vars{"ENVIRONMENT": "prod"}}

	out, err := r.Render("value-{{ ENVIRONMENT }}")
	require.NoError(t, err)
	assert.Equal(t, "value-prod", out)
}

func TestResolver_UndefinedVariableIsError(t *testing.T) {
	r := Resolver{Vars: Vars{}}

	_, err := r.Render("{{ MISSING }}")
	assert.Error(t, err)
}

func TestResolver_StringLiteral(t *testing.T) {
	r := Resolver{Vars: Vars{}}

	out, err := r.Render("{{ 'literal' }}")
	require.NoError(t, err)
	assert.Equal(t, "literal", out)
}

func TestResolver_Format(t *testing.T) {
	r := Resolver{Vars: Vars{"NAME": "db"}}

	out, err := r.Render("{{ '/app/{}/password'.format(NAME) }}")
	require.NoError(t, err)
	assert.Equal(t, "/app/db/password", out)
}

func TestResolver_LookupFileRelativeToBaseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("s3cr3t"), 0o600))

	r := Resolver{Vars: Vars{}, BaseDir: dir}
	out, err := r.Render("{{ lookup('file', 'secret.txt') }}")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", out)
}

func TestResolver_LookupMissingFileIsError(t *testing.T) {
	r := Resolver{Vars: Vars{}, BaseDir: t.TempDir()}

	_, err := r.Render("{{ lookup('file', 'missing.txt') }}")
	assert.Error(t, err)
}

func TestResolver_FromJSONFilter(t *testing.T) {
	r := Resolver{Vars: Vars{"RAW": `{"password":"s3cr3t"}`}}

	out, err := r.Render("{{ RAW | from_json }}")
	require.NoError(t, err)
	assert.JSONEq(t, `{"password":"s3cr3t"}`, out)
}

func TestResolver_ToJSONFilter(t *testing.T) {
	r := Resolver{Vars: Vars{"RAW": `has "quotes"`}}

	out, err := r.Render("{{ RAW | to_json }}")
	require.NoError(t, err)
	assert.Equal(t, `"has \"quotes\""`, out)
}

func TestResolver_UnknownFilterIsError(t *testing.T) {
	r := Resolver{Vars: Vars{"X": "y"}}

	_, err := r.Render("{{ X | not_a_real_filter }}")
	assert.Error(t, err)
}

func TestHasPlaceholder(t *testing.T) {
	assert.True(t, HasPlaceholder("{{ X }}"))
	assert.False(t, HasPlaceholder("plain text"))
}
