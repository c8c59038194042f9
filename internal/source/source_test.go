package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/item"
)

func TestApplyFilters_EnvScenario(t *testing.T) {
	items := []item.Item{
		{Name: "APP_DB_URL", Value: "x"},
		{Name: "APP_DEBUG", Value: "1"},
		{Name: "UNRELATED", Value: "z"},
	}
	f := config.CommonFilter{
		IncludeRegex: "^APP_.*",
		Exclude:      []string{"^APP_DEBUG$"},
		StripPrefix:  "APP_",
	}

	result, err := ApplyFilters(items, f)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "DB_URL", result[0].Name)
	assert.Equal(t, "x", result[0].Value)
}

func TestApplyFilters_KeysBypassesIncludeAndExclude(t *testing.T) {
	items := []item.Item{
		{Name: "APP_DB_URL", Value: "x"},
		{Name: "APP_DEBUG", Value: "1"},
		{Name: "SYSTEM_PATH", Value: "y"},
	}
	f := config.CommonFilter{
		IncludeRegex: "^APP_.*",
		Exclude:      []string{"^APP_DEBUG$"},
		Keys:         []string{"SYSTEM_PATH", "APP_DEBUG"},
	}

	result, err := ApplyFilters(items, f)
	require.NoError(t, err)

	names := make([]string, len(result))
	for i, it := range result {
		names[i] = it.Name
	}
	assert.ElementsMatch(t, []string{"APP_DB_URL", "APP_DEBUG", "SYSTEM_PATH"}, names)
}

func TestApplyFilters_IncludeAndIncludeRegexMutuallyExclusive(t *testing.T) {
	f := config.CommonFilter{IncludeRegex: "^A", Include: "A*"}

	_, err := ApplyFilters(nil, f)
	assert.Error(t, err)
}

func TestApplyFilters_IncludeGlob(t *testing.T) {
	items := []item.Item{
		{Name: "prod.db.url"},
		{Name: "dev.db.url"},
	}
	f := config.CommonFilter{Include: "prod.*"}

	result, err := ApplyFilters(items, f)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "prod.db.url", result[0].Name)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(config.SourceSpec{Name: "x", Type: "bogus"}, config.Vars{})
	assert.Error(t, err)
}
