package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Josh5/secrets-sync/internal/config"
)

func TestEnvSource_CollectIsSortedByName(t *testing.T) {
	t.Setenv("SSX_TEST_ZEBRA", "1")
	t.Setenv("SSX_TEST_ALPHA", "2")

	s := newEnvSource(config.SourceSpec{Name: "env"})
	items, err := s.Collect(context.Background())
	require.NoError(t, err)

	var alphaIdx, zebraIdx = -1, -1
	for i, it := range items {
		switch it.Name {
		case "SSX_TEST_ALPHA":
			alphaIdx = i
		case "SSX_TEST_ZEBRA":
			zebraIdx = i
		}
	}
	require.NotEqual(t, -1, alphaIdx)
	require.NotEqual(t, -1, zebraIdx)
	assert.Less(t, alphaIdx, zebraIdx)
}

func TestEnvSource_FilterDelegatesToSpec(t *testing.T) {
	withFilter := newEnvSource(config.SourceSpec{
		Name: "env",
		Env:  &config.EnvOptions{CommonFilter: config.CommonFilter{StripPrefix: "APP_"}},
	})
	assert.Equal(t, "APP_", withFilter.Filter().StripPrefix)

	bare := newEnvSource(config.SourceSpec{Name: "env"})
	assert.Equal(t, config.CommonFilter{}, bare.Filter())
}
