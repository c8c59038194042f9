package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_ScalarReplace(t *testing.T) {
	dst := map[string]interface{}{"region": "us-east-1"}
	src := map[string]interface{}{"region": "us-west-2"}

	result := Merge(dst, src)

	assert.Equal(t, "us-west-2", result["region"])
}

func TestMerge_RecursiveMapping(t *testing.T) {
	dst := map[string]interface{}{
		"vars": map[string]interface{}{"A": "1"},
	}
	src := map[string]interface{}{
		"vars": map[string]interface{}{"B": "2"},
	}

	result := Merge(dst, src)

	vars, ok := result["vars"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1", vars["A"])
	assert.Equal(t, "2", vars["B"])
}

func TestMerge_NameKeyedListMergesByName(t *testing.T) {
	dst := map[string]interface{}{
		"sources": []interface{}{
			map[string]interface{}{"name": "env", "type": "env"},
			map[string]interface{}{"name": "base", "type": "yaml"},
		},
	}
	src := map[string]interface{}{
		"sources": []interface{}{
			map[string]interface{}{"name": "base", "type": "yaml", "key": "overridden"},
			map[string]interface{}{"name": "extra", "type": "env"},
		},
	}

	result := Merge(dst, src)

	sources, ok := result["sources"].([]interface{})
	require.True(t, ok)
	require.Len(t, sources, 3)

	names := make([]string, len(sources))
	for i, el := range sources {
		names[i] = el.(map[string]interface{})["name"].(string)
	}
	assert.Equal(t, []string{"env", "base", "extra"}, names)

	base := sources[1].(map[string]interface{})
	assert.Equal(t, "overridden", base["key"])
}

func TestMerge_NonNameKeyedListReplacedWholesale(t *testing.T) {
	dst := map[string]interface{}{"exclude": []interface{}{"a", "b"}}
	src := map[string]interface{}{"exclude": []interface{}{"c"}}

	result := Merge(dst, src)

	exclude, ok := result["exclude"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"c"}, exclude)
}

func TestMerge_Determinism(t *testing.T) {
	a := map[string]interface{}{"sources": []interface{}{
		map[string]interface{}{"name": "x", "v": "a"},
	}}
	b := map[string]interface{}{"sources": []interface{}{
		map[string]interface{}{"name": "x", "v": "b"},
	}}
	c := map[string]interface{}{"sources": []interface{}{
		map[string]interface{}{"name": "x", "v": "c"},
	}}

	left := Merge(Merge(deepCopy(a).(map[string]interface{}), deepCopy(b).(map[string]interface{})), deepCopy(c).(map[string]interface{}))
	right := Merge(deepCopy(Merge(deepCopy(a).(map[string]interface{}), deepCopy(b).(map[string]interface{}))).(map[string]interface{}), deepCopy(c).(map[string]interface{}))

	assert.Equal(t, left, right)
}

func TestMerge_DeclaredInNotOverwrittenByLaterDocument(t *testing.T) {
	dst := map[string]interface{}{
		"sources": []interface{}{
			map[string]interface{}{"name": "base", "declared_in": "/a/base.yaml"},
		},
	}
	src := map[string]interface{}{
		"sources": []interface{}{
			map[string]interface{}{"name": "base", "declared_in": "/b/override.yaml", "extra": "set"},
		},
	}

	result := Merge(dst, src)
	sources := result["sources"].([]interface{})
	entry := sources[0].(map[string]interface{})

	assert.Equal(t, "/a/base.yaml", entry["declared_in"])
	assert.Equal(t, "set", entry["extra"])
}
