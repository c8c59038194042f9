package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/item"
)

// yamlSource reads the configured files in order, descends the optional
// dot-path `key` in each file, normalizes each file to a sequence of Items,
// and lets a later file's item replace an earlier item of the same name.
// Files are not merged with the top-level config document merge rules: a
// replaced item takes all its fields from the later file, and every file
// must contain the `key` path.
type yamlSource struct {
	spec config.SourceSpec
	vars config.Vars
}

func newYAMLSource(spec config.SourceSpec, vars config.Vars) *yamlSource {
	return &yamlSource{spec: spec, vars: vars}
}

func (s *yamlSource) Filter() config.CommonFilter {
	if s.spec.YAML == nil {
		return config.CommonFilter{}
	}
	return s.spec.YAML.CommonFilter
}

// yamlItem carries a normalized item plus the file it was last set by, which
// anchors lookup()'s relative path resolution, per SPEC_FULL.md §4.4 ("the
// YAML file containing the value, not the declaring config").
type yamlItem struct {
	item.Item
	origin string
}

func (s *yamlSource) Collect(ctx context.Context) ([]item.Item, error) {
	opts := s.spec.YAML
	if opts == nil {
		return nil, fmt.Errorf("yaml source %q: missing yaml options", s.spec.Name)
	}
	if len(opts.Files) == 0 {
		return nil, fmt.Errorf("yaml source %q: no files configured", s.spec.Name)
	}

	var order []string
	byName := map[string]yamlItem{}

	for _, path := range opts.Files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("yaml source %q: failed to read %s: %w", s.spec.Name, path, err)
		}
		var tree interface{}
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("yaml source %q: failed to parse %s: %w", s.spec.Name, path, err)
		}

		node, err := descendKey(tree, opts.Key)
		if err != nil {
			return nil, fmt.Errorf("yaml source %q: %s: %w", s.spec.Name, path, err)
		}

		items, err := normalizeYAMLNode(node)
		if err != nil {
			return nil, fmt.Errorf("yaml source %q: %s: %w", s.spec.Name, path, err)
		}

		for _, it := range items {
			if _, exists := byName[it.Name]; !exists {
				order = append(order, it.Name)
			}
			byName[it.Name] = yamlItem{Item: it, origin: path}
		}
	}

	result := make([]item.Item, 0, len(order))
	for _, name := range order {
		yi := byName[name]
		rendered, err := config.Resolver{Vars: s.vars, BaseDir: filepath.Dir(yi.origin)}.Render(yi.Value)
		if err != nil {
			return nil, fmt.Errorf("yaml source %q: item %q: %w", s.spec.Name, name, err)
		}
		yi.Value = rendered
		result = append(result, yi.Item)
	}
	return result, nil
}

// descendKey walks a dot-path into a generic YAML-decoded node. An empty key
// is a no-op; a missing path is a hard error per SPEC_FULL.md §4.4.
func descendKey(node interface{}, key string) (interface{}, error) {
	if key == "" {
		return node, nil
	}
	cur := node
	for _, segment := range strings.Split(key, ".") {
		m, ok := asStringMap(cur)
		if !ok {
			return nil, fmt.Errorf("key %q: not a mapping at %q", key, segment)
		}
		next, ok := m[segment]
		if !ok {
			return nil, fmt.Errorf("key %q: missing path segment %q", key, segment)
		}
		cur = next
	}
	return cur, nil
}

// normalizeYAMLNode accepts the three shapes of SPEC_FULL.md §4.4 and
// produces a deterministic (map-key-sorted, list-order-preserved) sequence
// of Items.
func normalizeYAMLNode(node interface{}) ([]item.Item, error) {
	switch typed := node.(type) {
	case map[string]interface{}:
		if valuesRaw, ok := typed["values"]; ok {
			list, ok := asSlice(valuesRaw)
			if !ok {
				return nil, fmt.Errorf("`values` must be a list")
			}
			return itemsFromList(list)
		}
		names := make([]string, 0, len(typed))
		for k := range typed {
			names = append(names, k)
		}
		sort.Strings(names)
		items := make([]item.Item, 0, len(names))
		for _, name := range names {
			items = append(items, item.Item{Name: name, Value: scalarToString(typed[name])})
		}
		return items, nil
	default:
		if list, ok := asSlice(node); ok {
			return itemsFromList(list)
		}
		return nil, fmt.Errorf("unsupported document shape %T", node)
	}
}

func itemsFromList(list []interface{}) ([]item.Item, error) {
	items := make([]item.Item, 0, len(list))
	for i, el := range list {
		m, ok := asStringMap(el)
		if !ok {
			return nil, fmt.Errorf("element %d: expected a mapping with name/value", i)
		}
		name, ok := m["name"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("element %d: missing required field: name", i)
		}
		it := item.Item{Name: name, Value: scalarToString(m["value"])}
		if desc, ok := m["description"].(string); ok {
			it.Description = desc
		}
		items = append(items, it)
	}
	return items, nil
}

func scalarToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// asStringMap normalizes a map[string]interface{} or map[interface{}]interface{}
// (as gopkg.in/yaml.v3 can produce under certain decode paths) to the former.
func asStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func asSlice(v interface{}) ([]interface{}, bool) {
	list, ok := v.([]interface{})
	return list, ok
}
