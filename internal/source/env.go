package source

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/item"
)

// envSource reads the current process environment as a flat mapping, per
// SPEC_FULL.md §4.3. Items carry no description.
type envSource struct {
	spec config.SourceSpec
}

func newEnvSource(spec config.SourceSpec) *envSource {
	return &envSource{spec: spec}
}

// Collect returns one item per environment variable. os.Environ() does not
// promise a stable order across calls, so the result is sorted by name to
// satisfy the adapter's deterministic-discovery-order contract.
func (s *envSource) Collect(ctx context.Context) ([]item.Item, error) {
	raw := os.Environ()
	items := make([]item.Item, 0, len(raw))
	for _, kv := range raw {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		items = append(items, item.Item{Name: kv[:idx], Value: kv[idx+1:]})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *envSource) Filter() config.CommonFilter {
	if s.spec.Env == nil {
		return config.CommonFilter{}
	}
	return s.spec.Env.CommonFilter
}
