// Package source implements the four uniform source adapters (env, yaml,
// 1password, keeper) of SPEC_FULL.md §4.2-§4.6, plus the common
// include/exclude/keys/strip_prefix post-processing the Collector applies to
// whatever an adapter returns.
package source

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/item"
)

// Source collects items from one configured producer. Implementations must
// be cancellable via ctx and must yield items in the discovery order of the
// underlying system, per SPEC_FULL.md §4.2.
type Source interface {
	Collect(ctx context.Context) ([]item.Item, error)
	Filter() config.CommonFilter
}

// New constructs the adapter named by spec.Type. Dispatch is a small
// registry keyed by the type string, generalizing the populated-pointer-field
// dispatch of the teacher's InitSyncConfigClients to an explicit type tag, per
// SPEC_FULL.md §9.
func New(spec config.SourceSpec, vars config.Vars) (Source, error) {
	switch spec.Type {
	case "env":
		return newEnvSource(spec), nil
	case "yaml":
		return newYAMLSource(spec, vars), nil
	case "1password":
		return newOnePasswordSource(spec), nil
	case "keeper":
		return newKeeperSource(spec), nil
	default:
		return nil, fmt.Errorf("source %q: unknown type %q", spec.Name, spec.Type)
	}
}

// ApplyFilters implements the common post-processing contract of §4.2,
// applied by the Collector after an adapter returns:
//
//  1. include_regex OR include (mutually exclusive) filters names.
//  2. exclude removes names matching any of its patterns.
//  3. keys unions additional names back in, regardless of the include
//     filter and regardless of whether exclude already removed them.
//  4. strip_prefix runs last, once the final name set is fixed.
func ApplyFilters(items []item.Item, f config.CommonFilter) ([]item.Item, error) {
	if f.IncludeRegex != "" && f.Include != "" {
		return nil, fmt.Errorf("include_regex and include are mutually exclusive")
	}

	var includeRe *regexp.Regexp
	if f.IncludeRegex != "" {
		re, err := regexp.Compile(`^(?:` + f.IncludeRegex + `)$`)
		if err != nil {
			return nil, fmt.Errorf("invalid include_regex %q: %w", f.IncludeRegex, err)
		}
		includeRe = re
	}

	excludeRes := make([]*regexp.Regexp, 0, len(f.Exclude))
	for _, pattern := range f.Exclude {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		excludeRes = append(excludeRes, re)
	}

	byName := make(map[string]item.Item, len(items))
	for _, it := range items {
		byName[it.Name] = it
	}

	matchesInclude := func(name string) (bool, error) {
		switch {
		case includeRe != nil:
			return includeRe.MatchString(name), nil
		case f.Include != "":
			return path.Match(f.Include, name)
		default:
			return true, nil
		}
	}

	var order []string
	kept := make(map[string]bool, len(items))
	for _, it := range items {
		ok, err := matchesInclude(it.Name)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", f.Include, err)
		}
		if !ok {
			continue
		}
		order = append(order, it.Name)
		kept[it.Name] = true
	}

	for _, re := range excludeRes {
		var surviving []string
		for _, name := range order {
			if re.MatchString(name) {
				delete(kept, name)
				continue
			}
			surviving = append(surviving, name)
		}
		order = surviving
	}

	for _, name := range f.Keys {
		if kept[name] {
			continue
		}
		if _, ok := byName[name]; !ok {
			continue
		}
		order = append(order, name)
		kept[name] = true
	}

	result := make([]item.Item, 0, len(order))
	for _, name := range order {
		it := byName[name]
		if f.StripPrefix != "" {
			it.Name = strings.TrimPrefix(it.Name, f.StripPrefix)
		}
		result = append(result, it)
	}
	return result, nil
}
