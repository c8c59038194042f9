// Package collector runs source adapters concurrently and applies each
// source's post-processing filters, per SPEC_FULL.md §4.7.
package collector

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/item"
	"github.com/Josh5/secrets-sync/internal/source"
)

// Result is one source's outcome: either a filtered item set, or an error
// recorded when running in the dry-run preview exception of §4.7.
type Result struct {
	SourceName string
	Items      []item.Item
	Err        error
}

// Options controls the partial-failure exception of §4.7: a source error
// normally aborts the whole run, unless the caller is previewing a dry run
// with value printing enabled, in which case the error is recorded per
// source and collection continues for the rest.
type Options struct {
	TolerateSourceErrors bool
}

// Collect runs every configured source in parallel (the semaphore-channel
// bounded-pool idiom this codebase uses throughout, here unbounded since one
// goroutine per declared source is always a small, fixed number) and
// returns one Result per source, in declaration order.
func Collect(ctx context.Context, cfg *config.Config, vars config.Vars, opts Options) ([]Result, error) {
	l := log.WithFields(log.Fields{"action": "collector.Collect", "sources": cfg.SourceNames()})
	l.Debug("starting parallel source collection")

	results := make([]Result, len(cfg.Sources))
	var wg sync.WaitGroup

	for i, spec := range cfg.Sources {
		wg.Add(1)
		go func(idx int, spec config.SourceSpec) {
			defer wg.Done()
			results[idx] = collectOne(ctx, spec, vars)
		}(i, spec)
	}
	wg.Wait()

	var firstErr error
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		if !opts.TolerateSourceErrors {
			return results, fmt.Errorf("source %q: %w", r.SourceName, r.Err)
		}
		if firstErr == nil {
			firstErr = r.Err
		}
		log.WithFields(log.Fields{
			"action": "collector.Collect",
			"source": r.SourceName,
		}).WithError(r.Err).Warn("source failed, continuing (dry-run preview)")
	}

	return results, nil
}

func collectOne(ctx context.Context, spec config.SourceSpec, vars config.Vars) Result {
	l := log.WithFields(log.Fields{"action": "collector.collectOne", "source": spec.Name, "type": spec.Type})
	l.Trace("start")
	defer l.Trace("end")

	src, err := source.New(spec, vars)
	if err != nil {
		return Result{SourceName: spec.Name, Err: err}
	}

	items, err := src.Collect(ctx)
	if err != nil {
		return Result{SourceName: spec.Name, Err: err}
	}

	if err := validateUnique(items); err != nil {
		return Result{SourceName: spec.Name, Err: err}
	}

	filtered, err := source.ApplyFilters(items, src.Filter())
	if err != nil {
		return Result{SourceName: spec.Name, Err: err}
	}

	if err := validateUnique(filtered); err != nil {
		return Result{SourceName: spec.Name, Err: err}
	}

	return Result{SourceName: spec.Name, Items: filtered}
}

// validateUnique enforces the collection invariant of SPEC_FULL.md §3:
// within one source, name is unique after collection.
func validateUnique(items []item.Item) error {
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if !it.Valid() {
			return fmt.Errorf("invalid item name %q", it.Name)
		}
		if seen[it.Name] {
			return fmt.Errorf("duplicate item name %q", it.Name)
		}
		seen[it.Name] = true
	}
	return nil
}
