// Package router fans collected items out to the sinks that subscribe to
// them, applying per-sink prefixing and first-source-wins deduplication,
// per SPEC_FULL.md §4.8.
package router

import (
	log "github.com/sirupsen/logrus"

	"github.com/Josh5/secrets-sync/internal/collector"
	"github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/item"
)

// RoutedItem is the dispatch record of SPEC_FULL.md §3, minus outcome:
// the final, prefixed item plus the source it was resolved from.
type RoutedItem struct {
	item.Item
	SourceName string
}

// Dispatch is one sink's resolved, prefixed, deduplicated item set.
type Dispatch struct {
	Sink  config.SinkSpec
	Items []RoutedItem
}

// Route builds one Dispatch per configured sink. results is keyed by source
// name and carries the Collector's per-source item sets.
func Route(cfg *config.Config, results []collector.Result) []Dispatch {
	bySource := make(map[string][]item.Item, len(results))
	for _, r := range results {
		bySource[r.SourceName] = r.Items
	}
	declared := cfg.SourceNames()

	dispatches := make([]Dispatch, 0, len(cfg.Sinks))
	for _, sink := range cfg.Sinks {
		names := sink.Sources.Resolve(declared)
		dispatches = append(dispatches, Dispatch{
			Sink:  sink,
			Items: routeOne(sink, names, bySource),
		})
	}
	return dispatches
}

func routeOne(sink config.SinkSpec, sourceNames []string, bySource map[string][]item.Item) []RoutedItem {
	var order []string
	seen := make(map[string]RoutedItem)

	for _, srcName := range sourceNames {
		for _, it := range bySource[srcName] {
			prefixed := it
			prefixed.Name = sink.Prefix + it.Name

			if existing, exists := seen[prefixed.Name]; exists {
				log.WithFields(log.Fields{
					"action": "router.Route",
					"sink":   sink.Name,
					"name":   prefixed.Name,
					"source": srcName,
					"kept":   existing.SourceName,
				}).Warn("duplicate item name across sources, keeping first source's value")
				continue
			}

			order = append(order, prefixed.Name)
			seen[prefixed.Name] = RoutedItem{Item: prefixed, SourceName: srcName}
		}
	}

	result := make([]RoutedItem, 0, len(order))
	for _, name := range order {
		result = append(result, seen[name])
	}
	return result
}
