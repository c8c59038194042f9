package source

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Josh5/secrets-sync/internal/item"
)

// taggedRecord is the 1Password/Keeper intermediate of SPEC_FULL.md §3,
// before the tag-priority override rule of §4.6 collapses same-titled
// records into one Item.
type taggedRecord struct {
	title       string
	value       string
	description string
	tags        []string
}

// filterDisjointTags discards records whose tag set shares nothing with
// tagFilters. An empty tagFilters means every record passes.
func filterDisjointTags(records []taggedRecord, tagFilters []string) []taggedRecord {
	if len(tagFilters) == 0 {
		return records
	}
	wanted := make(map[string]bool, len(tagFilters))
	for _, t := range tagFilters {
		wanted[t] = true
	}
	var kept []taggedRecord
	for _, r := range records {
		for _, t := range r.tags {
			if wanted[t] {
				kept = append(kept, r)
				break
			}
		}
	}
	return kept
}

// resolveTagPriority collapses records sharing a title into one Item per
// title, per SPEC_FULL.md §4.6: the chosen record is the one whose
// highest-priority tag (greatest index in tagFilters) is greatest; ties are
// broken by discovery order (last wins) with a warning naming the title and
// tag.
func resolveTagPriority(records []taggedRecord, tagFilters []string, sourceName string) []item.Item {
	priority := make(map[string]int, len(tagFilters))
	for i, t := range tagFilters {
		priority[t] = i
	}

	bestTag := func(tags []string) (tag string, rank int, found bool) {
		rank = -1
		for _, t := range tags {
			if r, ok := priority[t]; ok && (!found || r > rank) {
				tag, rank, found = t, r, true
			}
		}
		return
	}

	type chosen struct {
		rec     taggedRecord
		tag     string
		rank    int
		ranked  bool
	}

	var order []string
	byTitle := map[string]*chosen{}

	for _, rec := range records {
		tag, rank, found := bestTag(rec.tags)
		cur, exists := byTitle[rec.title]
		if !exists {
			order = append(order, rec.title)
			byTitle[rec.title] = &chosen{rec: rec, tag: tag, rank: rank, ranked: found}
			continue
		}
		switch {
		case found && !cur.ranked:
			byTitle[rec.title] = &chosen{rec: rec, tag: tag, rank: rank, ranked: true}
		case found && cur.ranked && rank > cur.rank:
			byTitle[rec.title] = &chosen{rec: rec, tag: tag, rank: rank, ranked: true}
		case found && cur.ranked && rank == cur.rank:
			log.WithFields(log.Fields{
				"action": "source.resolveTagPriority",
				"source": sourceName,
				"title":  rec.title,
				"tag":    tag,
			}).Warn("tag priority tie, using most recently discovered record")
			byTitle[rec.title] = &chosen{rec: rec, tag: tag, rank: rank, ranked: true}
		case !found && !cur.ranked:
			// Neither record carries a ranked tag; last discovered wins,
			// same tie rule as a genuine rank tie.
			byTitle[rec.title] = &chosen{rec: rec, tag: tag, rank: rank, ranked: false}
		}
	}

	items := make([]item.Item, 0, len(order))
	for _, title := range order {
		c := byTitle[title]
		items = append(items, item.Item{Name: title, Value: c.rec.value, Description: c.rec.description})
	}
	return items
}

// runBounded fans out n tasks with at most concurrency in flight at once,
// the semaphore-channel-plus-sync.WaitGroup idiom this codebase uses for
// bounded parallel execution. It returns the first error observed, if any,
// after every task has returned.
func runBounded(ctx context.Context, concurrency, n int, fn func(ctx context.Context, i int) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[idx] = fn(ctx, idx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

