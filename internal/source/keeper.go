package source

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/item"
)

const defaultKeeperConcurrency = 8

// keeperRecordSummary is one entry of `keeper list --format json`.
type keeperRecordSummary struct {
	UID    string `json:"uid"`
	Title  string `json:"title"`
	Folder string `json:"folder"`
}

// keeperField is one custom field on a Keeper record.
type keeperField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// keeperRecord is the shape of `keeper get --format json`.
type keeperRecord struct {
	UID      string        `json:"uid"`
	Title    string        `json:"title"`
	Folder   string        `json:"folder"`
	Password string        `json:"password"`
	Login    string        `json:"login"`
	Notes    string        `json:"notes"`
	Custom   []keeperField `json:"custom_fields"`
}

// keeperSource fetches tagged records from the `keeper` CLI, per
// SPEC_FULL.md §4.6.
type keeperSource struct {
	spec config.SourceSpec
	run  func(ctx context.Context, args ...string) ([]byte, error)
}

func newKeeperSource(spec config.SourceSpec) *keeperSource {
	return &keeperSource{spec: spec, run: runSubprocessJSON("keeper")}
}

func (s *keeperSource) Filter() config.CommonFilter {
	if s.spec.Keeper == nil {
		return config.CommonFilter{}
	}
	return s.spec.Keeper.CommonFilter
}

func (s *keeperSource) Collect(ctx context.Context) ([]item.Item, error) {
	opts := s.spec.Keeper
	if opts == nil {
		return nil, fmt.Errorf("keeper source %q: missing keeper options", s.spec.Name)
	}

	listOut, err := s.run(ctx, "list", "--format", "json")
	if err != nil {
		return nil, fmt.Errorf("keeper source %q: %w", s.spec.Name, err)
	}
	var summaries []keeperRecordSummary
	if err := json.Unmarshal(listOut, &summaries); err != nil {
		return nil, fmt.Errorf("keeper source %q: failed to parse record list: %w", s.spec.Name, err)
	}

	var titleFilter *regexp.Regexp
	if opts.IncludeRegex != "" {
		titleFilter, err = regexp.Compile(`^(?:` + opts.IncludeRegex + `)$`)
		if err != nil {
			return nil, fmt.Errorf("keeper source %q: invalid include_regex: %w", s.spec.Name, err)
		}
	}

	var surviving []keeperRecordSummary
	for _, sum := range summaries {
		if opts.Folder != "" && sum.Folder != opts.Folder {
			continue
		}
		if titleFilter != nil && !titleFilter.MatchString(sum.Title) {
			continue
		}
		surviving = append(surviving, sum)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultKeeperConcurrency
	}

	records := make([]keeperRecord, len(surviving))
	err = runBounded(ctx, concurrency, len(surviving), func(ctx context.Context, i int) error {
		getOut, err := s.run(ctx, "get", surviving[i].UID, "--format", "json")
		if err != nil {
			return fmt.Errorf("keeper source %q: record %s: %w", s.spec.Name, surviving[i].Title, err)
		}
		var full keeperRecord
		if err := json.Unmarshal(getOut, &full); err != nil {
			return fmt.Errorf("keeper source %q: record %s: failed to parse: %w", s.spec.Name, surviving[i].Title, err)
		}
		records[i] = full
		return nil
	})
	if err != nil {
		return nil, err
	}

	var tagged []taggedRecord
	for _, rec := range records {
		val, ok := selectKeeperValue(rec)
		if !ok {
			log.WithFields(log.Fields{
				"action": "source.keeper",
				"source": s.spec.Name,
				"title":  rec.Title,
			}).Warn("no usable value field found, skipping record")
			continue
		}
		tagged = append(tagged, taggedRecord{title: rec.Title, value: val, tags: keeperTags(rec)})
	}

	tagged = filterDisjointTags(tagged, opts.TagFilters)
	return resolveTagPriority(tagged, opts.TagFilters, s.spec.Name), nil
}

// keeperTags reads the comma-separated custom field literally named `tags`,
// per SPEC_FULL.md §4.6.
func keeperTags(rec keeperRecord) []string {
	for _, f := range rec.Custom {
		if f.Label != "tags" {
			continue
		}
		var tags []string
		for _, t := range strings.Split(f.Value, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tags = append(tags, t)
			}
		}
		return tags
	}
	return nil
}

// selectKeeperValue implements the value-selection priority of SPEC_FULL.md
// §4.6: record-level password, then any password/login/note field, then
// other custom fields (excluding tags), then the record's notes body.
func selectKeeperValue(rec keeperRecord) (string, bool) {
	if rec.Password != "" {
		return rec.Password, true
	}
	for _, f := range rec.Custom {
		label := strings.ToLower(f.Label)
		if (label == "password" || label == "login" || label == "note") && f.Value != "" {
			return f.Value, true
		}
	}
	if rec.Login != "" {
		return rec.Login, true
	}
	for _, f := range rec.Custom {
		if f.Label == "tags" {
			continue
		}
		if f.Value != "" {
			return f.Value, true
		}
	}
	if rec.Notes != "" {
		return rec.Notes, true
	}
	return "", false
}
