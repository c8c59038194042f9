package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"

	log "github.com/sirupsen/logrus"

	"github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/item"
)

const defaultOpConcurrency = 8

// opItemSummary is one entry of `op item list --format json`.
type opItemSummary struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// opField is one entry of an `op item get` item's `fields` array.
type opField struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Purpose string `json:"purpose"`
	Label   string `json:"label"`
	Value   string `json:"value"`
}

// opItem is the shape of `op item get --format json`.
type opItem struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Tags   []string  `json:"tags"`
	Fields []opField `json:"fields"`
}

// onePasswordSource fetches tagged records from the `op` CLI, per
// SPEC_FULL.md §4.6.
type onePasswordSource struct {
	spec config.SourceSpec
	run  func(ctx context.Context, args ...string) ([]byte, error)
}

func newOnePasswordSource(spec config.SourceSpec) *onePasswordSource {
	return &onePasswordSource{spec: spec, run: runSubprocessJSON("op")}
}

func (s *onePasswordSource) Filter() config.CommonFilter {
	if s.spec.OnePassword == nil {
		return config.CommonFilter{}
	}
	return s.spec.OnePassword.CommonFilter
}

// runSubprocessJSON builds a subprocess runner for a `--format json`-style
// CLI: a failed run (such as a non-zero exit) is returned as an error whose
// message carries the captured stderr, per SPEC_FULL.md §6 ("Subprocess
// contracts"). Callers report non-JSON stdout when they parse it.
func runSubprocessJSON(bin string) func(ctx context.Context, args ...string) ([]byte, error) {
	return func(ctx context.Context, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, bin, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("%s %v: %w: %s", bin, args, err, stderr.String())
		}
		return stdout.Bytes(), nil
	}
}

func (s *onePasswordSource) Collect(ctx context.Context) ([]item.Item, error) {
	opts := s.spec.OnePassword
	if opts == nil {
		return nil, fmt.Errorf("1password source %q: missing onepassword options", s.spec.Name)
	}
	if opts.Vault == "" {
		return nil, fmt.Errorf("1password source %q: vault is required", s.spec.Name)
	}

	listOut, err := s.run(ctx, "item", "list", "--vault", opts.Vault, "--format", "json")
	if err != nil {
		return nil, fmt.Errorf("1password source %q: %w", s.spec.Name, err)
	}
	var summaries []opItemSummary
	if err := json.Unmarshal(listOut, &summaries); err != nil {
		return nil, fmt.Errorf("1password source %q: failed to parse item list: %w", s.spec.Name, err)
	}

	var titleFilter *regexp.Regexp
	if opts.IncludeRegex != "" {
		titleFilter, err = regexp.Compile(`^(?:` + opts.IncludeRegex + `)$`)
		if err != nil {
			return nil, fmt.Errorf("1password source %q: invalid include_regex: %w", s.spec.Name, err)
		}
	}

	var surviving []opItemSummary
	for _, sum := range summaries {
		if titleFilter != nil && !titleFilter.MatchString(sum.Title) {
			continue
		}
		surviving = append(surviving, sum)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultOpConcurrency
	}

	items := make([]opItem, len(surviving))
	err = runBounded(ctx, concurrency, len(surviving), func(ctx context.Context, i int) error {
		getOut, err := s.run(ctx, "item", "get", surviving[i].ID, "--format", "json")
		if err != nil {
			return fmt.Errorf("1password source %q: item %s: %w", s.spec.Name, surviving[i].Title, err)
		}
		var full opItem
		if err := json.Unmarshal(getOut, &full); err != nil {
			return fmt.Errorf("1password source %q: item %s: failed to parse: %w", s.spec.Name, surviving[i].Title, err)
		}
		items[i] = full
		return nil
	})
	if err != nil {
		return nil, err
	}

	var records []taggedRecord
	for _, it := range items {
		val, ok := selectOpValue(it.Fields)
		if !ok {
			log.WithFields(log.Fields{
				"action": "source.onePassword",
				"source": s.spec.Name,
				"title":  it.Title,
			}).Warn("no usable value field found, skipping item")
			continue
		}
		records = append(records, taggedRecord{title: it.Title, value: val, tags: it.Tags})
	}

	records = filterDisjointTags(records, opts.TagFilters)
	return resolveTagPriority(records, opts.TagFilters, s.spec.Name), nil
}

// selectOpValue implements the field-selection priority of SPEC_FULL.md
// §4.6: named `password` field, then any concealed field, then the first
// field with a non-empty value.
func selectOpValue(fields []opField) (string, bool) {
	for _, f := range fields {
		if f.Purpose == "PASSWORD" || f.Label == "password" {
			return f.Value, true
		}
	}
	for _, f := range fields {
		if f.Type == "CONCEALED" && f.Value != "" {
			return f.Value, true
		}
	}
	for _, f := range fields {
		if f.Value != "" {
			return f.Value, true
		}
	}
	return "", false
}
