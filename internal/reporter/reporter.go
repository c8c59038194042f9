// Package reporter renders dry-run previews, per-item sync lines, and the
// final run summary, per SPEC_FULL.md §4.10.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"

	"github.com/Josh5/secrets-sync/internal/router"
	"github.com/Josh5/secrets-sync/internal/sink"
)

const (
	FormatList  = "list"
	FormatTable = "table"
	FormatJSON  = "json"
)

// previewItem mirrors the item shape of the preview JSON envelope in
// SPEC_FULL.md §6.
type previewItem struct {
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// previewSink mirrors one element of the preview JSON envelope.
type previewSink struct {
	Name    string        `json:"name"`
	Type    string        `json:"type"`
	Prefix  string        `json:"prefix"`
	Sources []string      `json:"sources"`
	Items   []previewItem `json:"items"`
}

// Preview prints the dry-run grouped output (list/table/json) described in
// SPEC_FULL.md §4.10/§6, with no AWS calls.
func Preview(w io.Writer, dispatches []router.Dispatch, format string, printValues bool) error {
	switch format {
	case FormatJSON:
		return previewJSON(w, dispatches, printValues)
	case FormatTable:
		return previewTable(w, dispatches, printValues)
	default:
		return previewList(w, dispatches, printValues)
	}
}

func toPreviewSinks(dispatches []router.Dispatch, printValues bool) []previewSink {
	out := make([]previewSink, 0, len(dispatches))
	for _, d := range dispatches {
		sources := make([]string, 0)
		seen := make(map[string]bool)
		for _, it := range d.Items {
			if !seen[it.SourceName] {
				seen[it.SourceName] = true
				sources = append(sources, it.SourceName)
			}
		}
		sort.Strings(sources)

		items := make([]previewItem, 0, len(d.Items))
		for _, it := range d.Items {
			pi := previewItem{Name: it.Name, Description: it.Description}
			if printValues {
				pi.Value = it.Value
			}
			items = append(items, pi)
		}
		out = append(out, previewSink{
			Name:    d.Sink.Name,
			Type:    d.Sink.Type,
			Prefix:  d.Sink.Prefix,
			Sources: sources,
			Items:   items,
		})
	}
	return out
}

func previewJSON(w io.Writer, dispatches []router.Dispatch, printValues bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toPreviewSinks(dispatches, printValues))
}

func previewList(w io.Writer, dispatches []router.Dispatch, printValues bool) error {
	for _, d := range dispatches {
		fmt.Fprintf(w, "%s (%s)\n", d.Sink.Name, d.Sink.Type)
		for _, it := range d.Items {
			if printValues {
				fmt.Fprintf(w, "  %s = %q\n", it.Name, it.Value)
			} else {
				fmt.Fprintf(w, "  %s\n", it.Name)
			}
		}
	}
	return nil
}

func previewTable(w io.Writer, dispatches []router.Dispatch, printValues bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if printValues {
		fmt.Fprintln(tw, "SINK\tNAME\tSOURCE\tVALUE")
	} else {
		fmt.Fprintln(tw, "SINK\tNAME\tSOURCE")
	}
	for _, d := range dispatches {
		for _, it := range d.Items {
			if printValues {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%q\n", d.Sink.Name, it.Name, it.SourceName, it.Value)
			} else {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Sink.Name, it.Name, it.SourceName)
			}
		}
	}
	return tw.Flush()
}

// PrintSyncEvent prints one completed dispatch's sync line, per §4.10.
// Value snapshots are appended only when printValues is set.
func PrintSyncEvent(w io.Writer, ev sink.Event, printValues bool) {
	switch ev.Outcome {
	case sink.OutcomeCreated:
		if printValues {
			fmt.Fprintf(w, "%s: created %s %q\n", ev.Sink, ev.FullName, ev.NewValue)
		} else {
			fmt.Fprintf(w, "%s: created %s\n", ev.Sink, ev.FullName)
		}
	case sink.OutcomeUnchanged:
		fmt.Fprintf(w, "%s: unchanged %s\n", ev.Sink, ev.FullName)
	case sink.OutcomeChanged:
		if printValues {
			fmt.Fprintf(w, "%s: changed %s %q -> %q\n", ev.Sink, ev.FullName, ev.OldValue, ev.NewValue)
		} else {
			fmt.Fprintf(w, "%s: changed %s\n", ev.Sink, ev.FullName)
		}
	case sink.OutcomeFailed:
		fmt.Fprintf(w, "%s: failed %s (%s): %v\n", ev.Sink, ev.FullName, ev.FailReason, ev.Err)
	}
}

// Summary tallies outcomes per sink and overall, printing the final report
// required by every run. It returns the process exit code: 0 iff no item
// failed.
func Summary(w io.Writer, events []sink.Event) int {
	type counts struct {
		created, unchanged, changed, failed int
	}
	bySink := map[string]*counts{}
	var order []string
	total := counts{}

	for _, ev := range events {
		c, ok := bySink[ev.Sink]
		if !ok {
			c = &counts{}
			bySink[ev.Sink] = c
			order = append(order, ev.Sink)
		}
		switch ev.Outcome {
		case sink.OutcomeCreated:
			c.created++
			total.created++
		case sink.OutcomeUnchanged:
			c.unchanged++
			total.unchanged++
		case sink.OutcomeChanged:
			c.changed++
			total.changed++
		case sink.OutcomeFailed:
			c.failed++
			total.failed++
		}
	}

	fmt.Fprintln(w, "Summary")
	fmt.Fprintln(w, "-------")
	for _, name := range order {
		c := bySink[name]
		fmt.Fprintf(w, "  %s: created=%d unchanged=%d changed=%d failed=%d\n",
			name, c.created, c.unchanged, c.changed, c.failed)
	}
	fmt.Fprintf(w, "  total: created=%d unchanged=%d changed=%d failed=%d\n",
		total.created, total.unchanged, total.changed, total.failed)

	exitCode := 0
	if total.failed > 0 {
		exitCode = 1
	}
	log.WithFields(log.Fields{
		"action":    "reporter.Summary",
		"created":   total.created,
		"unchanged": total.unchanged,
		"changed":   total.changed,
		"failed":    total.failed,
	}).Info("run complete")

	return exitCode
}
