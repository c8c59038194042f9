// Package sink dispatches routed items to AWS, one bounded worker pool per
// sink, each governed by a token-bucket rate limiter and a retry/backoff
// policy against throttling, per SPEC_FULL.md §4.9.
package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	log "github.com/sirupsen/logrus"

	secretsconfig "github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/router"
)

// Outcome classifies a dispatched item, per SPEC_FULL.md §3/§4.9.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeChanged   Outcome = "changed"
	OutcomeFailed    Outcome = "failed"
)

// FailReason further classifies an OutcomeFailed event.
type FailReason string

const (
	FailReasonExists   FailReason = "exists"
	FailReasonAWS      FailReason = "aws"
	FailReasonTooLarge FailReason = "too-large"
)

// Event is one completed dispatch, emitted to the Reporter.
type Event struct {
	Sink        string
	FullName    string
	SourceName  string
	Outcome     Outcome
	FailReason  FailReason
	Err         error
	OldValue    string
	NewValue    string
	DryRun      bool
}

// Sink writes one item and reports its outcome. Implementations must honor
// ctx cancellation by finishing any in-flight AWS call and issuing no new
// ones, per SPEC_FULL.md §5.
type Sink interface {
	Write(ctx context.Context, it router.RoutedItem, dryRun bool) Event
}

// Dispatcher runs one sink's worker pool over its routed items.
type Dispatcher struct {
	Name        string
	Sink        Sink
	Concurrency int
}

// NewAWSConfig loads the default AWS SDK v2 credential/region chain via
// config.LoadDefaultConfig, optionally overriding the region from the merged
// config document.
func NewAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

// New constructs the sink adapter named by spec.Type, sharing one AWS config
// across every sink (safe for concurrent use per SPEC_FULL.md §5).
func New(spec secretsconfig.SinkSpec, awsCfg aws.Config) (Sink, error) {
	switch spec.Type {
	case "ssm":
		return newSSMSink(spec, awsCfg)
	case "secrets_manager":
		return newSecretsManagerSink(spec, awsCfg)
	default:
		return nil, fmt.Errorf("sink %q: unknown type %q", spec.Name, spec.Type)
	}
}

// Run dispatches every item in d against the sink's bounded worker pool,
// returning one Event per item, in the order of items. Writes may complete
// out of order (per §5's "within a single sink, outcomes may complete out of
// order" rule); each event is stored at its item's index.
func (d Dispatcher) Run(ctx context.Context, items []router.RoutedItem, dryRun bool) []Event {
	l := log.WithFields(log.Fields{"action": "sink.Dispatcher.Run", "sink": d.Name, "items": len(items)})
	l.Debug("starting sink dispatch")

	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	events := make([]Event, len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, it := range items {
		select {
		case <-ctx.Done():
			events[i] = Event{Sink: d.Name, FullName: it.Name, SourceName: it.SourceName, Outcome: OutcomeFailed, FailReason: FailReasonAWS, Err: ctx.Err()}
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(idx int, it router.RoutedItem) {
			defer wg.Done()
			defer func() { <-sem }()
			ev := d.Sink.Write(ctx, it, dryRun)
			ev.Sink = d.Name
			ev.SourceName = it.SourceName
			events[idx] = ev
		}(i, it)
	}
	wg.Wait()
	return events
}

// RunAll dispatches every sink's routed items concurrently (one pool per
// sink, each internally bounded by its own concurrency), returning all
// events flattened.
func RunAll(ctx context.Context, dispatchers map[string]Dispatcher, dispatches []router.Dispatch, dryRun bool) []Event {
	var mu sync.Mutex
	var all []Event
	var wg sync.WaitGroup

	for _, d := range dispatches {
		disp, ok := dispatchers[d.Sink.Name]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(disp Dispatcher, items []router.RoutedItem) {
			defer wg.Done()
			events := disp.Run(ctx, items, dryRun)
			mu.Lock()
			all = append(all, events...)
			mu.Unlock()
		}(disp, d.Items)
	}
	wg.Wait()
	return all
}
