// Package driver composes the pipeline end to end: load config, collect
// sources, route to sinks, dispatch, summarize, per SPEC_FULL.md §2/§5.
package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Josh5/secrets-sync/internal/collector"
	"github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/reporter"
	"github.com/Josh5/secrets-sync/internal/router"
	"github.com/Josh5/secrets-sync/internal/sink"
)

// ExitCode values mirror SPEC_FULL.md §6.
const (
	ExitOK            = 0
	ExitItemFailed    = 1
	ExitConfigError   = 2
	ExitCancelled     = 130
)

// Options mirrors the CLI flags of SPEC_FULL.md §6.
type Options struct {
	Files            []string
	DryRun           bool
	PrintValues      bool
	PrintFormat      string
	PrintSyncDetails bool
}

// Run executes one full pipeline invocation and returns the process exit
// code to use.
func Run(ctx context.Context, out io.Writer, opts Options) int {
	runID := uuid.New().String()
	l := log.WithFields(log.Fields{"action": "driver.Run", "run_id": runID, "dry_run": opts.DryRun})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var cancelledBySignal atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			l.Warn("received shutdown signal, cancelling in-flight work")
			cancelledBySignal.Store(true)
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, err := config.Load(opts.Files)
	if err != nil {
		l.WithError(err).Error("failed to load configuration")
		fmt.Fprintf(out, "config error: %v\n", err)
		return ExitConfigError
	}

	vars := config.NewVars(cfg.Vars)

	tolerateSourceErrors := opts.DryRun && opts.PrintValues
	results, err := collector.Collect(ctx, cfg, vars, collector.Options{TolerateSourceErrors: tolerateSourceErrors})
	if err != nil {
		l.WithError(err).Error("source collection failed")
		fmt.Fprintf(out, "source error: %v\n", err)
		return ExitConfigError
	}

	dispatches := router.Route(cfg, results)

	if opts.DryRun {
		if err := reporter.Preview(out, dispatches, opts.PrintFormat, opts.PrintValues); err != nil {
			l.WithError(err).Error("failed to render preview")
			return ExitConfigError
		}
		if cancelledBySignal.Load() {
			return ExitCancelled
		}
		return ExitOK
	}

	awsCfg, err := sink.NewAWSConfig(ctx, cfg.AWS.Region)
	if err != nil {
		l.WithError(err).Error("failed to construct AWS client config")
		fmt.Fprintf(out, "config error: %v\n", err)
		return ExitConfigError
	}

	dispatchers := make(map[string]sink.Dispatcher, len(cfg.Sinks))
	for _, spec := range cfg.Sinks {
		s, err := sink.New(spec, awsCfg)
		if err != nil {
			l.WithError(err).Error("failed to construct sink")
			fmt.Fprintf(out, "config error: %v\n", err)
			return ExitConfigError
		}
		concurrency, _ := config.SinkLimits(spec)
		dispatchers[spec.Name] = sink.Dispatcher{Name: spec.Name, Sink: s, Concurrency: concurrency}
	}

	events := sink.RunAll(ctx, dispatchers, dispatches, opts.DryRun)

	if opts.PrintSyncDetails {
		for _, ev := range events {
			reporter.PrintSyncEvent(out, ev, opts.PrintValues)
		}
	}

	exitCode := reporter.Summary(out, events)
	if cancelledBySignal.Load() {
		return ExitCancelled
	}
	return exitCode
}
