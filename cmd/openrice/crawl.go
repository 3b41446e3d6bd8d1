package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/openrice-crawler/internal/crawler"
	"github.com/JakeFAU/openrice-crawler/internal/dataset"
	"github.com/JakeFAU/openrice-crawler/internal/parser"
	"github.com/JakeFAU/openrice-crawler/internal/progress"
	"github.com/JakeFAU/openrice-crawler/internal/progress/sinks"
)

const shutdownTimeout = 10 * time.Second

type crawlFlags struct {
	targets   []string
	json      string
	csv       string
	noRelease bool
}

func newCrawlCmd(a *app) *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl district directories and write the listing dataset",
		Long: `Visits each configured district directory in order, scrolls until the
listing stops growing, extracts complete listings, and writes the JSON and
CSV datasets. A failing district is logged and skipped. Only a failure to
write the dataset makes the command fail.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("target") {
				a.cfg.Crawler.Targets = flags.targets
			}
			if cmd.Flags().Changed("json") {
				a.cfg.Output.JSONPath = flags.json
			}
			if cmd.Flags().Changed("csv") {
				a.cfg.Output.CSVPath = flags.csv
			}
			return a.crawl(cmd.Context(), !flags.noRelease)
		},
	}
	cmd.Flags().StringSliceVar(&flags.targets, "target", nil, "district directory url (repeatable, replaces crawler.targets)")
	cmd.Flags().StringVar(&flags.json, "json", "", "JSON dataset path (empty skips JSON)")
	cmd.Flags().StringVar(&flags.csv, "csv", "", "CSV dataset path (empty skips CSV)")
	cmd.Flags().BoolVar(&flags.noRelease, "no-release", false, "skip mirroring, database and pubsub destinations")
	return cmd
}

func (a *app) crawl(ctx context.Context, withRelease bool) error {
	cfg := a.cfg
	logger := a.logger
	if err := cfg.Validate(); err != nil {
		return err
	}
	targets, err := cfg.Targets()
	if err != nil {
		return err
	}
	sink, err := dataset.NewSink(dataset.Config{
		Columns:        dataset.ColumnMode(cfg.Output.Columns),
		SkipValidation: cfg.Output.SkipValidation,
	}, logger.Named("dataset"))
	if err != nil {
		return err
	}

	fetcher, err := buildFetcher(cfg, logger)
	if err != nil {
		return err
	}
	p := parser.New(parser.Config{
		Origin:    cfg.Crawler.Origin,
		Selectors: cfg.Crawler.Selectors,
	}, logger.Named("parser"))

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	)

	orch := crawler.NewOrchestrator(fetcher, p, crawler.Config{Delay: cfg.Delay()}, logger.Named("crawler"),
		crawler.WithEmitter(hub),
	)
	records, summary := orch.RunWithSummary(ctx, targets)

	// Work below must finish even when the crawl was interrupted.
	ctx = context.WithoutCancel(ctx)

	closeCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	if err := hub.Close(closeCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	cancel()

	artifacts, err := sink.Write(ctx, records, dataset.Paths{
		JSON: cfg.Output.JSONPath,
		CSV:  cfg.Output.CSVPath,
	})
	if err != nil {
		return err
	}
	for _, art := range artifacts {
		logger.Info("dataset written",
			zap.String("path", art.Path),
			zap.Int("bytes", art.Bytes),
			zap.Int("records", len(records)),
		)
	}

	if withRelease {
		a.release(ctx, summary, records, artifacts)
	}

	if err := sinks.WriteTextfile(cfg.Metrics.Textfile, registry); err != nil {
		logger.Warn("metrics textfile export failed", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
	}

	logger.Info("crawl complete",
		zap.String("run_id", summary.RunID),
		zap.Int("targets", len(summary.Targets)),
		zap.Int("failed", summary.Failed()),
		zap.Int("records", len(records)),
	)
	return nil
}

func (a *app) release(
	ctx context.Context,
	summary crawler.RunSummary,
	records []crawler.ListingRecord,
	artifacts []dataset.Artifact,
) {
	r, deps, err := buildReleaser(ctx, a.cfg, a.logger.Named("release"))
	if err != nil {
		a.logger.Error("dataset release skipped", zap.Error(err))
		return
	}
	defer deps.Close(a.logger)

	if _, err := r.Release(ctx, summary, records, artifacts); err != nil {
		a.logger.Error("dataset release incomplete", zap.Error(err))
	}
	deps.LogDryRun(a.logger.Named("release"))
}
