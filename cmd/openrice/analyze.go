package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/openrice-crawler/internal/analysis"
	"github.com/JakeFAU/openrice-crawler/internal/dataset"
)

type ioFlags struct {
	in  string
	out string
}

func (f *ioFlags) bind(cmd *cobra.Command, inUsage, outUsage string) {
	cmd.Flags().StringVar(&f.in, "in", "", inUsage)
	cmd.Flags().StringVar(&f.out, "out", "", outUsage)
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

func newClassifyCmd(a *app) *cobra.Command {
	flags := &ioFlags{}
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Label each listing with a foodie type",
		RunE: func(*cobra.Command, []string) error {
			return a.classify(
				pick(flags.in, a.cfg.Output.CSVPath),
				pick(flags.out, a.cfg.Analysis.ClassifiedCSV),
			)
		},
	}
	flags.bind(cmd, "input dataset (CSV or JSON, default output.csv_path)", "classified CSV (default analysis.classified_csv)")
	return cmd
}

func newClusterCmd(a *app) *cobra.Command {
	flags := &ioFlags{}
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Segment listings by rating, review count and price with k-means",
		RunE: func(*cobra.Command, []string) error {
			return a.cluster(
				pick(flags.in, a.cfg.Analysis.ClassifiedCSV),
				pick(flags.out, a.cfg.Analysis.ClusteredCSV),
			)
		},
	}
	flags.bind(cmd, "input dataset (default analysis.classified_csv)", "clustered CSV (default analysis.clustered_csv)")
	return cmd
}

func newSummaryCmd(a *app) *cobra.Command {
	flags := &ioFlags{}
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a descriptive summary of a dataset as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.summary(
				pick(flags.in, a.cfg.Output.CSVPath),
				pick(flags.out, a.cfg.Analysis.SummaryJSON),
				cmd.OutOrStdout(),
			)
		},
	}
	flags.bind(cmd, "input dataset (default output.csv_path)", "summary JSON path (default analysis.summary_json, else stdout)")
	return cmd
}

// readDataset loads rows from a CSV file, or from a JSON dataset when the
// path ends in .json.
func readDataset(path string) ([]dataset.Row, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		records, err := dataset.ReadJSON(path)
		if err != nil {
			return nil, err
		}
		return dataset.RecordRows(records), nil
	}
	return dataset.ReadRows(path)
}

func (a *app) analysisSink() (*dataset.Sink, error) {
	return dataset.NewSink(dataset.Config{Columns: dataset.ColumnsUnion}, a.logger.Named("dataset"))
}

func (a *app) classify(in, out string) error {
	rows, err := readDataset(in)
	if err != nil {
		return err
	}
	labeled := analysis.Classify(rows, analysis.DefaultRules())
	sink, err := a.analysisSink()
	if err != nil {
		return err
	}
	if _, err := sink.WriteCSV(out, labeled); err != nil {
		return err
	}
	for _, c := range analysis.Distribution(labeled, analysis.FoodieTypeField) {
		a.logger.Info("foodie type", zap.String("type", c.Value), zap.Int("listings", c.Count))
	}
	a.logger.Info("classified dataset written", zap.String("path", out), zap.Int("rows", len(labeled)))
	return nil
}

func (a *app) cluster(in, out string) error {
	rows, err := readDataset(in)
	if err != nil {
		return err
	}
	clustered, stats, err := analysis.Cluster(rows, analysis.ClusterConfig{
		K:    a.cfg.Analysis.Clusters,
		Seed: a.cfg.Analysis.Seed,
	})
	if err != nil {
		return fmt.Errorf("cluster %s: %w", in, err)
	}
	sink, err := a.analysisSink()
	if err != nil {
		return err
	}
	if _, err := sink.WriteCSV(out, clustered); err != nil {
		return err
	}
	for _, s := range stats {
		a.logger.Info("cluster",
			zap.Int("cluster", s.Cluster),
			zap.Int("size", s.Size),
			zap.Float64("mean_rating", s.MeanRating),
			zap.Float64("mean_review_count", s.MeanReviewCount),
			zap.Float64("mean_price_lower", s.MeanPriceLower),
		)
	}
	a.logger.Info("clustered dataset written", zap.String("path", out), zap.Int("rows", len(clustered)))
	return nil
}

func (a *app) summary(in, out string, stdout io.Writer) error {
	rows, err := readDataset(in)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(analysis.Summarize(rows), "", "    ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	data = append(data, '\n')
	if out == "" {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return fmt.Errorf("write summary %s: %w", out, err)
	}
	a.logger.Info("summary written", zap.String("path", out), zap.Int("rows", len(rows)))
	return nil
}
