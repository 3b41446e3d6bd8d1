package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/openrice-crawler/internal/analysis"
	"github.com/JakeFAU/openrice-crawler/internal/config"
	"github.com/JakeFAU/openrice-crawler/internal/crawler"
	"github.com/JakeFAU/openrice-crawler/internal/dataset"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(&app{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", ""))
	err := cmd.Execute()
	return out.String(), err
}

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENRICE_LOGGING_LEVEL", "error")
	t.Setenv("OPENRICE_CRAWLER_DELAY_SECONDS", "0")
}

func writeDataset(t *testing.T, dir string) (string, string) {
	t.Helper()
	records := []crawler.ListingRecord{
		{Name: "蘭芳園", Cuisine: "港式", DishType: "茶餐廳", PriceBand: "$51-100", Rating: 4.3, ReviewCount: 523, District: "中環"},
		{Name: "Amber", Cuisine: "法國菜", DishType: "西餐", PriceBand: "$401-800", Rating: 3.9, ReviewCount: 42, SpecialDish: "海膽", District: "中環"},
		{Name: "沾仔記", Cuisine: "粵菜", DishType: "麵食", PriceBand: "$50以下", Rating: 3.5, ReviewCount: 12, District: "中環"},
		{Name: "一蘭", Cuisine: "日本菜", DishType: "拉麵", PriceBand: "$101-200", Rating: 4.1, ReviewCount: 87, District: "銅鑼灣"},
	}
	sink, err := dataset.NewSink(dataset.Config{}, nil)
	require.NoError(t, err)
	jsonPath := filepath.Join(dir, "openrice_data.json")
	csvPath := filepath.Join(dir, "openrice_data.csv")
	_, err = sink.Write(t.Context(), records, dataset.Paths{JSON: jsonPath, CSV: csvPath})
	require.NoError(t, err)
	return jsonPath, csvPath
}

func TestAnalysisCommands(t *testing.T) {
	quietEnv(t)
	dir := t.TempDir()
	_, csvPath := writeDataset(t, dir)
	classified := filepath.Join(dir, "classified.csv")
	clustered := filepath.Join(dir, "clustered.csv")

	_, err := execute(t, "classify", "--in", csvPath, "--out", classified)
	require.NoError(t, err)
	rows, err := dataset.ReadRows(classified)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, analysis.FoodieYouTuber, rows[0].Get(analysis.FoodieTypeField))
	assert.Equal(t, analysis.FoodieIGCreator, rows[1].Get(analysis.FoodieTypeField))
	assert.Equal(t, analysis.FoodieRegular, rows[2].Get(analysis.FoodieTypeField))

	_, err = execute(t, "cluster", "--in", classified, "--out", clustered)
	require.NoError(t, err)
	rows, err = dataset.ReadRows(clustered)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.True(t, rows[0].Has(analysis.FoodieTypeField))
	assert.True(t, rows[0].Has(analysis.ClusterField))

	out, err := execute(t, "summary", "--in", classified)
	require.NoError(t, err)
	var summary analysis.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 4, summary.Rows)
	require.NotEmpty(t, summary.DistrictCounts)
	assert.Equal(t, analysis.Count{Value: "中環", Count: 3}, summary.DistrictCounts[0])
	assert.NotEmpty(t, summary.FoodieDistribution)
}

func TestSummaryReadsJSONDataset(t *testing.T) {
	quietEnv(t)
	dir := t.TempDir()
	jsonPath, _ := writeDataset(t, dir)
	out := filepath.Join(dir, "summary.json")

	_, err := execute(t, "summary", "--in", jsonPath, "--out", out)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var summary analysis.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 4, summary.Rows)
	assert.Equal(t, "蘭芳園", summary.MostReviewed[0].Name)
}

func TestClassifyMissingInputFails(t *testing.T) {
	quietEnv(t)
	_, err := execute(t, "classify", "--in", filepath.Join(t.TempDir(), "missing.csv"), "--out", filepath.Join(t.TempDir(), "x.csv"))
	require.Error(t, err)
}

func TestCrawlStaticEndToEnd(t *testing.T) {
	quietEnv(t)
	page, err := os.ReadFile(filepath.Join("..", "..", "internal", "parser", "testdata", "district_listing.html"))
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "closed") {
			http.Error(w, "gone", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}))
	defer server.Close()

	dir := t.TempDir()
	metrics := filepath.Join(dir, "metrics", "openrice.prom")
	mirror := filepath.Join(dir, "mirror")
	t.Setenv("OPENRICE_FETCHER_MODE", "static")
	t.Setenv("OPENRICE_METRICS_TEXTFILE", metrics)
	t.Setenv("OPENRICE_STORAGE_BACKEND", "local")
	t.Setenv("OPENRICE_STORAGE_LOCAL_DIR", mirror)

	jsonPath := filepath.Join(dir, "out.json")
	csvPath := filepath.Join(dir, "out.csv")
	_, err = execute(t, "crawl",
		"--target", server.URL+"/zh/hongkong/restaurants/district/%E4%B8%AD%E7%92%B0?sortBy=ORScoreDesc",
		"--target", server.URL+"/zh/hongkong/restaurants/district/closed",
		"--json", jsonPath,
		"--csv", csvPath,
	)
	require.NoError(t, err, "a failing district must not fail the run")

	records, err := dataset.ReadJSON(jsonPath)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "蘭芳園", records[0].Name)
	assert.Equal(t, "中環", records[0].District)

	rows, err := dataset.ReadRows(csvPath)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "openrice_runs_completed_total 1")

	mirrored, err := filepath.Glob(filepath.Join(mirror, "datasets", "*", "out.json"))
	require.NoError(t, err)
	assert.Len(t, mirrored, 1)
}

func TestBuildReleaserDryRunKeepsArtifactsInMemory(t *testing.T) {
	quietEnv(t)
	t.Setenv("OPENRICE_STORAGE_BACKEND", "memory")
	t.Setenv("OPENRICE_PUBSUB_TOPIC_NAME", "openrice-datasets")
	t.Setenv("OPENRICE_PUBSUB_DRY_RUN", "true")
	cfg, err := config.Load("")
	require.NoError(t, err)

	dir := t.TempDir()
	jsonPath, csvPath := writeDataset(t, dir)
	artifacts := []dataset.Artifact{
		{Path: jsonPath, ContentType: dataset.ContentTypeJSON},
		{Path: csvPath, ContentType: dataset.ContentTypeCSV},
	}

	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	r, deps, err := buildReleaser(t.Context(), cfg, logger)
	require.NoError(t, err)
	defer deps.Close(logger)
	require.NotNil(t, deps.blobs)
	require.NotNil(t, deps.messages)
	require.Nil(t, deps.pubsub)

	res, err := r.Release(t.Context(), crawler.RunSummary{RunID: "run-1"}, nil, artifacts)
	require.NoError(t, err)
	require.NotEmpty(t, res.MessageID)
	require.Len(t, deps.blobs.Paths(), 2)
	for _, path := range deps.blobs.Paths() {
		require.True(t, strings.HasPrefix(path, "datasets/run-1/"), path)
	}
	msgs := deps.messages.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "openrice-datasets", msgs[0].Topic)

	deps.LogDryRun(logger)
	require.Len(t, logs.FilterMessage("dry run artifact").All(), 2)
	require.Len(t, logs.FilterMessage("dry run notification").All(), 1)
}

func TestCrawlRejectsInvalidTarget(t *testing.T) {
	quietEnv(t)
	_, err := execute(t, "crawl", "--target", "https://www.openrice.com/zh/hongkong", "--no-release")
	require.Error(t, err)
}

func TestReportErrorUsesLoggerOnceInitialised(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	a := &app{logger: zap.New(core)}
	var stderr bytes.Buffer
	a.reportError(&stderr, errors.New("dataset persistence failed"))

	require.Empty(t, stderr.String())
	entries := logs.FilterMessage("command failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "dataset persistence failed", entries[0].ContextMap()["error"])
}

func TestReportErrorBeforeLoggerFallsBackToWriter(t *testing.T) {
	quietEnv(t)
	a := &app{}
	cmd := newRootCmd(a)
	cmd.SetArgs([]string{"summary", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--env-file", ""})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	require.Nil(t, a.logger)

	var stderr bytes.Buffer
	a.reportError(&stderr, err)
	require.Contains(t, stderr.String(), "openrice: load config")
}
