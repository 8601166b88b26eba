// Package main provides a CLI to run detector benchmarks from the shell.
// Usage:
//
//	go run ./cmd/piibench -detector=pattern -dataset=golden_hr
//	go run ./cmd/piibench -detector=zeroshot -baseline=<run-id>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/lmittmann/tint"

	"piiguard/config"
	"piiguard/internal/benchmark"
	"piiguard/internal/core"
	"piiguard/internal/dataset"
	"piiguard/internal/detect"
	"piiguard/internal/evaluation"
	"piiguard/internal/providers"
	"piiguard/internal/storage"
	"piiguard/internal/version"
)

func main() {
	var (
		detectorName = flag.String("detector", "", "detector backend to benchmark (default from DETECTOR_DEFAULT)")
		datasetName  = flag.String("dataset", dataset.GoldenName, "dataset name to run")
		datasetDir   = flag.String("dataset-dir", "", "directory with extra dataset files (default from BENCHMARK_DATASET_DIR)")
		limit        = flag.Int("limit", 0, "run only the first N cases (0 = all)")
		workers      = flag.Int("workers", 0, "concurrent cases (default from BENCHMARK_WORKERS)")
		baseline     = flag.String("baseline", "", "compare the new run against this stored run id")
		listDatasets = flag.Bool("list", false, "list available datasets and exit")
		jsonOut      = flag.Bool("json", false, "print the full run as JSON instead of a summary")
		versionFlag  = flag.Bool("version", false, "print version information")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		return
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn})))

	cfg, err := config.Load()
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	if *detectorName == "" {
		*detectorName = cfg.Detector.Default
	}
	if *datasetDir == "" {
		*datasetDir = cfg.Benchmark.DatasetDir
	}
	if *workers == 0 {
		*workers = cfg.Benchmark.Workers
	}

	ctx := context.Background()

	detectorOpts := detect.Options{
		PatternOverridesPath: cfg.Detector.PatternOverridesPath,
		ZeroShotURL:          cfg.Detector.ZeroShotURL,
		ZeroShotThreshold:    cfg.Detector.ZeroShotThreshold,
		Provider:             providers.New(cfg.OpenRouter.APIKey),
		SafetyModel:          cfg.Detector.SafetyModel,
		Timeout:              cfg.Detector.Timeout,
		ConfidenceThreshold:  cfg.Detector.ConfidenceThreshold,
		CacheSize:            cfg.Detector.CacheSize,
	}

	locator, err := detect.NewBackend("pattern", detectorOpts)
	if err != nil {
		fatalf("dataset locator: %v", err)
	}
	datasets := dataset.NewStore(*datasetDir, locator)

	if *listDatasets {
		infos, err := datasets.List(ctx)
		if err != nil {
			fatalf("list datasets: %v", err)
		}
		for _, info := range infos {
			fmt.Printf("%-20s %4d cases  %s\n", info.Name, info.CaseCount, info.Description)
		}
		return
	}

	det, err := detect.New(*detectorName, detectorOpts)
	if err != nil {
		fatalf("detector: %v", err)
	}

	ds, err := datasets.Load(ctx, *datasetName)
	if err != nil {
		fatalf("load dataset %q: %v", *datasetName, err)
	}
	if *limit > 0 && *limit < len(ds.Cases) {
		ds.Cases = ds.Cases[:*limit]
	}

	evaluator, err := evaluation.NewEvaluator(cfg.Benchmark.PassMode, cfg.Benchmark.F1Threshold)
	if err != nil {
		fatalf("evaluator: %v", err)
	}

	storeResult, err := benchmark.NewStore(ctx, storageConfig(cfg.Storage))
	if err != nil {
		fatalf("result storage: %v", err)
	}
	defer storeResult.Close()

	runner := benchmark.NewRunner(evaluator, storeResult.Store, *workers, slog.Default())
	run, err := runner.Run(ctx, det, ds)
	if err != nil {
		fatalf("benchmark run: %v", err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			fatalf("encode run: %v", err)
		}
	} else {
		printSummary(run)
	}

	if *baseline != "" {
		base, err := storeResult.Store.Get(ctx, *baseline)
		if err != nil {
			fatalf("load baseline run %q: %v", *baseline, err)
		}
		printComparison(benchmark.Compare(base, run))
	}
}

func printSummary(run *benchmark.Run) {
	s := run.Summary

	fmt.Printf("\nrun %s  detector=%s  dataset=%s\n\n", run.ID, run.Detector, run.Dataset)
	fmt.Printf("  cases      %d total, %d passed, %d failed (pass rate %.1f%%)\n",
		s.TotalCases, s.PassedCases, s.FailedCases, s.PassRate*100)
	fmt.Printf("  precision  %.4f\n", s.Precision)
	fmt.Printf("  recall     %.4f\n", s.Recall)
	fmt.Printf("  f1         %.4f\n", s.F1)
	fmt.Printf("  leakage    %.4f\n", s.LeakageRate)
	fmt.Printf("  refusal    %.4f\n", s.FalseRefusalRate)
	fmt.Printf("  latency    p50 %.1fms  p95 %.1fms  p99 %.1fms  mean %.1fms\n\n",
		s.Latency.P50MS, s.Latency.P95MS, s.Latency.P99MS, s.Latency.MeanMS)

	if len(s.EntityMetrics) == 0 {
		return
	}

	types := make([]string, 0, len(s.EntityMetrics))
	for t := range s.EntityMetrics {
		types = append(types, string(t))
	}
	sort.Strings(types)

	fmt.Printf("  %-20s %9s %9s %9s %6s %6s\n", "entity", "precision", "recall", "f1", "exp", "det")
	for _, t := range types {
		m := s.EntityMetrics[core.EntityType(t)]
		fmt.Printf("  %-20s %9.4f %9.4f %9.4f %6d %6d\n",
			t, m.Precision, m.Recall, m.F1, m.TotalExpected, m.TotalDetected)
	}
	fmt.Println()
}

func printComparison(cmp *benchmark.Comparison) {
	fmt.Printf("comparison: %s (%s) vs %s (%s)\n\n",
		cmp.Run1ID, cmp.Detector1, cmp.Run2ID, cmp.Detector2)

	metrics := make([]string, 0, len(cmp.Overall))
	for name := range cmp.Overall {
		metrics = append(metrics, name)
	}
	sort.Strings(metrics)

	fmt.Printf("  %-16s %10s %10s %10s  %s\n", "metric", "baseline", "run", "diff", "winner")
	for _, name := range metrics {
		m := cmp.Overall[name]
		fmt.Printf("  %-16s %10.4f %10.4f %+10.4f  %s\n", name, m.Run1, m.Run2, m.Diff, m.Winner)
	}
	fmt.Println()
}

func storageConfig(cfg config.StorageConfig) storage.Config {
	return storage.Config{
		Type:       cfg.Type,
		SQLite:     storage.SQLiteConfig{Path: cfg.SQLitePath},
		PostgreSQL: storage.PostgreSQLConfig{URL: cfg.PostgresURL},
		MongoDB:    storage.MongoDBConfig{URL: cfg.MongoURL, Database: cfg.MongoDatabase},
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "piibench: "+format+"\n", args...)
	os.Exit(1)
}
