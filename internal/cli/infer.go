package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/AlexJJJChen/NormBench/internal/cache"
	"github.com/AlexJJJChen/NormBench/internal/dataset"
	"github.com/AlexJJJChen/NormBench/internal/infer"
	"github.com/AlexJJJChen/NormBench/internal/llm"
	"github.com/AlexJJJChen/NormBench/internal/worker"
)

var (
	inferGoldPath string
	inferModel    string
	inferRegistry string
	inferOutPath  string
	inferWorkers  int
	inferTimeout  time.Duration
	inferNoCache  bool
	inferCacheDir string
)

// inferCmd generates a predictions file by querying a model
var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Generate predictions for the gold dataset via an LLM endpoint",
	Long: `Infer prompts a model for every provision in the gold dataset and
materializes the parsed responses as a predictions file suitable for
'normbench evaluate'.

Model aliases resolve through the registry file (--registry or the
NORMBENCH_MODEL_CONFIG environment variable); credentials come from the
environment variables the registry entry names. Responses are
checkpointed on disk, so an interrupted run resumes where it stopped.

Example:
  normbench infer --gold dataset/normbench_v1.json --model gpt-4o --out runs/gpt-4o/predictions.json
  normbench infer --gold gold.json --model deepseek-chat --workers 4 --no-cache`,
	RunE: runInfer,
}

func init() {
	rootCmd.AddCommand(inferCmd)

	inferCmd.Flags().StringVar(&inferGoldPath, "gold", "", "gold dataset path (required)")
	inferCmd.Flags().StringVar(&inferModel, "model", "", "model alias from the registry (required)")
	inferCmd.Flags().StringVar(&inferRegistry, "registry", "", "model registry file (default: $NORMBENCH_MODEL_CONFIG)")
	inferCmd.Flags().StringVar(&inferOutPath, "out", "predictions.json", "predictions output path")
	inferCmd.Flags().IntVar(&inferWorkers, "workers", 0, "inference workers (default: config)")
	inferCmd.Flags().DurationVar(&inferTimeout, "timeout", 2*time.Hour, "overall inference timeout")
	inferCmd.Flags().BoolVar(&inferNoCache, "no-cache", false, "disable response checkpointing")
	inferCmd.Flags().StringVar(&inferCacheDir, "cache-dir", "", "checkpoint directory (default: config)")

	_ = inferCmd.MarkFlagRequired("gold")
	_ = inferCmd.MarkFlagRequired("model")
}

func runInfer(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), inferTimeout)
	defer cancel()

	cfg := loadConfig()
	workers := cfg.Concurrency.Workers
	if inferWorkers > 0 {
		workers = inferWorkers
	}

	registry, err := llm.LoadRegistry(inferRegistry)
	if err != nil {
		return err
	}
	resolved, err := registry.Resolve(inferModel)
	if err != nil {
		return err
	}

	limiter := worker.NewLimiter(cfg.LLM.RequestsPerSec, cfg.LLM.Burst)
	client := llm.NewClient(resolved, cfg.LLM, limiter)

	var store cache.Cache
	if cfg.Cache.Enabled && !inferNoCache {
		dir := cfg.Cache.Dir
		if inferCacheDir != "" {
			dir = inferCacheDir
		}
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolve cache dir: %w", err)
			}
			dir = filepath.Join(home, ".normbench", "cache")
		}
		store = cache.NewLayeredCache(cfg.Cache.TTL, dir, cfg.Cache.TTL)
	}

	ds, err := dataset.LoadGold(inferGoldPath)
	if err != nil {
		return fmt.Errorf("gold dataset: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Model:      %s (%s)\n", resolved.Alias, resolved.Model)
		fmt.Fprintf(os.Stderr, "Provisions: %d\n", len(ds.Provisions))
		fmt.Fprintf(os.Stderr, "Workers:    %d\n\n", workers)
	}

	runner := &infer.Runner{
		Client:  client,
		Alias:   resolved.Alias,
		Store:   store,
		TTL:     cfg.Cache.TTL,
		Workers: workers,
	}
	var done atomic.Int64
	runner.Progress = func(ruleID string, cached bool, err error) {
		n := done.Add(1)
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "[%d/%d] %s FAILED: %v\n", n, len(ds.Provisions), ruleID, err)
		case verbose && cached:
			fmt.Fprintf(os.Stderr, "[%d/%d] %s (cached)\n", n, len(ds.Provisions), ruleID)
		case verbose:
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", n, len(ds.Provisions), ruleID)
		}
	}

	records, err := runner.Run(ctx, ds)
	if err != nil {
		return fmt.Errorf("inference aborted: %w", err)
	}
	if err := infer.WritePredictions(inferOutPath, records); err != nil {
		return err
	}

	fmt.Printf("Wrote %d prediction records to %s\n", len(records), inferOutPath)
	return nil
}
