package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AlexJJJChen/NormBench/internal/align"
	"github.com/AlexJJJChen/NormBench/internal/dataset"
	"github.com/AlexJJJChen/NormBench/internal/eval"
	"github.com/AlexJJJChen/NormBench/internal/model"
)

var (
	evalGoldPath string
	evalPredPath string
	evalOutDir   string
	evalWorkers  int
	evalTimeout  time.Duration
	unitOverlap  float64
	leafText     float64
	opPenalty    float64
	branchPrune  float64
)

// evaluateCmd scores a predictions file against the gold dataset
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a predictions file against the gold dataset",
	Long: `Evaluate aligns predicted structured units with gold annotations and
reports precision/recall/F1 at unit, branch, leaf and effect granularity.

Malformed predictions are repaired where possible and penalized where not;
a malformed gold dataset aborts the run.

Example:
  normbench evaluate --gold dataset/normbench_v1.json --pred runs/gpt-4o/predictions.json
  normbench evaluate --gold gold.json --pred preds.json --out runs/gpt-4o --workers 16`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evalGoldPath, "gold", "", "gold dataset path (required)")
	evaluateCmd.Flags().StringVar(&evalPredPath, "pred", "", "predictions file path (required)")
	evaluateCmd.Flags().StringVar(&evalOutDir, "out", "", "output directory (default: config output dir)")
	evaluateCmd.Flags().IntVar(&evalWorkers, "workers", 0, "evaluation workers (default: config)")
	evaluateCmd.Flags().DurationVar(&evalTimeout, "timeout", 10*time.Minute, "overall evaluation timeout")
	evaluateCmd.Flags().Float64Var(&unitOverlap, "unit-overlap", 0, "unit alignment overlap threshold override")
	evaluateCmd.Flags().Float64Var(&leafText, "leaf-text", 0, "leaf text similarity threshold override")
	evaluateCmd.Flags().Float64Var(&opPenalty, "op-penalty", 0, "AND/OR mismatch penalty override")
	evaluateCmd.Flags().Float64Var(&branchPrune, "branch-prune", 0, "branch candidate prune threshold override")

	_ = evaluateCmd.MarkFlagRequired("gold")
	_ = evaluateCmd.MarkFlagRequired("pred")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	cfg := loadConfig()
	th := thresholdsFromConfig(cfg.Eval)
	applyThresholdOverrides(cmd, &th)
	workers := cfg.Concurrency.Workers
	if evalWorkers > 0 {
		workers = evalWorkers
	}
	outDir := cfg.Output.Dir
	if evalOutDir != "" {
		outDir = evalOutDir
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Gold:    %s\n", evalGoldPath)
		fmt.Fprintf(os.Stderr, "Pred:    %s\n", evalPredPath)
		fmt.Fprintf(os.Stderr, "Out:     %s\n", outDir)
		fmt.Fprintf(os.Stderr, "Workers: %d\n\n", workers)
	}

	ds, err := dataset.LoadGold(evalGoldPath)
	if err != nil {
		return fmt.Errorf("gold dataset: %w", err)
	}
	preds, err := dataset.LoadPredictions(evalPredPath)
	if err != nil {
		return err
	}
	if verbose && preds.Unkeyed > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d prediction records name no provision\n", preds.Unkeyed)
	}

	res := eval.NewRunner(th, workers).Run(ctx, ds, preds)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("evaluation aborted: %w", err)
	}
	if err := eval.NewWriter(outDir).WriteAll(res, ds, th); err != nil {
		return err
	}

	printHeadline(res, outDir)
	return nil
}

func printHeadline(res *eval.CorpusResult, outDir string) {
	headline := res.Counts.Headline()
	keys := make([]string, 0, len(headline))
	for k := range headline {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("Evaluated %d provisions (%d parse ok, %d unrepairable records)\n",
		res.Counts.Provisions, res.Counts.ParseOK, res.Counts.Unrepairable)
	for _, k := range keys {
		fmt.Printf("  %-22s %.4f\n", k, headline[k])
	}
	fmt.Printf("Reports written to %s\n", outDir)
}

// applyThresholdOverrides layers explicitly-set threshold flags over the
// configured values. Flags().Changed distinguishes an unset flag from one
// set to zero, so e.g. --op-penalty 0 disables the penalty entirely.
func applyThresholdOverrides(cmd *cobra.Command, th *align.Thresholds) {
	if cmd.Flags().Changed("unit-overlap") {
		th.UnitOverlap = unitOverlap
	}
	if cmd.Flags().Changed("leaf-text") {
		th.LeafText = leafText
	}
	if cmd.Flags().Changed("op-penalty") {
		th.OpMismatchPenalty = opPenalty
	}
	if cmd.Flags().Changed("branch-prune") {
		th.BranchPrune = branchPrune
	}
}

// thresholdsFromConfig maps the config block onto alignment thresholds
func thresholdsFromConfig(cfg model.EvalConfig) align.Thresholds {
	th := align.DefaultThresholds()
	if cfg.UnitOverlapThreshold > 0 {
		th.UnitOverlap = cfg.UnitOverlapThreshold
	}
	if cfg.LeafTextThreshold > 0 {
		th.LeafText = cfg.LeafTextThreshold
	}
	if cfg.OpMismatchPenalty > 0 {
		th.OpMismatchPenalty = cfg.OpMismatchPenalty
	}
	if cfg.BranchPruneThreshold > 0 {
		th.BranchPrune = cfg.BranchPruneThreshold
	}
	return th
}
