// Sanity program that scores a gold dataset against itself. Every
// alignment-based metric must come out at 1.0; anything lower points at a
// dataset problem or a scoring regression.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/AlexJJJChen/NormBench/internal/align"
	"github.com/AlexJJJChen/NormBench/internal/dataset"
	"github.com/AlexJJJChen/NormBench/internal/eval"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: normbench-selfcheck <gold-dataset.json>")
		os.Exit(2)
	}

	ds, err := dataset.LoadGold(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "load gold: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d provisions from %s\n\n", len(ds.Provisions), ds.Path)

	// Re-feed the gold units as predictions.
	preds := &dataset.Predictions{ByRule: make(map[string][]interface{})}
	for _, prov := range ds.Provisions {
		for i := range prov.Units {
			data, err := json.Marshal(&prov.Units[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "marshal %s: %v\n", prov.RuleID, err)
				os.Exit(1)
			}
			var m map[string]interface{}
			if err := json.Unmarshal(data, &m); err != nil {
				fmt.Fprintf(os.Stderr, "reshape %s: %v\n", prov.RuleID, err)
				os.Exit(1)
			}
			m["rule_id"] = prov.RuleID
			preds.ByRule[prov.RuleID] = append(preds.ByRule[prov.RuleID], m)
		}
	}

	res := eval.NewRunner(align.DefaultThresholds(), 4).Run(context.Background(), ds, preds)
	rates := res.Counts.Rates()

	failed := false
	check := func(name string, got float64) {
		status := "ok"
		if got < 0.9999 {
			status = "FAIL"
			failed = true
		}
		fmt.Printf("  %-22s %.4f  %s\n", name, got, status)
	}
	check("unit_f1", rates.UnitF1)
	check("branch_f1", rates.BranchF1)
	check("structural_f1", rates.StructuralF1)
	check("norm_kind_accuracy", rates.NormKindAccuracy)
	check("leaf_tag_f1", rates.LeafTagF1)
	check("effect_overlap", rates.EffectOverlapAccuracy)
	check("effect_exact", rates.EffectExactAccuracy)

	if res.Counts.SpanViolations > 0 {
		fmt.Printf("\n%d span violations in gold annotations\n", res.Counts.SpanViolations)
		failed = true
	}
	if failed {
		fmt.Println("\nSelf-check FAILED")
		os.Exit(1)
	}
	fmt.Println("\nSelf-check passed")
}
