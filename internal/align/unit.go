package align

import (
	"github.com/AlexJJJChen/NormBench/internal/model"
)

// AlignUnits pairs predicted units with gold units for one provision.
// The candidate score is the character n-gram Jaccard between unit texts;
// alignment is greedy maximum-weight matching with a fixed tie-break and a
// minimum-overlap threshold. Units left unmatched on the predicted side
// are false positives; unmatched gold units are false negatives and forfeit
// credit for all of their branches.
func AlignUnits(pred, gold []model.StructuredUnit, th Thresholds) []Pair {
	if len(pred) == 0 || len(gold) == 0 {
		return nil
	}
	weights := make([][]float64, len(pred))
	for i := range pred {
		weights[i] = make([]float64, len(gold))
		for j := range gold {
			weights[i][j] = NGramJaccard(pred[i].UnitText, gold[j].UnitText)
		}
	}
	return Greedy(weights, th.UnitOverlap)
}
