package eval

import "github.com/AlexJJJChen/NormBench/internal/model"

// Aggregate folds per-sample counts into corpus totals. It is a plain sum,
// so shuffling or sharding the samples never changes the result; derived
// rates come from dividing the summed counts afterwards.
func Aggregate(samples []model.SampleScore) model.Counts {
	var total model.Counts
	for i := range samples {
		total.Add(samples[i].Counts)
	}
	return total
}
