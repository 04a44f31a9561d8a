package eval

import (
	"context"
	"sort"

	"github.com/AlexJJJChen/NormBench/internal/align"
	"github.com/AlexJJJChen/NormBench/internal/dataset"
	"github.com/AlexJJJChen/NormBench/internal/model"
	"github.com/AlexJJJChen/NormBench/internal/schema"
	"github.com/AlexJJJChen/NormBench/internal/worker"
)

// CorpusResult is the outcome of evaluating every provision in a dataset.
// Samples and Fixed are sorted by rule id so output files are stable across
// runs regardless of worker scheduling.
type CorpusResult struct {
	Counts  model.Counts
	Samples []model.SampleScore
	Fixed   []*schema.Record

	// UnkeyedPredictions are prediction records that named no provision
	// and could not be scored against anything.
	UnkeyedPredictions int
}

// Runner evaluates a corpus on a bounded worker pool
type Runner struct {
	eval    *Evaluator
	workers int
}

// NewRunner creates a corpus runner
func NewRunner(th align.Thresholds, workers int) *Runner {
	return &Runner{eval: New(th), workers: workers}
}

type sampleJob struct {
	eval  *Evaluator
	prov  dataset.Provision
	preds []interface{}
}

type sampleDone struct {
	res SampleResult
}

func (j *sampleJob) Execute(ctx context.Context) worker.Result {
	if ctx.Err() != nil {
		return &sampleDone{}
	}
	return &sampleDone{res: j.eval.EvaluateSample(j.prov, j.preds)}
}

// GetError always returns nil: evaluation failures are scored, not raised
func (d *sampleDone) GetError() error { return nil }

// Run scores every provision against its predictions. Each provision is an
// independent job; the fold over samples is a commutative count sum, so
// completion order does not matter.
func (r *Runner) Run(ctx context.Context, ds *dataset.Dataset, preds *dataset.Predictions) *CorpusResult {
	pool := worker.NewPool(r.workers)
	pool.Start()
	defer pool.Shutdown()

	go func() {
		<-ctx.Done()
		pool.Shutdown()
	}()

	for _, prov := range ds.Provisions {
		pool.Submit(&sampleJob{eval: r.eval, prov: prov, preds: preds.ByRule[prov.RuleID]})
	}

	out := &CorpusResult{UnkeyedPredictions: preds.Unkeyed}
	for _, res := range pool.Wait() {
		done := res.(*sampleDone)
		if done.res.Score.RuleID == "" {
			continue // cancelled before execution
		}
		out.Samples = append(out.Samples, done.res.Score)
		out.Fixed = append(out.Fixed, done.res.Fixed...)
	}

	sort.Slice(out.Samples, func(i, j int) bool { return out.Samples[i].RuleID < out.Samples[j].RuleID })
	sort.Slice(out.Fixed, func(i, j int) bool { return out.Fixed[i].Key() < out.Fixed[j].Key() })
	out.Counts = Aggregate(out.Samples)
	return out
}
