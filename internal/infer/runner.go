package infer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/AlexJJJChen/NormBench/internal/cache"
	"github.com/AlexJJJChen/NormBench/internal/dataset"
	"github.com/AlexJJJChen/NormBench/internal/llm"
	"github.com/AlexJJJChen/NormBench/internal/schema"
	"github.com/AlexJJJChen/NormBench/internal/worker"
)

// Runner queries a model for every provision in a dataset and materializes
// the parsed responses as a flat prediction array.
type Runner struct {
	Client  llm.Completer
	Alias   string
	Store   cache.Cache
	TTL     time.Duration
	Workers int

	// Progress, when set, is called once per provision as it completes.
	Progress func(ruleID string, cached bool, err error)
}

// ProvisionOutput is the materialized result for one provision. Rule-level
// failures are recorded, not raised: the evaluator scores them as
// unparseable.
type ProvisionOutput struct {
	RuleID  string
	Records []interface{}
	Cached  bool
	Err     error
}

type inferJob struct {
	r    *Runner
	prov dataset.Provision
}

func (j *inferJob) Execute(ctx context.Context) worker.Result {
	out := j.r.infer(ctx, j.prov)
	if j.r.Progress != nil {
		j.r.Progress(out.RuleID, out.Cached, out.Err)
	}
	return out
}

// GetError returns the provision-level failure, if any
func (o *ProvisionOutput) GetError() error { return o.Err }

// Run fans provisions out across the worker pool and returns the combined
// prediction records in rule-id order.
func (r *Runner) Run(ctx context.Context, ds *dataset.Dataset) ([]interface{}, error) {
	pool := worker.NewPool(r.Workers)
	pool.Start()
	defer pool.Shutdown()

	go func() {
		<-ctx.Done()
		pool.Shutdown()
	}()

	for _, prov := range ds.Provisions {
		pool.Submit(&inferJob{r: r, prov: prov})
	}

	outputs := make([]*ProvisionOutput, 0, len(ds.Provisions))
	for _, res := range pool.Wait() {
		outputs = append(outputs, res.(*ProvisionOutput))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].RuleID < outputs[j].RuleID })

	var records []interface{}
	for _, out := range outputs {
		records = append(records, out.Records...)
	}
	return records, nil
}

// infer produces the records for one provision, consulting the checkpoint
// store before touching the model.
func (r *Runner) infer(ctx context.Context, prov dataset.Provision) *ProvisionOutput {
	out := &ProvisionOutput{RuleID: prov.RuleID}
	prompt := BuildPrompt(prov)
	key := cache.ResponseKey(r.Alias, prov.RuleID, prompt)

	var raw string
	if r.Store != nil {
		if data, found := r.Store.Get(key); found {
			raw = string(data)
			out.Cached = true
		}
	}
	if raw == "" {
		resp, err := r.Client.Complete(ctx, SystemPrompt, prompt)
		if err != nil {
			out.Err = fmt.Errorf("infer %s: %w", prov.RuleID, err)
			out.Records = []interface{}{failureRecord(prov.RuleID, err.Error(), "")}
			return out
		}
		raw = resp
		if r.Store != nil {
			if err := r.Store.Set(key, []byte(raw), r.TTL); err != nil {
				fmt.Fprintf(os.Stderr, "checkpoint write failed for %s: %v\n", prov.RuleID, err)
			}
		}
	}

	out.Records = materialize(prov.RuleID, raw)
	return out
}

// materialize turns one raw model response into prediction records. Parse
// failures become explicit failure records so the run output stays
// complete and the evaluator can count them.
func materialize(ruleID, raw string) []interface{} {
	parsed := schema.ParseModelOutput(raw)
	if parsed.ParseError != "" {
		return []interface{}{failureRecord(ruleID, parsed.ParseError, raw)}
	}

	var units []interface{}
	switch v := parsed.Value.(type) {
	case []interface{}:
		units = v
	case map[string]interface{}:
		units = []interface{}{v}
	default:
		return []interface{}{failureRecord(ruleID, "final_block_not_object_or_array", raw)}
	}

	records := make([]interface{}, 0, len(units))
	for _, u := range units {
		if m, ok := u.(map[string]interface{}); ok {
			m["rule_id"] = ruleID
			records = append(records, m)
			continue
		}
		records = append(records, failureRecord(ruleID, "unit_not_an_object", ""))
	}
	return records
}

func failureRecord(ruleID, parseErr, raw string) map[string]interface{} {
	rec := map[string]interface{}{
		"rule_id":     ruleID,
		"parse_error": parseErr,
	}
	if raw != "" {
		rec["raw_output"] = raw
	}
	return rec
}

// WritePredictions saves the flat prediction array as JSON
func WritePredictions(path string, records []interface{}) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal predictions: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	return nil
}
