package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AlexJJJChen/NormBench/internal/align"
	"github.com/AlexJJJChen/NormBench/internal/dataset"
	"github.com/AlexJJJChen/NormBench/internal/schema"
)

// Output file names inside the run directory
const (
	MetricsFile     = "metrics.json"
	MetricsFullFile = "metrics_full.json"
	PerSampleFile   = "per_sample.jsonl"
	FixedFile       = "structured_units_fixed.json"
)

// Writer materializes a corpus result into the run directory
type Writer struct {
	Dir string
}

// NewWriter creates a writer rooted at dir
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// WriteAll writes the headline metrics, the full metric report, the
// per-sample score log and the schema-fixed prediction copy.
func (w *Writer) WriteAll(res *CorpusResult, ds *dataset.Dataset, th align.Thresholds) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := w.writeJSON(MetricsFile, res.Counts.Headline()); err != nil {
		return err
	}
	if err := w.writeJSON(MetricsFullFile, w.fullReport(res, ds, th)); err != nil {
		return err
	}
	if err := w.writePerSample(res); err != nil {
		return err
	}
	return w.writeFixed(res.Fixed)
}

func (w *Writer) fullReport(res *CorpusResult, ds *dataset.Dataset, th align.Thresholds) map[string]interface{} {
	return map[string]interface{}{
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"dataset": map[string]interface{}{
			"path":           ds.Path,
			"dataset_id":     ds.DatasetID,
			"format_version": ds.FormatVersion,
			"provisions":     len(ds.Provisions),
		},
		"settings": map[string]interface{}{
			"unit_overlap_threshold": th.UnitOverlap,
			"leaf_text_threshold":    th.LeafText,
			"op_mismatch_penalty":    th.OpMismatchPenalty,
			"branch_prune_threshold": th.BranchPrune,
		},
		"counts":              res.Counts,
		"rates":               res.Counts.Rates(),
		"unkeyed_predictions": res.UnkeyedPredictions,
	}
}

func (w *Writer) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(w.Dir, name)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// writePerSample writes one score object per line so large runs can be
// streamed and diffed sample by sample.
func (w *Writer) writePerSample(res *CorpusResult) error {
	path := filepath.Join(w.Dir, PerSampleFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", PerSampleFile, err)
	}
	defer func() { _ = f.Close() }()

	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	for i := range res.Samples {
		if err := enc.Encode(&res.Samples[i]); err != nil {
			return fmt.Errorf("encode sample %s: %w", res.Samples[i].RuleID, err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", PerSampleFile, err)
	}
	return nil
}

// writeFixed exports the normalized prediction records in the flat array
// format, each record carrying its rule_id.
func (w *Writer) writeFixed(fixed []*schema.Record) error {
	records := make([]map[string]interface{}, 0, len(fixed))
	for _, rec := range fixed {
		data, err := json.Marshal(&rec.Unit)
		if err != nil {
			return fmt.Errorf("marshal unit %s: %w", rec.Key(), err)
		}
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("reshape unit %s: %w", rec.Key(), err)
		}
		m["rule_id"] = rec.RuleID
		records = append(records, m)
	}
	return w.writeJSON(FixedFile, records)
}
