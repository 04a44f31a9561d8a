package infer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AlexJJJChen/NormBench/internal/cache"
	"github.com/AlexJJJChen/NormBench/internal/dataset"
)

// scriptedCompleter returns canned responses per rule id, extracted from
// the user prompt.
type scriptedCompleter struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	calls     int
}

func (c *scriptedCompleter) Complete(_ context.Context, _, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	for ruleID, resp := range c.responses {
		if strings.Contains(user, ruleID) {
			return resp, nil
		}
	}
	return "", errors.New("no scripted response")
}

func (c *scriptedCompleter) ModelName() string { return "scripted" }

func (c *scriptedCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func twoProvisionDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Provisions: []dataset.Provision{
			{RuleID: "law1-art1", RuleText: "第一条文本"},
			{RuleID: "law1-art2", RuleText: "第二条文本"},
		},
	}
}

func TestMaterialize(t *testing.T) {
	t.Run("array of units", func(t *testing.T) {
		raw := `<final>[{"unit_id": "U1"}, {"unit_id": "U2"}]</final>`
		recs := materialize("r1", raw)
		if len(recs) != 2 {
			t.Fatalf("records = %d, want 2", len(recs))
		}
		for _, rec := range recs {
			m := rec.(map[string]interface{})
			if m["rule_id"] != "r1" {
				t.Errorf("rule_id not injected: %v", m)
			}
		}
	})

	t.Run("single object", func(t *testing.T) {
		recs := materialize("r1", `<final>{"unit_id": "U1"}</final>`)
		if len(recs) != 1 {
			t.Fatalf("records = %d, want 1", len(recs))
		}
	})

	t.Run("missing frame", func(t *testing.T) {
		recs := materialize("r1", "thinking out loud, no answer")
		if len(recs) != 1 {
			t.Fatalf("records = %d, want 1 failure record", len(recs))
		}
		m := recs[0].(map[string]interface{})
		if m["parse_error"] != "missing_final_block" {
			t.Errorf("parse_error = %v", m["parse_error"])
		}
		if m["raw_output"] == "" {
			t.Error("failure record must keep the raw output")
		}
	})

	t.Run("scalar final block", func(t *testing.T) {
		recs := materialize("r1", `<final>42</final>`)
		m := recs[0].(map[string]interface{})
		if m["parse_error"] != "final_block_not_object_or_array" {
			t.Errorf("parse_error = %v", m["parse_error"])
		}
	})
}

func TestRunner_Run(t *testing.T) {
	client := &scriptedCompleter{responses: map[string]string{
		"law1-art1": `<final>[{"unit_id": "U1"}]</final>`,
		"law1-art2": `<final>[{"unit_id": "U1"}, {"unit_id": "U2"}]</final>`,
	}}
	r := &Runner{Client: client, Alias: "scripted", Workers: 2}
	records, err := r.Run(context.Background(), twoProvisionDataset())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	// Output is ordered by rule id regardless of worker completion order.
	first := records[0].(map[string]interface{})
	if first["rule_id"] != "law1-art1" {
		t.Errorf("first record rule_id = %v", first["rule_id"])
	}
}

func TestRunner_CallFailureBecomesRecord(t *testing.T) {
	client := &scriptedCompleter{err: errors.New("upstream 500")}
	var progressErrs int
	r := &Runner{
		Client: client, Alias: "scripted", Workers: 1,
		Progress: func(_ string, _ bool, err error) {
			if err != nil {
				progressErrs++
			}
		},
	}
	records, err := r.Run(context.Background(), twoProvisionDataset())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want one failure record per provision", len(records))
	}
	for _, rec := range records {
		m := rec.(map[string]interface{})
		if m["parse_error"] == nil || m["parse_error"] == "" {
			t.Errorf("failure record missing parse_error: %v", m)
		}
	}
	if progressErrs != 2 {
		t.Errorf("progress error callbacks = %d, want 2", progressErrs)
	}
}

func TestRunner_CheckpointSkipsModel(t *testing.T) {
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	client := &scriptedCompleter{responses: map[string]string{
		"law1-art1": `<final>[{"unit_id": "U1"}]</final>`,
		"law1-art2": `<final>[{"unit_id": "U1"}]</final>`,
	}}
	r := &Runner{Client: client, Alias: "scripted", Store: store, TTL: time.Minute, Workers: 1}
	ds := twoProvisionDataset()

	if _, err := r.Run(context.Background(), ds); err != nil {
		t.Fatal(err)
	}
	if client.callCount() != 2 {
		t.Fatalf("cold run calls = %d, want 2", client.callCount())
	}
	if _, err := r.Run(context.Background(), ds); err != nil {
		t.Fatal(err)
	}
	if client.callCount() != 2 {
		t.Errorf("warm run re-queried the model: %d calls", client.callCount())
	}
}

func TestBuildPrompt(t *testing.T) {
	prov := dataset.Provision{
		RuleID:          "law1-art38",
		LawTitle:        "中华人民共和国劳动合同法",
		ArticleNumber:   "第三十八条",
		RuleText:        "用人单位应当按月足额支付劳动者的劳动报酬。",
		FullArticleText: "完整条文上下文。",
	}
	p := BuildPrompt(prov)
	for _, want := range []string{prov.RuleID, prov.LawTitle, prov.ArticleNumber, prov.RuleText, prov.FullArticleText} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestWritePredictions(t *testing.T) {
	path := t.TempDir() + "/predictions.json"
	records := []interface{}{map[string]interface{}{"rule_id": "r1", "unit_id": "U1"}}
	if err := WritePredictions(path, records); err != nil {
		t.Fatal(err)
	}
	preds, err := dataset.LoadPredictions(path)
	if err != nil {
		t.Fatalf("written predictions do not load back: %v", err)
	}
	if len(preds.ByRule["r1"]) != 1 {
		t.Errorf("roundtrip = %+v", preds.ByRule)
	}
}
