package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const goldPayload = `{
  "format_version": "st2.v3",
  "created_at": "2025-11-02T08:00:00Z",
  "dataset_id": "normbench-dev",
  "items": [
    {
      "input": {
        "rule_id": "law1-art38|",
        "law_title": "中华人民共和国劳动合同法",
        "article_number": "第三十八条",
        "rule_text": "用人单位应当按月足额支付劳动者的劳动报酬。"
      },
      "gold": {
        "units": [
          {
            "unit_id": "U1",
            "unit_text": "用人单位应当按月足额支付劳动者的劳动报酬。",
            "branches": [
              {
                "branch_id": "B1",
                "anchor": {"text": "应当按月足额支付", "occurrence": 1},
                "norm_kind": "OBLIGATION",
                "conditions": {
                  "op": "AND",
                  "items": [
                    {"leaf_id": "B1.C1", "tag": "主体", "text": "用人单位"},
                    {"leaf_id": "B1.C2", "tag": "行为", "text": "按月足额支付劳动者的劳动报酬"}
                  ]
                },
                "effects": [
                  {"effect_id": "B1.E1", "effect_text": "按月足额支付劳动者的劳动报酬"}
                ],
                "depends_on_units": [],
                "depends_on_article_ref": [],
                "unresolved_reference": false
              }
            ],
            "meta": {}
          }
        ]
      }
    }
  ]
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadGold(t *testing.T) {
	ds, err := LoadGold(writeTemp(t, "gold.json", goldPayload))
	if err != nil {
		t.Fatalf("LoadGold: %v", err)
	}
	if ds.FormatVersion != "st2.v3" || ds.DatasetID != "normbench-dev" {
		t.Errorf("header = %q %q", ds.FormatVersion, ds.DatasetID)
	}
	if len(ds.Provisions) != 1 {
		t.Fatalf("provisions = %d, want 1", len(ds.Provisions))
	}
	p := ds.Provisions[0]
	if p.RuleID != "law1-art38" {
		t.Errorf("rule id = %q, want stripped trailing pipe", p.RuleID)
	}
	if len(p.Units) != 1 || len(p.Units[0].Branches) != 1 {
		t.Fatalf("units/branches = %d", len(p.Units))
	}
	b := p.Units[0].Branches[0]
	if b.NormKind != "OBLIGATION" || len(b.Effects) != 1 {
		t.Errorf("branch = %+v", b)
	}
	if leaves := b.Conditions.Leaves(); len(leaves) != 2 || leaves[0].Tag != "主体" {
		t.Errorf("leaves = %v", leaves)
	}
}

func TestLoadGold_RejectsSchemaViolation(t *testing.T) {
	// A branch without conditions needs the empty-AND repair, which is a
	// semantic change and therefore fatal in gold.
	bad := strings.Replace(goldPayload, `"conditions": {
                  "op": "AND",
                  "items": [
                    {"leaf_id": "B1.C1", "tag": "主体", "text": "用人单位"},
                    {"leaf_id": "B1.C2", "tag": "行为", "text": "按月足额支付劳动者的劳动报酬"}
                  ]
                },`, "", 1)
	if bad == goldPayload {
		t.Fatal("test setup: replacement did not apply")
	}
	_, err := LoadGold(writeTemp(t, "bad.json", bad))
	if err == nil {
		t.Fatal("gold with missing conditions must be rejected")
	}
	if !strings.Contains(err.Error(), "gold violates schema") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadGold_MissingRuleID(t *testing.T) {
	bad := strings.Replace(goldPayload, `"rule_id": "law1-art38|"`, `"rule_id": ""`, 1)
	if _, err := LoadGold(writeTemp(t, "bad.json", bad)); err == nil {
		t.Fatal("item without rule_id must be rejected")
	}
}

func TestLoadGold_RejectsOverdeepTree(t *testing.T) {
	// Alternating AND/OR nesting survives flattening; eight levels exceed
	// the depth bound.
	leaf := `{"leaf_id": "B1.C1", "tag": "主体", "text": "用人单位"}`
	cond := leaf
	for i := 0; i < 7; i++ {
		op := "AND"
		if i%2 == 0 {
			op = "OR"
		}
		cond = `{"op": "` + op + `", "items": [` + cond + `]}`
	}
	bad := strings.Replace(goldPayload, `"conditions": {
                  "op": "AND",
                  "items": [
                    {"leaf_id": "B1.C1", "tag": "主体", "text": "用人单位"},
                    {"leaf_id": "B1.C2", "tag": "行为", "text": "按月足额支付劳动者的劳动报酬"}
                  ]
                },`, `"conditions": `+cond+`,`, 1)
	if bad == goldPayload {
		t.Fatal("test setup: replacement did not apply")
	}
	_, err := LoadGold(writeTemp(t, "deep.json", bad))
	if err == nil {
		t.Fatal("over-deep gold tree must be rejected")
	}
	if !strings.Contains(err.Error(), "depth") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadGold_NoItems(t *testing.T) {
	if _, err := LoadGold(writeTemp(t, "empty.json", `{"format_version":"st2.v3"}`)); err == nil {
		t.Fatal("dataset without items must be rejected")
	}
}

func TestLoadPredictions(t *testing.T) {
	payload := `[
      {"rule_id": "law1-art38|", "unit_id": "U1"},
      {"rule_id": "law1-art38", "unit_id": "U2"},
      {"unit_key": "law2-art5#U1", "unit_id": "U1"},
      {"structure": {"rule_id": "law3-art9"}},
      {"unit_id": "orphan"},
      "not an object"
    ]`
	preds, err := LoadPredictions(writeTemp(t, "pred.json", payload))
	if err != nil {
		t.Fatalf("LoadPredictions: %v", err)
	}
	if got := len(preds.ByRule["law1-art38"]); got != 2 {
		t.Errorf("law1-art38 records = %d, want 2 (pipe variant folded in)", got)
	}
	if got := len(preds.ByRule["law2-art5"]); got != 1 {
		t.Errorf("unit_key fallback records = %d, want 1", got)
	}
	if got := len(preds.ByRule["law3-art9"]); got != 1 {
		t.Errorf("wrapped structure records = %d, want 1", got)
	}
	if preds.Unkeyed != 2 {
		t.Errorf("unkeyed = %d, want 2", preds.Unkeyed)
	}
}

func TestLoadPredictions_NotAnArray(t *testing.T) {
	if _, err := LoadPredictions(writeTemp(t, "pred.json", `{"rule_id": "x"}`)); err == nil {
		t.Fatal("non-array predictions must be rejected")
	}
}

func TestRecordRuleID(t *testing.T) {
	cases := []struct {
		name string
		rec  interface{}
		want string
	}{
		{"direct", map[string]interface{}{"rule_id": "a1"}, "a1"},
		{"trailing pipe", map[string]interface{}{"rule_id": "a1| "}, "a1"},
		{"unit_key", map[string]interface{}{"unit_key": "a2#U1"}, "a2"},
		{"structured wrap", map[string]interface{}{"structured": map[string]interface{}{"rule_id": "a3"}}, "a3"},
		{"none", map[string]interface{}{"unit_id": "U1"}, ""},
		{"non-object", "x", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := recordRuleID(tc.rec); got != tc.want {
				t.Errorf("recordRuleID = %q, want %q", got, tc.want)
			}
		})
	}
}
