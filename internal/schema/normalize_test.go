package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/AlexJJJChen/NormBench/internal/model"
)

func mustParse(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("test input is not valid JSON: %v", err)
	}
	return v
}

func repairCodes(repairs []model.Repair) map[string]int {
	out := make(map[string]int)
	for _, r := range repairs {
		out[r.Code]++
	}
	return out
}

func TestNormalizeRuleID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"民法典-第一千条", "民法典-第一千条"},
		{"民法典-第一千条|", "民法典-第一千条"},
		{"  rule-7|  ", "rule-7"},
		{"rule-7||", "rule-7"},
	}
	for _, tt := range tests {
		if got := NormalizeRuleID(tt.in); got != tt.want {
			t.Errorf("NormalizeRuleID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeRecord_CleanInput(t *testing.T) {
	raw := mustParse(t, `{
		"rule_id": "r1", "unit_id": "U1", "unit_text": "甲应当乙",
		"branches": [{
			"branch_id": "B1",
			"anchor": {"text": "应当", "occurrence": 1},
			"norm_kind": "OBLIGATION",
			"conditions": {"op": "AND", "items": [
				{"leaf_id": "B1.C1", "tag": "主体", "text": "甲"}
			]},
			"effects": [{"effect_id": "B1.E1", "effect_text": "乙"}]
		}]
	}`)
	rec, repairs, err := NormalizeRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repairs) != 0 {
		t.Errorf("clean input should need no repairs, got %v", repairs)
	}
	if rec.Key() != "r1#U1" {
		t.Errorf("Key() = %q", rec.Key())
	}
	b := rec.Unit.Branches[0]
	if b.NormKind != model.NormObligation || b.Anchor.Text != "应当" {
		t.Errorf("branch not preserved: %+v", b)
	}
}

func TestNormalizeRecord_Unrepairable(t *testing.T) {
	cases := []interface{}{
		"just a string",
		mustParse(t, `[1, 2, 3]`),
		mustParse(t, `{"unit_text": "no identity"}`),
		mustParse(t, `{"rule_id": "r1"}`),
	}
	for i, raw := range cases {
		if _, _, err := NormalizeRecord(raw); !errors.Is(err, ErrUnrepairable) {
			t.Errorf("case %d: expected ErrUnrepairable, got %v", i, err)
		}
	}
}

func TestNormalizeRecord_UnitKeyFallback(t *testing.T) {
	raw := mustParse(t, `{"unit_key": "r9|#U2", "unit_text": "x", "branches": []}`)
	rec, _, err := NormalizeRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.RuleID != "r9" || rec.Unit.UnitID != "U2" {
		t.Errorf("got %q / %q", rec.RuleID, rec.Unit.UnitID)
	}
}

func TestNormalizeRecord_UnwrapStructure(t *testing.T) {
	raw := mustParse(t, `{
		"rule_id": "r1", "unit_id": "U1", "unit_text": "text",
		"structure": {
			"branches": [{
				"anchor": {"text": "text"},
				"norm_kind": "PROHIBITION",
				"conditions": {"op": "OR", "items": [{"tag": "情节", "text": "text"}]}
			}]
		}
	}`)
	rec, repairs, err := NormalizeRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	codes := repairCodes(repairs)
	if codes[model.RepairUnwrappedStructure] != 1 {
		t.Errorf("expected one unwrap repair, got %v", codes)
	}
	if len(rec.Unit.Branches) != 1 || rec.Unit.Branches[0].NormKind != model.NormProhibition {
		t.Errorf("inner branches lost: %+v", rec.Unit)
	}
}

func TestNormalizeRecord_DropsUnknownAndExceptions(t *testing.T) {
	raw := mustParse(t, `{
		"rule_id": "r1", "unit_id": "U1", "unit_text": "t",
		"confidence": 0.9,
		"exceptions": ["never"],
		"branches": [{
			"anchor": {"text": "t"}, "norm_kind": "OTHER",
			"conditions": {"op": "AND", "items": [{"tag": "行为", "text": "t"}]},
			"exceptions": []
		}]
	}`)
	_, repairs, err := NormalizeRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	codes := repairCodes(repairs)
	if codes[model.RepairForbiddenExceptions] != 2 {
		t.Errorf("expected two forbidden-exceptions repairs, got %v", codes)
	}
	if codes[model.RepairDroppedKey] == 0 {
		t.Errorf("expected the unknown confidence key to be reported, got %v", codes)
	}
}

func TestNormalizeRecord_EmptyConditionsFix(t *testing.T) {
	raw := mustParse(t, `{
		"rule_id": "r1", "unit_id": "U1", "unit_text": "t",
		"branches": [{"anchor": {"text": "t"}, "norm_kind": "PERMISSION", "conditions": "garbage"}]
	}`)
	rec, repairs, err := NormalizeRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := rec.Unit.Branches[0]
	if b.Conditions == nil || b.Conditions.Group == nil || b.Conditions.Group.Op != model.OpAnd || len(b.Conditions.Group.Items) != 0 {
		t.Fatalf("expected empty AND subtree, got %+v", b.Conditions)
	}
	if b.Notes != "schema_fix:empty_conditions" {
		t.Errorf("notes = %q", b.Notes)
	}
	if repairCodes(repairs)[model.RepairEmptyConditions] != 1 {
		t.Errorf("missing empty_conditions repair: %v", repairs)
	}
}

func TestNormalizeRecord_FlattenSameOp(t *testing.T) {
	raw := mustParse(t, `{
		"rule_id": "r1", "unit_id": "U1", "unit_text": "t",
		"branches": [{
			"anchor": {"text": "t"}, "norm_kind": "OBLIGATION",
			"conditions": {"op": "AND", "items": [
				{"tag": "主体", "text": "a"},
				{"op": "AND", "items": [{"tag": "行为", "text": "b"}, {"tag": "情节", "text": "c"}]}
			]}
		}]
	}`)
	rec, repairs, err := NormalizeRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root := rec.Unit.Branches[0].Conditions
	if len(root.Group.Items) != 3 {
		t.Fatalf("expected 3 flattened children, got %d", len(root.Group.Items))
	}
	for _, it := range root.Group.Items {
		if it.Leaf == nil {
			t.Errorf("expected all children flattened to leaves")
		}
	}
	if repairCodes(repairs)[model.RepairFlattenedOp] == 0 {
		t.Errorf("missing flatten repair: %v", repairs)
	}
}

func TestNormalizeRecord_MergeDuplicateLeaves(t *testing.T) {
	raw := mustParse(t, `{
		"rule_id": "r1", "unit_id": "U1", "unit_text": "t",
		"branches": [{
			"anchor": {"text": "t"}, "norm_kind": "OBLIGATION",
			"conditions": {"op": "OR", "items": [
				{"tag": "情节", "text": "情节甲"},
				{"tag": "情节", "text": " 情节甲 "},
				{"tag": "情节", "text": "情节乙"}
			]}
		}]
	}`)
	rec, repairs, err := NormalizeRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(rec.Unit.Branches[0].Conditions.Group.Items); got != 2 {
		t.Errorf("expected 2 leaves after dedup, got %d", got)
	}
	if repairCodes(repairs)[model.RepairMergedDuplicates] != 1 {
		t.Errorf("missing merge repair: %v", repairs)
	}
}

func TestNormalizeRecord_CompressLargeEnumRun(t *testing.T) {
	items := ""
	for i := 0; i < 12; i++ {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"tag": "情节", "text": "情节%d"}`, i)
	}
	raw := mustParse(t, `{
		"rule_id": "r1", "unit_id": "U1", "unit_text": "t",
		"branches": [{
			"anchor": {"text": "t"}, "norm_kind": "OBLIGATION",
			"conditions": {"op": "OR", "items": [`+items+`]}
		}]
	}`)
	rec, repairs, err := NormalizeRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaves := rec.Unit.Branches[0].Conditions.Leaves()
	if len(leaves) != 1 {
		t.Fatalf("expected one compressed leaf, got %d", len(leaves))
	}
	if leaves[0].Text != "compressed:情节" || leaves[0].Tag != "情节" {
		t.Errorf("compressed leaf = %+v", leaves[0])
	}
	if !rec.Unit.Meta.CompressedEnum {
		t.Error("meta.compressed_enum not set")
	}
	if repairCodes(repairs)[model.RepairCompressedEnum] != 1 {
		t.Errorf("missing compression repair: %v", repairs)
	}
}

func TestNormalizeRecord_RenumbersIDs(t *testing.T) {
	raw := mustParse(t, `{
		"rule_id": "r1", "unit_id": "U1", "unit_text": "甲乙",
		"branches": [
			{"branch_id": "B7", "anchor": {"text": "甲"}, "norm_kind": "OBLIGATION",
			 "conditions": {"op": "AND", "items": [{"leaf_id": "X", "tag": "主体", "text": "甲"}]},
			 "effects": [{"effect_id": "wrong", "effect_text": "乙"}]},
			{"branch_id": "B7", "anchor": {"text": "乙"}, "norm_kind": "OTHER",
			 "conditions": {"op": "AND", "items": [{"tag": "行为", "text": "乙"}]}}
		]
	}`)
	rec, repairs, err := NormalizeRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repairCodes(repairs)[model.RepairRenumberedIDs] != 1 {
		t.Fatalf("missing renumber repair: %v", repairs)
	}
	b := rec.Unit.Branches
	if b[0].BranchID != "B1" || b[1].BranchID != "B2" {
		t.Errorf("branch ids = %q, %q", b[0].BranchID, b[1].BranchID)
	}
	if b[0].Conditions.Leaves()[0].LeafID != "B1.C1" {
		t.Errorf("leaf id = %q", b[0].Conditions.Leaves()[0].LeafID)
	}
	if b[0].Effects[0].EffectID != "B1.E1" {
		t.Errorf("effect id = %q", b[0].Effects[0].EffectID)
	}
}

func TestNormalizeRecord_ReordersBranchesByAnchor(t *testing.T) {
	raw := mustParse(t, `{
		"rule_id": "r1", "unit_id": "U1", "unit_text": "先甲后乙",
		"branches": [
			{"branch_id": "B1", "anchor": {"text": "乙"}, "norm_kind": "OTHER",
			 "conditions": {"op": "AND", "items": [{"tag": "行为", "text": "乙"}]}},
			{"branch_id": "B2", "anchor": {"text": "甲"}, "norm_kind": "OTHER",
			 "conditions": {"op": "AND", "items": [{"tag": "行为", "text": "甲"}]}}
		]
	}`)
	rec, repairs, err := NormalizeRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repairCodes(repairs)[model.RepairReorderedBranches] != 1 {
		t.Fatalf("missing reorder repair: %v", repairs)
	}
	if rec.Unit.Branches[0].Anchor.Text != "甲" {
		t.Errorf("branches not reordered: %+v", rec.Unit.Branches)
	}
}

// Repair must be idempotent: normalizing an already-normalized unit again
// must change nothing and report nothing.
func TestNormalizeRecord_Idempotent(t *testing.T) {
	raw := mustParse(t, `{
		"rule_id": "r1|", "unit_id": "U1", "unit_text": "先甲后乙",
		"extra": true,
		"branches": [
			{"anchor": {"text": "乙"}, "norm_kind": "obligation",
			 "conditions": {"op": "AND", "items": [
				{"tag": "行为", "text": "乙"},
				{"op": "AND", "items": [{"tag": "情节", "text": "丙"}]}
			 ]},
			 "effects": [{"effect_text": "后果"}]},
			{"anchor": {"text": "甲"}, "norm_kind": "OTHER", "conditions": null}
		]
	}`)
	rec1, repairs1, err := NormalizeRecord(raw)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if len(repairs1) == 0 {
		t.Fatal("first pass should have repaired something")
	}

	// Round-trip through JSON the way a fixed-predictions file would.
	data, err := json.Marshal(&rec1.Unit)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var again map[string]interface{}
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	again["rule_id"] = rec1.RuleID

	rec2, repairs2, err := NormalizeRecord(again)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(repairs2) != 0 {
		t.Errorf("second pass should be clean, got %v", repairs2)
	}

	d1, _ := json.Marshal(&rec1.Unit)
	d2, _ := json.Marshal(&rec2.Unit)
	if string(d1) != string(d2) {
		t.Errorf("normalization not idempotent:\n%s\n%s", d1, d2)
	}
}
