// Package dataset loads the gold benchmark file and prediction exports.
//
// Gold is trusted input: anything that cannot be coerced into the schema
// without semantic repair is a fatal configuration error for the run.
// Predictions are untrusted and flow through the schema normalizer at
// evaluation time; this package only groups them per provision.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/AlexJJJChen/NormBench/internal/model"
	"github.com/AlexJJJChen/NormBench/internal/schema"
)

// Provision is one gold dataset item: a legal provision with its reference
// unit annotations.
type Provision struct {
	RuleID          string
	LawTitle        string
	ArticleNumber   string
	RuleText        string
	FullArticleText string
	Units           []model.StructuredUnit
}

// Dataset is the loaded gold benchmark
type Dataset struct {
	Path          string
	FormatVersion string
	CreatedAt     string
	DatasetID     string
	Provisions    []Provision
}

// goldBenignRepairs are normalizer operations that do not change gold
// semantics (id renumbering, ordering). Anything else in gold is fatal.
var goldBenignRepairs = map[string]bool{
	model.RepairRenumberedIDs:      true,
	model.RepairReorderedBranches:  true,
	model.RepairUnwrappedStructure: true,
}

// LoadGold reads and validates the released gold dataset format:
// {format_version, created_at, dataset_id, items: [{input, gold}]}.
func LoadGold(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gold dataset: %w", err)
	}
	var payload struct {
		FormatVersion string `json:"format_version"`
		CreatedAt     string `json:"created_at"`
		DatasetID     string `json:"dataset_id"`
		Items         []struct {
			Input struct {
				RuleID          string `json:"rule_id"`
				LawTitle        string `json:"law_title"`
				ArticleNumber   string `json:"article_number"`
				RuleText        string `json:"rule_text"`
				FullArticleText string `json:"full_article_text"`
			} `json:"input"`
			Gold struct {
				Units []json.RawMessage `json:"units"`
			} `json:"gold"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse gold dataset: %w", err)
	}
	if payload.Items == nil {
		return nil, fmt.Errorf("gold dataset has no items: %s", path)
	}

	ds := &Dataset{
		Path:          path,
		FormatVersion: payload.FormatVersion,
		CreatedAt:     payload.CreatedAt,
		DatasetID:     payload.DatasetID,
	}
	for i, it := range payload.Items {
		ruleID := schema.NormalizeRuleID(it.Input.RuleID)
		if ruleID == "" {
			return nil, fmt.Errorf("gold item %d has no rule_id", i)
		}
		prov := Provision{
			RuleID:          ruleID,
			LawTitle:        it.Input.LawTitle,
			ArticleNumber:   it.Input.ArticleNumber,
			RuleText:        it.Input.RuleText,
			FullArticleText: it.Input.FullArticleText,
		}
		for j, raw := range it.Gold.Units {
			unit, err := goldUnit(raw, ruleID)
			if err != nil {
				return nil, fmt.Errorf("gold %s unit %d: %w", ruleID, j, err)
			}
			prov.Units = append(prov.Units, *unit)
		}
		ds.Provisions = append(ds.Provisions, prov)
	}
	return ds, nil
}

// goldUnit runs one gold unit through the single validated constructor
// path (the normalizer) and rejects any repair that would have changed its
// meaning.
func goldUnit(raw json.RawMessage, ruleID string) (*model.StructuredUnit, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unit is not an object")
	}
	m["rule_id"] = ruleID
	rec, repairs, err := schema.NormalizeRecord(m)
	if err != nil {
		return nil, err
	}
	for _, r := range repairs {
		if !goldBenignRepairs[r.Code] {
			return nil, fmt.Errorf("gold violates schema (%s: %s)", r.Code, r.Detail)
		}
	}
	for i := range rec.Unit.Branches {
		b := &rec.Unit.Branches[i]
		if d := b.Conditions.Depth(); d > model.MaxTreeDepth {
			return nil, fmt.Errorf("branch %s condition tree depth %d exceeds %d", b.BranchID, d, model.MaxTreeDepth)
		}
		if n := widestNode(b.Conditions); n > model.MaxTreeItems {
			return nil, fmt.Errorf("branch %s condition node has %d items, limit %d", b.BranchID, n, model.MaxTreeItems)
		}
	}
	return &rec.Unit, nil
}

// widestNode returns the largest items count of any subtree node
func widestNode(n *model.ConditionNode) int {
	if n == nil || n.Leaf != nil {
		return 0
	}
	widest := len(n.Group.Items)
	for _, it := range n.Group.Items {
		if w := widestNode(it); w > widest {
			widest = w
		}
	}
	return widest
}

// Predictions holds the raw prediction values for each provision, keyed by
// normalized rule id. Values stay untyped; the evaluator routes each one
// through the schema normalizer.
type Predictions struct {
	Path    string
	ByRule  map[string][]interface{}
	Unkeyed int // records with no resolvable rule id
}

// LoadPredictions reads a predictions export: a JSON array of unit records
// as emitted by the inference stage, grouped here per provision.
func LoadPredictions(path string) (*Predictions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read predictions: %w", err)
	}
	var records []interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse predictions (expected a JSON array): %w", err)
	}
	preds := &Predictions{
		Path:   path,
		ByRule: make(map[string][]interface{}),
	}
	for _, rec := range records {
		ruleID := recordRuleID(rec)
		if ruleID == "" {
			preds.Unkeyed++
			continue
		}
		preds.ByRule[ruleID] = append(preds.ByRule[ruleID], rec)
	}
	return preds, nil
}

// recordRuleID extracts the provision key from one prediction record,
// tolerating wrapped shapes and unit_key fallbacks.
func recordRuleID(rec interface{}) string {
	m, ok := rec.(map[string]interface{})
	if !ok {
		return ""
	}
	if s, ok := m["rule_id"].(string); ok {
		if rid := schema.NormalizeRuleID(s); rid != "" {
			return rid
		}
	}
	if s, ok := m["unit_key"].(string); ok && strings.Contains(s, "#") {
		if rid := schema.NormalizeRuleID(strings.SplitN(s, "#", 2)[0]); rid != "" {
			return rid
		}
	}
	for _, k := range []string{"structure", "structured"} {
		if inner, ok := m[k].(map[string]interface{}); ok {
			if s, ok := inner["rule_id"].(string); ok {
				if rid := schema.NormalizeRuleID(s); rid != "" {
					return rid
				}
			}
		}
	}
	return ""
}
