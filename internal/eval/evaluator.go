// Package eval scores predicted structured units against gold and folds
// per-sample counts into corpus metrics.
package eval

import (
	"github.com/AlexJJJChen/NormBench/internal/align"
	"github.com/AlexJJJChen/NormBench/internal/dataset"
	"github.com/AlexJJJChen/NormBench/internal/model"
	"github.com/AlexJJJChen/NormBench/internal/schema"
	"github.com/AlexJJJChen/NormBench/internal/validate"
)

// Evaluator scores one provision at a time. It holds no mutable state
// between calls, so a single instance is safe to share across workers.
type Evaluator struct {
	th       align.Thresholds
	branches *align.BranchAligner
}

// New creates an evaluator with the given alignment thresholds
func New(th align.Thresholds) *Evaluator {
	return &Evaluator{th: th, branches: align.NewBranchAligner(th)}
}

// SampleResult bundles the score for one provision with the schema-fixed
// prediction records that survived normalization.
type SampleResult struct {
	Score model.SampleScore
	Fixed []*schema.Record
}

// EvaluateSample scores the raw prediction records for one provision.
// Records flow through the schema normalizer; anything unrepairable is
// dropped and counted. A provision with no usable prediction fails closed:
// parse_ok is false and every gold element counts as a miss.
func (e *Evaluator) EvaluateSample(prov dataset.Provision, rawPreds []interface{}) SampleResult {
	score := model.SampleScore{RuleID: prov.RuleID}
	c := &score.Counts
	c.Provisions = 1

	// Gold denominators never depend on the prediction.
	for i := range prov.Units {
		countUnit(&prov.Units[i], c, false)
	}
	c.GoldUnits = len(prov.Units)

	pred, parseErr := e.normalize(prov, rawPreds, &score)
	if len(pred) == 0 {
		score.ParseError = parseErr
		return SampleResult{Score: score}
	}
	score.ParseOK = true
	c.ParseOK = 1

	provText := prov.FullArticleText
	if provText == "" {
		provText = prov.RuleText
	}
	units := make([]model.StructuredUnit, len(pred))
	for i, rec := range pred {
		units[i] = rec.Unit
		stats := validate.CheckUnit(&units[i], provText)
		c.SpansChecked += stats.Checked
		c.SpanViolations += stats.Violations
		countUnit(&units[i], c, true)
	}
	c.PredUnits = len(units)

	pairs := align.AlignUnits(units, prov.Units, e.th)
	c.MatchedUnits = len(pairs)

	matched := make(map[int]bool, len(pairs))
	goldMatched := make(map[int]bool, len(pairs))
	for _, p := range pairs {
		matched[p.Row] = true
		goldMatched[p.Col] = true
		pu, gu := &units[p.Row], &prov.Units[p.Col]
		score.UnitMatches = append(score.UnitMatches, model.MatchResult{
			PredID: pu.UnitID,
			GoldID: gu.UnitID,
			Score:  align.NGramJaccard(pu.UnitText, gu.UnitText),
		})
		e.scoreBranches(pu, gu, &score)
	}
	for i := range units {
		if !matched[i] {
			score.UnitMatches = append(score.UnitMatches, model.MatchResult{PredID: units[i].UnitID})
		}
	}
	for j := range prov.Units {
		if !goldMatched[j] {
			score.UnitMatches = append(score.UnitMatches, model.MatchResult{GoldID: prov.Units[j].UnitID})
		}
	}

	return SampleResult{Score: score, Fixed: pred}
}

// normalize routes every raw prediction record through the parser and
// schema normalizer, folding repair and failure counts into the score.
func (e *Evaluator) normalize(prov dataset.Provision, rawPreds []interface{}, score *model.SampleScore) ([]*schema.Record, string) {
	if len(rawPreds) == 0 {
		return nil, "missing_prediction"
	}
	var (
		out      []*schema.Record
		firstErr string
	)
	fail := func(msg string) {
		score.Counts.Unrepairable++
		if firstErr == "" {
			firstErr = msg
		}
	}
	for _, raw := range rawPreds {
		if s, ok := raw.(string); ok {
			parsed := schema.ParseModelOutput(s)
			if parsed.ParseError != "" {
				fail(parsed.ParseError)
				continue
			}
			raw = parsed.Value
		}
		if m, ok := raw.(map[string]interface{}); ok {
			if msg, ok := m["parse_error"].(string); ok && msg != "" {
				fail(msg)
				continue
			}
			if _, ok := m["rule_id"]; !ok {
				m["rule_id"] = prov.RuleID
			}
		}
		rec, repairs, err := schema.NormalizeRecord(raw)
		if err != nil {
			fail(err.Error())
			continue
		}
		score.Repairs = append(score.Repairs, repairs...)
		out = append(out, rec)
	}
	score.Counts.RepairOps = len(score.Repairs)
	if len(score.Repairs) > 0 {
		score.Counts.Repaired = 1
	}
	if firstErr == "" && len(out) == 0 {
		firstErr = "missing_prediction"
	}
	return out, firstErr
}

// scoreBranches runs the branch aligner on one matched unit pair and folds
// the matched-side increments into the sample counts.
func (e *Evaluator) scoreBranches(pred, gold *model.StructuredUnit, score *model.SampleScore) {
	c := &score.Counts
	out := e.branches.Align(pred, gold)
	for _, m := range out.Matches {
		c.MatchedBranches++
		c.BranchScoreSum += m.Tree.Score
		if m.Pred.NormKind == m.Gold.NormKind {
			c.NormKindCorrect++
		}
		c.MatchedLeaves += m.Tree.MatchedLeaves
		for tag, n := range m.Tree.MatchedByTag {
			c.Tag(tag).Matched += n
		}
		c.MatchedEffects += m.Effect.Matched
		c.ExactEffects += m.Effect.Exact
		score.BranchMatches = append(score.BranchMatches, model.MatchResult{
			PredID: pred.UnitID + "/" + m.Pred.BranchID,
			GoldID: gold.UnitID + "/" + m.Gold.BranchID,
			Score:  m.Tree.Score,
		})
	}
	for _, b := range out.UnmatchedPred {
		score.BranchMatches = append(score.BranchMatches, model.MatchResult{
			PredID: pred.UnitID + "/" + b.BranchID,
		})
	}
	for _, b := range out.UnmatchedGold {
		score.BranchMatches = append(score.BranchMatches, model.MatchResult{
			GoldID: gold.UnitID + "/" + b.BranchID,
		})
	}
}

// countUnit folds one unit's structural totals into the appropriate side
// of the counts. Totals cover every branch and leaf regardless of whether
// alignment later matches them.
func countUnit(unit *model.StructuredUnit, c *model.Counts, pred bool) {
	for i := range unit.Branches {
		b := &unit.Branches[i]
		if pred {
			c.PredBranches++
			c.PredEffects += len(b.Effects)
		} else {
			c.GoldBranches++
			c.GoldEffects += len(b.Effects)
		}
		if b.Conditions == nil {
			continue
		}
		for _, leaf := range b.Conditions.Leaves() {
			tc := c.Tag(leaf.Tag)
			if pred {
				c.PredLeaves++
				tc.Pred++
			} else {
				c.GoldLeaves++
				tc.Gold++
			}
		}
	}
}
