package model

// TagCount tallies per-tag leaf outcomes over matched condition trees
type TagCount struct {
	Pred    int `json:"pred"`
	Gold    int `json:"gold"`
	Matched int `json:"matched"`
}

// Counts holds the raw numerators and denominators for every metric at
// every granularity. Corpus aggregation is a plain sum of these fields, so
// the aggregate is invariant to sample ordering and sharding.
type Counts struct {
	Provisions   int `json:"provisions"`
	ParseOK      int `json:"parse_ok"`
	Repaired     int `json:"repaired"`
	RepairOps    int `json:"repair_ops"`
	Unrepairable int `json:"unrepairable"`

	SpanViolations int `json:"span_violations"`
	SpansChecked   int `json:"spans_checked"`

	PredUnits    int `json:"pred_units"`
	GoldUnits    int `json:"gold_units"`
	MatchedUnits int `json:"matched_units"`

	PredBranches    int `json:"pred_branches"`
	GoldBranches    int `json:"gold_branches"`
	MatchedBranches int `json:"matched_branches"`
	NormKindCorrect int `json:"norm_kind_correct"`

	PredLeaves    int `json:"pred_leaves"`
	GoldLeaves    int `json:"gold_leaves"`
	MatchedLeaves int `json:"matched_leaves"`

	PredEffects    int `json:"pred_effects"`
	GoldEffects    int `json:"gold_effects"`
	MatchedEffects int `json:"matched_effects"`
	ExactEffects   int `json:"exact_effects"`

	// BranchScoreSum is the sum of nested tree-comparator scores over
	// matched branches; it weights the structural F1.
	BranchScoreSum float64 `json:"branch_score_sum"`

	ByTag map[string]*TagCount `json:"by_tag,omitempty"`
}

// Add folds another Counts value into the receiver. Addition is commutative
// and associative, so the fold order never changes the aggregate.
func (c *Counts) Add(o Counts) {
	c.Provisions += o.Provisions
	c.ParseOK += o.ParseOK
	c.Repaired += o.Repaired
	c.RepairOps += o.RepairOps
	c.Unrepairable += o.Unrepairable
	c.SpanViolations += o.SpanViolations
	c.SpansChecked += o.SpansChecked
	c.PredUnits += o.PredUnits
	c.GoldUnits += o.GoldUnits
	c.MatchedUnits += o.MatchedUnits
	c.PredBranches += o.PredBranches
	c.GoldBranches += o.GoldBranches
	c.MatchedBranches += o.MatchedBranches
	c.NormKindCorrect += o.NormKindCorrect
	c.PredLeaves += o.PredLeaves
	c.GoldLeaves += o.GoldLeaves
	c.MatchedLeaves += o.MatchedLeaves
	c.PredEffects += o.PredEffects
	c.GoldEffects += o.GoldEffects
	c.MatchedEffects += o.MatchedEffects
	c.ExactEffects += o.ExactEffects
	c.BranchScoreSum += o.BranchScoreSum
	for tag, tc := range o.ByTag {
		if c.ByTag == nil {
			c.ByTag = make(map[string]*TagCount)
		}
		dst := c.ByTag[tag]
		if dst == nil {
			dst = &TagCount{}
			c.ByTag[tag] = dst
		}
		dst.Pred += tc.Pred
		dst.Gold += tc.Gold
		dst.Matched += tc.Matched
	}
}

// Tag returns the tally for one leaf tag, creating it if needed
func (c *Counts) Tag(tag string) *TagCount {
	if c.ByTag == nil {
		c.ByTag = make(map[string]*TagCount)
	}
	tc := c.ByTag[tag]
	if tc == nil {
		tc = &TagCount{}
		c.ByTag[tag] = tc
	}
	return tc
}

// SampleScore is the result of evaluating one provision's prediction
// against gold. It is produced once per evaluation call and never mutated,
// which makes parallel evaluation across samples safe.
type SampleScore struct {
	RuleID string `json:"rule_id"`

	ParseOK    bool   `json:"parse_ok"`
	ParseError string `json:"parse_error,omitempty"`

	Counts  Counts   `json:"counts"`
	Repairs []Repair `json:"repairs,omitempty"`

	UnitMatches   []MatchResult `json:"unit_matches,omitempty"`
	BranchMatches []MatchResult `json:"branch_matches,omitempty"`
}

// Rates are the derived precision/recall/F1-style metrics. They are
// recomputable from Counts at any time; no independent state.
type Rates struct {
	UnitPrecision float64 `json:"unit_precision"`
	UnitRecall    float64 `json:"unit_recall"`
	UnitF1        float64 `json:"unit_f1"`

	BranchPrecision float64 `json:"branch_precision"`
	BranchRecall    float64 `json:"branch_recall"`
	BranchF1        float64 `json:"branch_f1"`

	// StructuralF1 weights branch-level precision/recall by nested tree
	// comparator scores instead of binary matches.
	StructuralPrecision float64 `json:"structural_precision"`
	StructuralRecall    float64 `json:"structural_recall"`
	StructuralF1        float64 `json:"structural_f1"`

	NormKindAccuracy float64 `json:"norm_kind_accuracy"`

	LeafTagPrecision float64 `json:"leaf_tag_precision"`
	LeafTagRecall    float64 `json:"leaf_tag_recall"`
	LeafTagF1        float64 `json:"leaf_tag_f1"`

	EffectOverlapAccuracy float64 `json:"effect_overlap_accuracy"`
	EffectExactAccuracy   float64 `json:"effect_exact_accuracy"`

	ParseOKRate       float64 `json:"parse_ok_rate"`
	RepairRate        float64 `json:"repair_rate"`
	SpanViolationRate float64 `json:"span_violation_rate"`
}

// Rates derives all corpus rates from the folded counts. Rates divide
// summed numerators by summed denominators; they are never averages of
// per-sample ratios.
func (c Counts) Rates() Rates {
	r := Rates{
		UnitPrecision:         ratio(c.MatchedUnits, c.PredUnits),
		UnitRecall:            ratio(c.MatchedUnits, c.GoldUnits),
		BranchPrecision:       ratio(c.MatchedBranches, c.PredBranches),
		BranchRecall:          ratio(c.MatchedBranches, c.GoldBranches),
		StructuralPrecision:   fratio(c.BranchScoreSum, float64(c.PredBranches)),
		StructuralRecall:      fratio(c.BranchScoreSum, float64(c.GoldBranches)),
		NormKindAccuracy:      ratio(c.NormKindCorrect, c.MatchedBranches),
		LeafTagPrecision:      ratio(c.MatchedLeaves, c.PredLeaves),
		LeafTagRecall:         ratio(c.MatchedLeaves, c.GoldLeaves),
		EffectOverlapAccuracy: ratio(c.MatchedEffects, c.GoldEffects),
		EffectExactAccuracy:   ratio(c.ExactEffects, c.GoldEffects),
		ParseOKRate:           ratio(c.ParseOK, c.Provisions),
		RepairRate:            ratio(c.Repaired, c.Provisions),
		SpanViolationRate:     ratio(c.SpanViolations, c.SpansChecked),
	}
	r.UnitF1 = harmonic(r.UnitPrecision, r.UnitRecall)
	r.BranchF1 = harmonic(r.BranchPrecision, r.BranchRecall)
	r.StructuralF1 = harmonic(r.StructuralPrecision, r.StructuralRecall)
	r.LeafTagF1 = harmonic(r.LeafTagPrecision, r.LeafTagRecall)
	return r
}

// Headline returns the compact metric set exported as metrics.json
func (c Counts) Headline() map[string]float64 {
	r := c.Rates()
	return map[string]float64{
		"unit_f1":             r.UnitF1,
		"branch_precision":    r.BranchPrecision,
		"branch_recall":       r.BranchRecall,
		"branch_f1":           r.BranchF1,
		"structural_f1":       r.StructuralF1,
		"norm_kind_accuracy":  r.NormKindAccuracy,
		"leaf_tag_f1":         r.LeafTagF1,
		"effect_overlap":      r.EffectOverlapAccuracy,
		"effect_exact":        r.EffectExactAccuracy,
		"repair_rate":         r.RepairRate,
		"span_violation_rate": r.SpanViolationRate,
	}
}

// ratio divides counts, returning 0 when the denominator is 0 so empty
// denominators never produce a division error.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func fratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// harmonic is the F1 combination of precision and recall
func harmonic(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}
