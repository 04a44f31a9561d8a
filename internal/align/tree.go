package align

import (
	"github.com/AlexJJJChen/NormBench/internal/model"
)

// TreeResult is the outcome of comparing a predicted condition tree with a
// gold one. Pred/Gold leaf totals cover the whole trees; Matched covers
// only aligned leaf pairs that met the equivalence bar.
type TreeResult struct {
	Score         float64
	PredLeaves    int
	GoldLeaves    int
	MatchedLeaves int
	MatchedByTag  map[string]int
}

// EffectResult is the outcome of comparing two effect lists
type EffectResult struct {
	Score   float64
	Pred    int
	Gold    int
	Matched int
	Exact   int
}

// TreeComparator recursively aligns and scores two condition trees. It is
// self-similar: children at every depth are aligned with the same bipartite
// matching primitive and scored by the same recursive function.
type TreeComparator struct {
	th Thresholds
}

// NewTreeComparator creates a comparator with the given thresholds
func NewTreeComparator(th Thresholds) *TreeComparator {
	return &TreeComparator{th: th}
}

// Compare scores a predicted condition tree against a gold one
func (c *TreeComparator) Compare(pred, gold *model.ConditionNode) TreeResult {
	cmp := c.compare(pred, gold)
	return TreeResult{
		Score:         cmp.score,
		PredLeaves:    len(pred.Leaves()),
		GoldLeaves:    len(gold.Leaves()),
		MatchedLeaves: cmp.matched,
		MatchedByTag:  cmp.matchedByTag,
	}
}

// nodeCmp carries the score of one candidate pairing plus the matched-leaf
// tallies that apply only if the pairing is selected.
type nodeCmp struct {
	score        float64
	matched      int
	matchedByTag map[string]int
}

func (c *TreeComparator) compare(pred, gold *model.ConditionNode) nodeCmp {
	switch {
	case pred == nil && gold == nil:
		return nodeCmp{score: 1}
	case pred == nil || gold == nil:
		return nodeCmp{}
	case pred.IsLeaf() && gold.IsLeaf():
		return c.compareLeaves(pred.Leaf, gold.Leaf)
	case pred.IsLeaf() != gold.IsLeaf():
		// Disagreement about whether a requirement is atomic or composite
		// earns no partial credit.
		return nodeCmp{}
	default:
		return c.compareGroups(pred.Group, gold.Group)
	}
}

func (c *TreeComparator) compareLeaves(pred, gold *model.Leaf) nodeCmp {
	if pred.SpanInvalid {
		// Flagged spans contribute zero similarity but stay in the
		// structural counts.
		return nodeCmp{}
	}
	tagMatch := pred.Tag == gold.Tag
	sim := TextSimilarity(pred.Text, gold.Text)
	if tagMatch && sim >= c.th.LeafText {
		return nodeCmp{
			score:        1,
			matched:      1,
			matchedByTag: map[string]int{gold.Tag: 1},
		}
	}
	score := 0.5 * sim
	if tagMatch {
		score += 0.5
	}
	return nodeCmp{score: score}
}

func (c *TreeComparator) compareGroups(pred, gold *model.Group) nodeCmp {
	penalty := 1.0
	if pred.Op != gold.Op {
		// AND/OR confusion is a structural error, not a pairing issue.
		penalty = c.th.OpMismatchPenalty
	}

	np, ng := len(pred.Items), len(gold.Items)
	if np == 0 && ng == 0 {
		return nodeCmp{score: penalty}
	}
	if np == 0 || ng == 0 {
		return nodeCmp{}
	}

	cmps := make([][]nodeCmp, np)
	weights := make([][]float64, np)
	for i := 0; i < np; i++ {
		cmps[i] = make([]nodeCmp, ng)
		weights[i] = make([]float64, ng)
		for j := 0; j < ng; j++ {
			cmps[i][j] = c.compare(pred.Items[i], gold.Items[j])
			weights[i][j] = cmps[i][j].score
		}
	}

	out := nodeCmp{}
	sum := 0.0
	for _, p := range MaxWeight(weights) {
		chosen := cmps[p.Row][p.Col]
		sum += chosen.score
		out.matched += chosen.matched
		for tag, n := range chosen.matchedByTag {
			if out.matchedByTag == nil {
				out.matchedByTag = make(map[string]int)
			}
			out.matchedByTag[tag] += n
		}
	}
	denom := np
	if ng > denom {
		denom = ng
	}
	out.score = penalty * sum / float64(denom)
	return out
}

// CompareEffects scores effect lists as flat OR-of-leaves trees: pairwise
// text similarity, exact bipartite matching, unmatched effects on either
// side count as structural false positives/negatives.
func (c *TreeComparator) CompareEffects(pred, gold []model.Effect) EffectResult {
	res := EffectResult{Pred: len(pred), Gold: len(gold)}
	if len(pred) == 0 && len(gold) == 0 {
		res.Score = 1
		return res
	}
	if len(pred) == 0 || len(gold) == 0 {
		return res
	}
	weights := make([][]float64, len(pred))
	for i := range pred {
		weights[i] = make([]float64, len(gold))
		for j := range gold {
			if pred[i].SpanInvalid {
				continue
			}
			weights[i][j] = TextSimilarity(pred[i].EffectText, gold[j].EffectText)
		}
	}
	sum := 0.0
	for _, p := range MaxWeight(weights) {
		w := weights[p.Row][p.Col]
		sum += w
		if w >= c.th.LeafText {
			res.Matched++
			if normWS(pred[p.Row].EffectText) == normWS(gold[p.Col].EffectText) {
				res.Exact++
			}
		}
	}
	denom := len(pred)
	if len(gold) > denom {
		denom = len(gold)
	}
	res.Score = sum / float64(denom)
	return res
}
