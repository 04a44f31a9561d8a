package align

import (
	"github.com/AlexJJJChen/NormBench/internal/model"
)

// Preliminary pairwise cost weights: cheap signals used to prune branch
// pairs before the expensive tree comparison.
const (
	prelimKindWeight   = 0.4
	prelimAnchorWeight = 0.3
	prelimTagSetWeight = 0.3
)

// Final assignment weights once tree and effect scores are available
const (
	finalKindWeight   = 0.25
	finalAnchorWeight = 0.15
	finalTreeWeight   = 0.45
	finalEffectWeight = 0.15
)

// BranchMatch is one aligned branch pair with its component scores
type BranchMatch struct {
	Pred   *model.Branch
	Gold   *model.Branch
	Weight float64
	Tree   TreeResult
	Effect EffectResult
}

// BranchOutcome is the result of aligning branches within one unit pair.
// Unmatched predicted branches are false positives, unmatched gold
// branches are false negatives; both are derivable from Matches versus the
// input branch lists.
type BranchOutcome struct {
	Matches       []BranchMatch
	UnmatchedPred []*model.Branch
	UnmatchedGold []*model.Branch
}

// BranchAligner aligns predicted branches to gold branches within one
// aligned unit pair.
type BranchAligner struct {
	th    Thresholds
	trees *TreeComparator
}

// NewBranchAligner creates a branch aligner
func NewBranchAligner(th Thresholds) *BranchAligner {
	return &BranchAligner{th: th, trees: NewTreeComparator(th)}
}

// Trees exposes the tree comparator sharing this aligner's thresholds
func (a *BranchAligner) Trees() *TreeComparator {
	return a.trees
}

// Align pairs predicted branches with gold branches. Candidates are first
// screened by a cheap non-recursive cost (norm-kind equality, anchor
// overlap, top-level leaf-tag-set Jaccard); surviving pairs are scored with
// the tree comparator and assigned by exact bipartite maximum-weight
// matching. Branch counts per unit are small, so the exact solver is
// preferred over greedy to avoid systematic bias.
func (a *BranchAligner) Align(pred, gold *model.StructuredUnit) BranchOutcome {
	np, ng := len(pred.Branches), len(gold.Branches)
	out := BranchOutcome{}
	if np == 0 || ng == 0 {
		for i := range pred.Branches {
			out.UnmatchedPred = append(out.UnmatchedPred, &pred.Branches[i])
		}
		for j := range gold.Branches {
			out.UnmatchedGold = append(out.UnmatchedGold, &gold.Branches[j])
		}
		return out
	}

	type cell struct {
		tree   TreeResult
		effect EffectResult
		scored bool
	}
	cells := make([][]cell, np)
	weights := make([][]float64, np)
	for i := 0; i < np; i++ {
		cells[i] = make([]cell, ng)
		weights[i] = make([]float64, ng)
		pb := &pred.Branches[i]
		for j := 0; j < ng; j++ {
			gb := &gold.Branches[j]
			kind := 0.0
			if pb.NormKind == gb.NormKind {
				kind = 1.0
			}
			anchor := anchorOverlap(pb, gb)
			prelim := prelimKindWeight*kind +
				prelimAnchorWeight*anchor +
				prelimTagSetWeight*setJaccard(topLevelTags(pb.Conditions), topLevelTags(gb.Conditions))
			if prelim < a.th.BranchPrune {
				continue
			}
			cells[i][j].tree = a.trees.Compare(pb.Conditions, gb.Conditions)
			cells[i][j].effect = a.trees.CompareEffects(pb.Effects, gb.Effects)
			cells[i][j].scored = true
			weights[i][j] = finalKindWeight*kind +
				finalAnchorWeight*anchor +
				finalTreeWeight*cells[i][j].tree.Score +
				finalEffectWeight*cells[i][j].effect.Score
		}
	}

	matchedPred := make([]bool, np)
	matchedGold := make([]bool, ng)
	for _, p := range MaxWeight(weights) {
		if !cells[p.Row][p.Col].scored || weights[p.Row][p.Col] <= 0 {
			continue
		}
		matchedPred[p.Row] = true
		matchedGold[p.Col] = true
		out.Matches = append(out.Matches, BranchMatch{
			Pred:   &pred.Branches[p.Row],
			Gold:   &gold.Branches[p.Col],
			Weight: weights[p.Row][p.Col],
			Tree:   cells[p.Row][p.Col].tree,
			Effect: cells[p.Row][p.Col].effect,
		})
	}
	for i := range pred.Branches {
		if !matchedPred[i] {
			out.UnmatchedPred = append(out.UnmatchedPred, &pred.Branches[i])
		}
	}
	for j := range gold.Branches {
		if !matchedGold[j] {
			out.UnmatchedGold = append(out.UnmatchedGold, &gold.Branches[j])
		}
	}
	return out
}

// anchorOverlap scores anchors by character n-gram Jaccard; a flagged
// anchor span contributes nothing.
func anchorOverlap(pred, gold *model.Branch) float64 {
	if pred.Anchor.SpanInvalid {
		return 0
	}
	return NGramJaccard(pred.Anchor.Text, gold.Anchor.Text)
}

// topLevelTags collects the leaf tags among a tree's direct children
func topLevelTags(n *model.ConditionNode) map[string]struct{} {
	tags := make(map[string]struct{})
	if n == nil {
		return tags
	}
	if n.Leaf != nil {
		tags[n.Leaf.Tag] = struct{}{}
		return tags
	}
	for _, it := range n.Group.Items {
		if it.Leaf != nil {
			tags[it.Leaf.Tag] = struct{}{}
		}
	}
	return tags
}

func setJaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
