// Package align pairs predicted annotation elements with gold counterparts
// under structural ambiguity. One bipartite matching primitive serves four
// call sites: unit alignment, branch alignment, condition-tree children,
// and effect lists.
package align

import "strings"

// Thresholds are the tunable similarity constants. Defaults are validated
// against gold-vs-gold sanity checks.
type Thresholds struct {
	UnitOverlap       float64 // minimum n-gram Jaccard to pair two units
	LeafText          float64 // leaf text equivalence cutoff
	OpMismatchPenalty float64 // multiplier for AND/OR confusion
	BranchPrune       float64 // prelim score below which branch pairs skip tree comparison
}

// DefaultThresholds returns the standard constants
func DefaultThresholds() Thresholds {
	return Thresholds{
		UnitOverlap:       0.5,
		LeafText:          0.8,
		OpMismatchPenalty: 0.5,
		BranchPrune:       0.15,
	}
}

// ngramSet returns the rune bigram set of a whitespace-normalized string.
// Bigrams over runes stay meaningful for CJK text, where words are not
// space-delimited.
func ngramSet(s string) map[string]struct{} {
	r := []rune(normWS(s))
	set := make(map[string]struct{})
	if len(r) == 0 {
		return set
	}
	if len(r) == 1 {
		set[string(r)] = struct{}{}
		return set
	}
	for i := 0; i+2 <= len(r); i++ {
		set[string(r[i:i+2])] = struct{}{}
	}
	return set
}

// NGramJaccard is the symmetric Jaccard similarity over rune bigrams,
// robust to minor boundary drift between two spans.
func NGramJaccard(a, b string) float64 {
	sa, sb := ngramSet(a), ngramSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for g := range sa {
		if _, ok := sb[g]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// TextSimilarity grades how close two span texts are: the better of
// substring containment (shorter within longer, scored by length ratio)
// and normalized Levenshtein similarity.
func TextSimilarity(a, b string) float64 {
	na, nb := normWS(a), normWS(b)
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	ra, rb := []rune(na), []rune(nb)
	longer, shorter := na, nb
	if len(rb) > len(ra) {
		longer, shorter = nb, na
	}
	contain := 0.0
	if strings.Contains(longer, shorter) {
		lr, sr := []rune(longer), []rune(shorter)
		contain = float64(len(sr)) / float64(len(lr))
	}
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	edit := 1 - float64(levenshtein(ra, rb))/float64(maxLen)
	if contain > edit {
		return contain
	}
	return edit
}

// levenshtein computes edit distance over runes with a two-row table
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			m := prev[j] + 1
			if cur[j-1]+1 < m {
				m = cur[j-1] + 1
			}
			if prev[j-1]+cost < m {
				m = prev[j-1] + cost
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func normWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
