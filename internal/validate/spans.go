// Package validate checks that spans declared by an annotation actually
// occur in the text they claim to quote.
package validate

import (
	"strings"

	"github.com/AlexJJJChen/NormBench/internal/model"
)

// Stats counts span checks for one unit. Violations are flagged on the
// elements themselves; nothing is removed, so false positives stay counted
// as false positives downstream.
type Stats struct {
	Checked    int `json:"checked"`
	Violations int `json:"violations"`
}

// Add folds another Stats value into the receiver
func (s *Stats) Add(o Stats) {
	s.Checked += o.Checked
	s.Violations += o.Violations
}

// CheckUnit verifies every declared span of a unit: anchor texts, condition
// leaf texts (all tags except 主体, which may be an inferred placeholder),
// and effect texts. A span passes when its whitespace-normalized form is a
// contiguous substring of the unit text, or of the full provision text for
// leaves inlined from elsewhere in the provision. Non-conforming spans are
// kept but flagged; the flag demotes their similarity to zero during tree
// comparison.
func CheckUnit(unit *model.StructuredUnit, provisionText string) Stats {
	var stats Stats
	unitNorm := normWS(unit.UnitText)
	provNorm := normWS(provisionText)

	check := func(text string) bool {
		stats.Checked++
		t := normWS(text)
		if t == "" {
			stats.Violations++
			return false
		}
		if strings.Contains(unitNorm, t) {
			return true
		}
		if provNorm != "" && strings.Contains(provNorm, t) {
			return true
		}
		stats.Violations++
		return false
	}

	for i := range unit.Branches {
		b := &unit.Branches[i]
		if !check(b.Anchor.Text) {
			b.Anchor.SpanInvalid = true
		}
		for _, leaf := range b.Conditions.Leaves() {
			if leaf.Tag == model.TagSubject {
				continue
			}
			if strings.HasPrefix(leaf.Text, "compressed:") {
				// Synthetic collapse leaves are not quotes.
				continue
			}
			if !check(leaf.Text) {
				leaf.SpanInvalid = true
			}
		}
		for j := range b.Effects {
			if !check(b.Effects[j].EffectText) {
				b.Effects[j].SpanInvalid = true
			}
		}
	}
	return stats
}

func normWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
