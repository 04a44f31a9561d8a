package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AlexJJJChen/NormBench/internal/model"
)

// ErrUnrepairable marks input that cannot be coerced into a structured
// unit: not an object at all, or missing the mandatory identifying fields.
var ErrUnrepairable = errors.New("unrepairable structured unit")

// Record is one normalized prediction record: a structured unit keyed by
// the provision it belongs to.
type Record struct {
	RuleID string
	Unit   model.StructuredUnit
}

// Key returns the provision#unit key used to pair predictions with gold
func (r *Record) Key() string {
	return r.RuleID + "#" + r.Unit.UnitID
}

// NormalizeRuleID strips the trailing pipe some exports carry on rule ids
func NormalizeRuleID(ruleID string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(ruleID), "|"))
}

// knownTopKeys are the st2.v3 top-level fields. Everything else is dropped.
var knownTopKeys = map[string]bool{
	"schema_version": true,
	"rule_id":        true,
	"law_title":      true,
	"article_number": true,
	"rule_text":      true,
	"unit_id":        true,
	"unit_text":      true,
	"unit_reason":    true,
	"branches":       true,
	"meta":           true,
	"unit_key":       true,
	"structure":      true,
	"structured":     true,
}

var knownBranchKeys = map[string]bool{
	"branch_id":              true,
	"anchor":                 true,
	"norm_kind":              true,
	"conditions":             true,
	"effects":                true,
	"depends_on_units":       true,
	"depends_on_article_ref": true,
	"unresolved_reference":   true,
	"notes":                  true,
}

// NormalizeRecord coerces a raw parsed JSON value into a schema-valid
// record, applying the fixed repair sequence. It returns ErrUnrepairable
// only when the value is not an object or the mandatory identifying fields
// (rule_id, unit_id) are absent. Repairs never fabricate condition or
// effect semantics beyond the fixed collapse and renumbering rules.
func NormalizeRecord(raw interface{}) (*Record, []model.Repair, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("%w: top level is not an object", ErrUnrepairable)
	}

	var log []model.Repair
	logf := func(code, format string, args ...interface{}) {
		log = append(log, model.Repair{Code: code, Detail: fmt.Sprintf(format, args...)})
	}

	// Some exports wrap the st2.v3 object as {unit_id, unit_text,
	// unit_reason, structure: {...}}; unwrap before everything else.
	outer := m
	if inner, ok := asMap(m["structure"]); ok {
		m = merged(inner, outer)
		logf(model.RepairUnwrappedStructure, "unwrapped nested structure object")
	} else if inner, ok := asMap(m["structured"]); ok {
		m = merged(inner, outer)
		logf(model.RepairUnwrappedStructure, "unwrapped nested structured object")
	}

	ruleID := NormalizeRuleID(asString(m["rule_id"]))
	if ruleID == "" {
		// unit_key "rule#unit" is an accepted fallback for the identifier
		if key := asString(m["unit_key"]); strings.Contains(key, "#") {
			ruleID = NormalizeRuleID(strings.SplitN(key, "#", 2)[0])
		}
	}
	unitID := strings.TrimSpace(asString(m["unit_id"]))
	if unitID == "" {
		if key := asString(m["unit_key"]); strings.Contains(key, "#") {
			unitID = strings.TrimSpace(strings.SplitN(key, "#", 2)[1])
		}
	}
	if ruleID == "" || unitID == "" {
		return nil, log, fmt.Errorf("%w: missing rule_id or unit_id", ErrUnrepairable)
	}

	// (a) drop unknown fields, including the forbidden exceptions key
	for k := range m {
		if k == "exceptions" {
			logf(model.RepairForbiddenExceptions, "dropped exceptions key at top level")
			continue
		}
		if !knownTopKeys[k] {
			logf(model.RepairDroppedKey, "top-level key %q", k)
		}
	}

	unit := model.StructuredUnit{
		UnitID:     unitID,
		UnitText:   asString(m["unit_text"]),
		UnitReason: asString(m["unit_reason"]),
		Meta:       normalizeMeta(m["meta"], logf),
	}

	branchesRaw, ok := asList(m["branches"])
	if !ok && m["branches"] != nil {
		logf(model.RepairDroppedKey, "branches is not a list")
	}
	for i, braw := range branchesRaw {
		bm, ok := asMap(braw)
		if !ok {
			logf(model.RepairDroppedBranch, "branch[%d] is not an object", i)
			continue
		}
		unit.Branches = append(unit.Branches, normalizeBranch(bm, i, logf))
	}

	// Branches are ordered by the first occurrence of their anchor text in
	// the unit text; predictions that violate the ordering are reordered.
	reorderBranches(&unit, logf)

	// (d) flatten same-op nesting, then (e) the fixed collapse sequence
	for i := range unit.Branches {
		b := &unit.Branches[i]
		b.Conditions = flattenSameOp(b.Conditions, logf)
		collapsed := collapseTree(b.Conditions, logf)
		if collapsed {
			unit.Meta.CompressedEnum = true
		}
	}

	// (b) renumber ids deterministically when missing or non-contiguous
	renumberIDs(&unit, logf)

	return &Record{RuleID: ruleID, Unit: unit}, log, nil
}

func normalizeMeta(raw interface{}, logf func(code, format string, args ...interface{})) model.UnitMeta {
	mm, ok := asMap(raw)
	if !ok {
		return model.UnitMeta{}
	}
	for k := range mm {
		switch k {
		case "scope_policy", "compressed_enum", "unresolved_reference", "notes":
		case "exceptions":
			logf(model.RepairForbiddenExceptions, "dropped exceptions key in meta")
		default:
			logf(model.RepairDroppedKey, "meta key %q", k)
		}
	}
	return model.UnitMeta{
		ScopePolicy:         asString(mm["scope_policy"]),
		CompressedEnum:      asBool(mm["compressed_enum"]),
		UnresolvedReference: asBool(mm["unresolved_reference"]),
		Notes:               asString(mm["notes"]),
	}
}

func normalizeBranch(bm map[string]interface{}, idx int, logf func(code, format string, args ...interface{})) model.Branch {
	for k := range bm {
		if k == "exceptions" {
			logf(model.RepairForbiddenExceptions, "dropped exceptions key in branch[%d]", idx)
			continue
		}
		if !knownBranchKeys[k] {
			logf(model.RepairDroppedKey, "branch[%d] key %q", idx, k)
		}
	}

	b := model.Branch{
		BranchID:            asString(bm["branch_id"]),
		UnresolvedReference: asBool(bm["unresolved_reference"]),
		Notes:               asString(bm["notes"]),
		DependsOnUnits:      asStringList(bm["depends_on_units"]),
		DependsOnArticleRef: asStringList(bm["depends_on_article_ref"]),
	}

	if am, ok := asMap(bm["anchor"]); ok {
		b.Anchor = model.Anchor{
			Text:       asString(am["text"]),
			Occurrence: asInt(am["occurrence"]),
		}
	} else {
		logf(model.RepairMissingAnchor, "branch[%d] has no anchor object", idx)
	}
	if b.Anchor.Occurrence < 1 {
		b.Anchor.Occurrence = 1
	}

	kind := model.NormKind(strings.ToUpper(strings.TrimSpace(asString(bm["norm_kind"]))))
	if !model.NormKinds[kind] {
		if kind != "" {
			logf(model.RepairInvalidNormKind, "branch[%d] norm_kind %q", idx, kind)
		}
		kind = model.NormOther
	}
	b.NormKind = kind

	// (c) absent or malformed conditions become an empty AND subtree
	cond, ok := normalizeCondition(bm["conditions"], idx, logf)
	if !ok {
		cond = model.NewGroupNode(model.OpAnd, nil)
		b.UnresolvedReference = false
		b.Notes = appendNote(b.Notes, "schema_fix:empty_conditions")
		logf(model.RepairEmptyConditions, "branch[%d] conditions replaced with empty AND", idx)
	}
	b.Conditions = cond

	if effRaw, ok := asList(bm["effects"]); ok {
		for j, eraw := range effRaw {
			em, ok := asMap(eraw)
			if !ok {
				logf(model.RepairDroppedEffect, "branch[%d].effects[%d] is not an object", idx, j)
				continue
			}
			text := asString(em["effect_text"])
			if text == "" {
				logf(model.RepairDroppedEffect, "branch[%d].effects[%d] has no effect_text", idx, j)
				continue
			}
			b.Effects = append(b.Effects, model.Effect{
				EffectID:   asString(em["effect_id"]),
				EffectText: text,
			})
		}
	}

	return b
}

// normalizeCondition builds the closed tagged union from a raw condition
// node. Returns ok=false when the root is not a usable tree.
func normalizeCondition(raw interface{}, branchIdx int, logf func(code, format string, args ...interface{})) (*model.ConditionNode, bool) {
	nm, ok := asMap(raw)
	if !ok {
		return nil, false
	}
	if _, hasExc := nm["exceptions"]; hasExc {
		logf(model.RepairForbiddenExceptions, "dropped exceptions key in branch[%d] conditions", branchIdx)
	}

	_, hasOp := nm["op"]
	_, hasItems := nm["items"]
	if hasOp || hasItems {
		op := model.BoolOp(strings.ToUpper(strings.TrimSpace(asString(nm["op"]))))
		if op != model.OpAnd && op != model.OpOr {
			return nil, false
		}
		items, _ := asList(nm["items"])
		var children []*model.ConditionNode
		for i, item := range items {
			child, ok := normalizeCondition(item, branchIdx, logf)
			if !ok {
				logf(model.RepairDroppedKey, "branch[%d] condition item[%d] malformed", branchIdx, i)
				continue
			}
			children = append(children, child)
		}
		return model.NewGroupNode(op, children), true
	}

	// leaf
	tag := strings.TrimSpace(asString(nm["tag"]))
	text := asString(nm["text"])
	if tag == "" && text == "" {
		return nil, false
	}
	if tag != "" && !model.LeafTags[tag] {
		logf(model.RepairInvalidLeafTag, "branch[%d] leaf tag %q", branchIdx, tag)
	}
	return model.NewLeafNode(model.Leaf{
		LeafID: asString(nm["leaf_id"]),
		Tag:    tag,
		Text:   text,
	}), true
}

// flattenSameOp collapses AND under AND and OR under OR into the parent
func flattenSameOp(n *model.ConditionNode, logf func(code, format string, args ...interface{})) *model.ConditionNode {
	if n == nil || n.Leaf != nil {
		return n
	}
	var items []*model.ConditionNode
	for _, it := range n.Group.Items {
		it = flattenSameOp(it, logf)
		if it.Group != nil && it.Group.Op == n.Group.Op {
			items = append(items, it.Group.Items...)
			logf(model.RepairFlattenedOp, "flattened %s under %s", it.Group.Op, n.Group.Op)
			continue
		}
		items = append(items, it)
	}
	n.Group.Items = items
	return n
}

// collapseTree applies the fixed collapse sequence at every node: merge
// duplicate leaves (same tag and text), then replace large same-tag sibling
// runs with one synthetic leaf. Returns true when a run was compressed.
func collapseTree(n *model.ConditionNode, logf func(code, format string, args ...interface{})) bool {
	if n == nil || n.Leaf != nil {
		return false
	}
	compressed := false
	for _, it := range n.Group.Items {
		if collapseTree(it, logf) {
			compressed = true
		}
	}

	// Merge duplicate leaves among direct children.
	seen := make(map[string]bool)
	var dedup []*model.ConditionNode
	merged := 0
	for _, it := range n.Group.Items {
		if it.Leaf != nil {
			key := it.Leaf.Tag + "\x00" + normWS(it.Leaf.Text)
			if seen[key] {
				merged++
				continue
			}
			seen[key] = true
		}
		dedup = append(dedup, it)
	}
	if merged > 0 {
		logf(model.RepairMergedDuplicates, "merged %d duplicate leaves", merged)
	}
	n.Group.Items = dedup

	// Replace same-tag leaf runs of CompressRunSize or more with a single
	// synthetic leaf; the synthetic text marks the compression.
	byTag := make(map[string]int)
	for _, it := range n.Group.Items {
		if it.Leaf != nil && it.Leaf.Tag != "" {
			byTag[it.Leaf.Tag]++
		}
	}
	var out []*model.ConditionNode
	replaced := make(map[string]bool)
	for _, it := range n.Group.Items {
		if it.Leaf != nil && byTag[it.Leaf.Tag] >= model.CompressRunSize {
			tag := it.Leaf.Tag
			if replaced[tag] {
				continue
			}
			replaced[tag] = true
			out = append(out, model.NewLeafNode(model.Leaf{
				Tag:  tag,
				Text: "compressed:" + tag,
			}))
			logf(model.RepairCompressedEnum, "compressed %d %s leaves", byTag[tag], tag)
			compressed = true
			continue
		}
		out = append(out, it)
	}
	n.Group.Items = out
	return compressed
}

// reorderBranches sorts branches by the first occurrence of their anchor
// text in the unit text. Branches whose anchor is not found keep their
// relative position at the end.
func reorderBranches(unit *model.StructuredUnit, logf func(code, format string, args ...interface{})) {
	if len(unit.Branches) < 2 {
		return
	}
	pos := make([]int, len(unit.Branches))
	for i, b := range unit.Branches {
		p := strings.Index(unit.UnitText, b.Anchor.Text)
		if b.Anchor.Text == "" || p < 0 {
			p = len(unit.UnitText) + i
		}
		pos[i] = p
	}
	if sort.SliceIsSorted(unit.Branches, func(i, j int) bool { return pos[i] < pos[j] }) {
		return
	}
	idx := make([]int, len(unit.Branches))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return pos[idx[a]] < pos[idx[b]] })
	sorted := make([]model.Branch, len(unit.Branches))
	for i, j := range idx {
		sorted[i] = unit.Branches[j]
	}
	unit.Branches = sorted
	logf(model.RepairReorderedBranches, "reordered branches by anchor occurrence")
}

// renumberIDs assigns B{n}, B{n}.C{m}, B{n}.E{m} in document order when any
// id is missing or out of sequence. Renumbering all ids at once keeps the
// repair deterministic and idempotent.
func renumberIDs(unit *model.StructuredUnit, logf func(code, format string, args ...interface{})) {
	changed := false
	for i := range unit.Branches {
		b := &unit.Branches[i]
		bid := fmt.Sprintf("B%d", i+1)
		if b.BranchID != bid {
			changed = true
		}
		leaves := b.Conditions.Leaves()
		for m, leaf := range leaves {
			if leaf.LeafID != fmt.Sprintf("%s.C%d", bid, m+1) {
				changed = true
			}
		}
		for m := range b.Effects {
			if b.Effects[m].EffectID != fmt.Sprintf("%s.E%d", bid, m+1) {
				changed = true
			}
		}
	}
	if !changed {
		return
	}
	for i := range unit.Branches {
		b := &unit.Branches[i]
		bid := fmt.Sprintf("B%d", i+1)
		b.BranchID = bid
		for m, leaf := range b.Conditions.Leaves() {
			leaf.LeafID = fmt.Sprintf("%s.C%d", bid, m+1)
		}
		for m := range b.Effects {
			b.Effects[m].EffectID = fmt.Sprintf("%s.E%d", bid, m+1)
		}
	}
	logf(model.RepairRenumberedIDs, "renumbered branch/leaf/effect ids")
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	if strings.Contains(notes, note) {
		return notes
	}
	return notes + ";" + note
}

// merged overlays outer record fields onto the inner structure object
// without overwriting fields the structure already carries.
func merged(inner, outer map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(inner)+4)
	for k, v := range inner {
		out[k] = v
	}
	for _, k := range []string{"rule_id", "unit_id", "unit_text", "unit_reason", "unit_key"} {
		if _, ok := out[k]; !ok {
			if v, ok := outer[k]; ok {
				out[k] = v
			}
		}
	}
	return out
}

func normWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// JSON value accessors used while coercing dynamically shaped input.

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func asList(v interface{}) ([]interface{}, bool) {
	l, ok := v.([]interface{})
	return l, ok
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func asStringList(v interface{}) []string {
	l, ok := asList(v)
	if !ok {
		return nil
	}
	var out []string
	for _, it := range l {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
