package model

import (
	"encoding/json"
	"fmt"
)

// NormKind classifies the deontic modality of a branch
type NormKind string

const (
	NormObligation  NormKind = "OBLIGATION"
	NormProhibition NormKind = "PROHIBITION"
	NormPermission  NormKind = "PERMISSION"
	NormRight       NormKind = "RIGHT"
	NormLiability   NormKind = "LIABILITY"
	NormSanction    NormKind = "SANCTION"
	NormDefinition  NormKind = "DEFINITION"
	NormProcedure   NormKind = "PROCEDURE"
	NormOther       NormKind = "OTHER"
)

// NormKinds is the closed vocabulary of branch modalities
var NormKinds = map[NormKind]bool{
	NormObligation:  true,
	NormProhibition: true,
	NormPermission:  true,
	NormRight:       true,
	NormLiability:   true,
	NormSanction:    true,
	NormDefinition:  true,
	NormProcedure:   true,
	NormOther:       true,
}

// Condition leaf tags (fixed by the st2.v3 schema)
const (
	TagSubject      = "主体"   // subject — may be an inferred placeholder
	TagAct          = "行为"   // act
	TagObject       = "对象"   // object
	TagPrecondition = "前置条件" // precondition
	TagManner       = "方式"   // manner
	TagPurpose      = "目的"   // purpose
	TagCircumstance = "情节"   // circumstance
	TagAmount       = "数额"   // amount
	TagResult       = "结果"   // result
	TagProcedure    = "程序"   // procedure
	TagReference    = "引用"   // reference
	TagExclusion    = "排除"   // exclusion / defeater
)

// LeafTags is the closed leaf tag vocabulary
var LeafTags = map[string]bool{
	TagSubject:      true,
	TagAct:          true,
	TagObject:       true,
	TagPrecondition: true,
	TagManner:       true,
	TagPurpose:      true,
	TagCircumstance: true,
	TagAmount:       true,
	TagResult:       true,
	TagProcedure:    true,
	TagReference:    true,
	TagExclusion:    true,
}

// BoolOp is the operator of a condition subtree
type BoolOp string

const (
	OpAnd BoolOp = "AND"
	OpOr  BoolOp = "OR"
)

// Structural invariants enforced by the schema normalizer
const (
	MaxTreeDepth    = 6  // root counts as depth 1
	MaxTreeItems    = 30 // per node
	CompressRunSize = 9  // same-tag sibling runs of this size collapse
)

// StructuredUnit is one independently checkable normative statement carved
// out of a provision, with its deontic branches.
type StructuredUnit struct {
	UnitID     string   `json:"unit_id"`
	UnitText   string   `json:"unit_text"`
	UnitReason string   `json:"unit_reason,omitempty"`
	Branches   []Branch `json:"branches"`
	Meta       UnitMeta `json:"meta"`
}

// UnitMeta carries unit-level annotations
type UnitMeta struct {
	ScopePolicy         string `json:"scope_policy,omitempty"`
	CompressedEnum      bool   `json:"compressed_enum,omitempty"`
	UnresolvedReference bool   `json:"unresolved_reference,omitempty"`
	Notes               string `json:"notes,omitempty"`
}

// Anchor is the span of unit text that names a branch
type Anchor struct {
	Text       string `json:"text"`
	Occurrence int    `json:"occurrence"`

	SpanInvalid bool `json:"-"` // set by the span validator, never serialized
}

// Branch is one independent normative proposition within a unit
type Branch struct {
	BranchID            string         `json:"branch_id"`
	Anchor              Anchor         `json:"anchor"`
	NormKind            NormKind       `json:"norm_kind"`
	Conditions          *ConditionNode `json:"conditions"`
	Effects             []Effect       `json:"effects"`
	DependsOnUnits      []string       `json:"depends_on_units"`
	DependsOnArticleRef []string       `json:"depends_on_article_ref"`
	UnresolvedReference bool           `json:"unresolved_reference"`
	Notes               string         `json:"notes,omitempty"`
}

// Effect is one consequence span of a branch
type Effect struct {
	EffectID   string `json:"effect_id"`
	EffectText string `json:"effect_text"`

	SpanInvalid bool `json:"-"`
}

// Leaf is an atomic tagged condition fact
type Leaf struct {
	LeafID string `json:"leaf_id"`
	Tag    string `json:"tag"`
	Text   string `json:"text"`

	SpanInvalid bool `json:"-"`
}

// Group is an AND/OR combination of child conditions
type Group struct {
	Op    BoolOp           `json:"op"`
	Items []*ConditionNode `json:"items"`
}

// ConditionNode is a closed tagged union: exactly one of Leaf or Group is
// set. Instances are constructed only by the schema normalizer, so
// comparison code never re-checks shape.
type ConditionNode struct {
	Leaf  *Leaf
	Group *Group
}

// NewLeafNode wraps a leaf as a tree node
func NewLeafNode(leaf Leaf) *ConditionNode {
	return &ConditionNode{Leaf: &leaf}
}

// NewGroupNode wraps an operator and children as a tree node
func NewGroupNode(op BoolOp, items []*ConditionNode) *ConditionNode {
	return &ConditionNode{Group: &Group{Op: op, Items: items}}
}

// IsLeaf reports whether the node is an atomic condition
func (n *ConditionNode) IsLeaf() bool {
	return n != nil && n.Leaf != nil
}

// Depth returns the tree depth with the root counting as 1
func (n *ConditionNode) Depth() int {
	if n == nil {
		return 0
	}
	if n.Leaf != nil {
		return 1
	}
	max := 0
	for _, it := range n.Group.Items {
		if d := it.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// Leaves returns all leaves in document order
func (n *ConditionNode) Leaves() []*Leaf {
	if n == nil {
		return nil
	}
	if n.Leaf != nil {
		return []*Leaf{n.Leaf}
	}
	var out []*Leaf
	for _, it := range n.Group.Items {
		out = append(out, it.Leaves()...)
	}
	return out
}

// NodeCount returns the total number of nodes in the tree
func (n *ConditionNode) NodeCount() int {
	if n == nil {
		return 0
	}
	if n.Leaf != nil {
		return 1
	}
	c := 1
	for _, it := range n.Group.Items {
		c += it.NodeCount()
	}
	return c
}

// MarshalJSON serializes the node in st2.v3 wire shape: a leaf object
// {leaf_id, tag, text} or a subtree object {op, items}.
func (n *ConditionNode) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	if n.Leaf != nil {
		return json.Marshal(n.Leaf)
	}
	if n.Group != nil {
		return json.Marshal(n.Group)
	}
	return nil, fmt.Errorf("condition node has neither leaf nor group")
}
