package model

// MatchResult is one bipartite pairing between a predicted element and a
// gold element. An empty ID on either side denotes an unmatched element
// (false positive when GoldID is empty, false negative when PredID is empty).
type MatchResult struct {
	PredID string  `json:"pred_id,omitempty"`
	GoldID string  `json:"gold_id,omitempty"`
	Score  float64 `json:"score"`
}

// Matched reports whether both sides of the pairing are present
func (m MatchResult) Matched() bool {
	return m.PredID != "" && m.GoldID != ""
}

// Repair records one deterministic transformation applied to a
// schema-violating prediction. Code is a stable reason code used for
// aggregation into the repair rate.
type Repair struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// Repair reason codes emitted by the schema normalizer
const (
	RepairUnwrappedStructure  = "unwrapped_structure"
	RepairDroppedKey          = "dropped_key"
	RepairForbiddenExceptions = "forbidden_exceptions_key"
	RepairRenumberedIDs       = "renumbered_ids"
	RepairEmptyConditions     = "empty_conditions"
	RepairFlattenedOp         = "flattened_nested_op"
	RepairMergedDuplicates    = "merged_duplicate_leaves"
	RepairCompressedEnum      = "compressed_enum"
	RepairInvalidNormKind     = "invalid_norm_kind"
	RepairInvalidLeafTag      = "invalid_leaf_tag"
	RepairDroppedBranch       = "dropped_malformed_branch"
	RepairDroppedEffect       = "dropped_malformed_effect"
	RepairMissingAnchor       = "missing_anchor"
	RepairReorderedBranches   = "reordered_branches"
)
