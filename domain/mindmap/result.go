package mindmap

import "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"

// RejectReason classifies why the merge or rollback engine refused an
// operation. Rejections are ordinary values reported back to the
// originator; they are never Go errors and never retried by the core.
type RejectReason string

const (
	ReasonStale             RejectReason = "stale"
	ReasonNotFound          RejectReason = "not_found"
	ReasonAlreadyExists     RejectReason = "already_exists"
	ReasonSelfLoop          RejectReason = "self_loop"
	ReasonDuplicateEdge     RejectReason = "duplicate_edge"
	ReasonWouldCreateCycle  RejectReason = "would_create_cycle"
	ReasonContentTooLong    RejectReason = "content_too_long"
	ReasonInvalidPosition   RejectReason = "invalid_position"
	ReasonLimitExceeded     RejectReason = "limit_exceeded"
	ReasonUnknownOperation  RejectReason = "unknown_operation"
	ReasonAlreadyRolledBack RejectReason = "already_rolled_back"
)

// MergeResult is the outcome of admitting one operation. Exactly one of
// Node or Edge is set on acceptance; CyclePath accompanies a
// would_create_cycle rejection with the offending cycle's node IDs.
type MergeResult struct {
	Accepted    bool         `json:"accepted"`
	Reason      RejectReason `json:"reason,omitempty"`
	CyclePath   []string     `json:"cyclePath,omitempty"`
	MergedClock clock.Clock  `json:"mergedClock,omitempty"`
	Seq         int64        `json:"seq,omitempty"`
	Conflict    bool         `json:"conflict,omitempty"`
	Node        *Node        `json:"node,omitempty"`
	Edge        *Edge        `json:"edge,omitempty"`
}

// Reject builds a rejection result.
func Reject(reason RejectReason) *MergeResult {
	return &MergeResult{Reason: reason}
}

// RejectCycle builds a would_create_cycle rejection carrying the cycle.
func RejectCycle(path []string) *MergeResult {
	return &MergeResult{Reason: ReasonWouldCreateCycle, CyclePath: path}
}

// RollbackResult is the outcome of reversing a journal record.
type RollbackResult struct {
	Success bool         `json:"success"`
	Reason  RejectReason `json:"reason,omitempty"`
	Record  *Record      `json:"record,omitempty"`
}
