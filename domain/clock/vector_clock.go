// Package clock implements the vector clock used to order concurrent
// mind-map operations. Each collaborating client owns one counter; the
// clock as a whole captures the causal history an operation was issued
// against, without relying on synchronized wall time.
package clock

import "sort"

// Relation is the causal relationship between two clocks.
type Relation int

const (
	// Before means the receiver happened strictly before the other clock.
	Before Relation = iota
	// After means the receiver happened strictly after the other clock.
	After
	// Equal means both clocks describe the same causal history.
	Equal
	// Concurrent means neither clock dominates: the events are conflicting.
	Concurrent
)

// String returns the lowercase name of the relation.
func (r Relation) String() string {
	switch r {
	case Before:
		return "before"
	case After:
		return "after"
	case Equal:
		return "equal"
	default:
		return "concurrent"
	}
}

// Clock maps client IDs to monotonically non-decreasing counters.
//
// Clocks are treated as values: Tick and Merge return new clocks and
// never mutate the receiver, so a clock stored on an entity or a log
// record is a stable snapshot of the history it was written with.
type Clock map[string]uint64

// New returns an empty clock.
func New() Clock {
	return Clock{}
}

// Copy returns an independent copy of the clock. A nil receiver yields
// an empty, usable clock.
func (c Clock) Copy() Clock {
	out := make(Clock, len(c))
	for id, n := range c {
		out[id] = n
	}
	return out
}

// Tick returns a copy of the clock with clientID's counter advanced by one.
func (c Clock) Tick(clientID string) Clock {
	out := c.Copy()
	out[clientID]++
	return out
}

// Merge returns the per-key maximum of both clocks. Merge is commutative,
// associative and idempotent, and is total over any pair of clocks.
func (c Clock) Merge(other Clock) Clock {
	out := c.Copy()
	for id, n := range other {
		if n > out[id] {
			out[id] = n
		}
	}
	return out
}

// Compare returns the causal relation of c to other, computed over the
// union of keys: if any counter of c exceeds the matching counter of
// other and vice versa the clocks are Concurrent; one-sided dominance
// yields After or Before; otherwise the clocks are Equal.
func (c Clock) Compare(other Clock) Relation {
	selfDominates := false
	otherDominates := false

	for id, n := range c {
		o := other[id]
		if n > o {
			selfDominates = true
		} else if n < o {
			otherDominates = true
		}
	}
	for id, n := range other {
		if _, ok := c[id]; !ok && n > 0 {
			otherDominates = true
		}
	}

	switch {
	case selfDominates && otherDominates:
		return Concurrent
	case selfDominates:
		return After
	case otherDominates:
		return Before
	default:
		return Equal
	}
}

// Equal reports whether both clocks describe the same history.
func (c Clock) Equal(other Clock) bool {
	return c.Compare(other) == Equal
}

// CausallyReady reports whether an operation carrying clock c may be
// applied against the authoritative clock current. An operation is ready
// when it depends on nothing the authority has not already absorbed,
// i.e. c is Before or Equal to current. Concurrent clocks are *not*
// ready in the strict sense; the merge engine still admits them under
// the last-writer-wins policy, so this predicate is the conservative
// map-level check, not the admission rule.
func (c Clock) CausallyReady(current Clock) bool {
	rel := c.Compare(current)
	return rel == Before || rel == Equal
}

// Clients returns the client IDs present in the clock, sorted for
// deterministic iteration in logs and tests.
func (c Clock) Clients() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
