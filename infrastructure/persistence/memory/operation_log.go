package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
	pkgerrors "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/errors"
)

type journal struct {
	nextSeq int64
	records []*mindmap.Record
}

// OperationLog is an in-memory append-only journal with a per-map
// sequence counter. Sequence numbers are issued under the store lock,
// so they are strictly increasing per map even under concurrent
// appenders.
type OperationLog struct {
	mu   sync.RWMutex
	maps map[string]*journal
	byID map[string]*mindmap.Record
}

// NewOperationLog creates an empty in-memory journal.
func NewOperationLog() *OperationLog {
	return &OperationLog{
		maps: make(map[string]*journal),
		byID: make(map[string]*mindmap.Record),
	}
}

// Append assigns the record the map's next sequence number and stores it.
func (l *OperationLog) Append(ctx context.Context, rec *mindmap.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byID[rec.ID]; ok {
		return pkgerrors.NewConflict("operation " + rec.ID + " already journaled")
	}

	j, ok := l.maps[rec.MapID]
	if !ok {
		j = &journal{}
		l.maps[rec.MapID] = j
	}
	j.nextSeq++
	rec.Seq = j.nextSeq

	stored := cloneRecord(rec)
	j.records = append(j.records, stored)
	l.byID[rec.ID] = stored
	return nil
}

// GetByID returns the record with the given operation ID, or nil.
func (l *OperationLog) GetByID(ctx context.Context, operationID string) (*mindmap.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.byID[operationID]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

// ListSince returns applied records with seq > sinceSeq, ascending.
func (l *OperationLog) ListSince(ctx context.Context, mapID string, sinceSeq int64) ([]*mindmap.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	j, ok := l.maps[mapID]
	if !ok {
		return nil, nil
	}
	var out []*mindmap.Record
	for _, rec := range j.records {
		if rec.Seq > sinceSeq && rec.Status == mindmap.StatusApplied {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// ListByMap returns up to limit records newest-first. A beforeSeq of
// zero starts from the newest record.
func (l *OperationLog) ListByMap(ctx context.Context, mapID string, limit int, beforeSeq int64) ([]*mindmap.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	j, ok := l.maps[mapID]
	if !ok {
		return nil, nil
	}
	var out []*mindmap.Record
	for i := len(j.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := j.records[i]
		if beforeSeq > 0 && rec.Seq >= beforeSeq {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Seq > out[b].Seq })
	return out, nil
}

// ListConflicts returns records flagged concurrent at admission,
// ascending by seq.
func (l *OperationLog) ListConflicts(ctx context.Context, mapID string) ([]*mindmap.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	j, ok := l.maps[mapID]
	if !ok {
		return nil, nil
	}
	var out []*mindmap.Record
	for _, rec := range j.records {
		if rec.Conflict {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// UpdateStatus transitions the record's lifecycle status.
func (l *OperationLog) UpdateStatus(ctx context.Context, operationID string, status mindmap.RecordStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.byID[operationID]
	if !ok {
		return pkgerrors.NewNotFound("operation " + operationID + " not found")
	}
	rec.Status = status
	return nil
}

func cloneRecord(rec *mindmap.Record) *mindmap.Record {
	out := *rec
	out.Clock = rec.Clock.Copy()
	if rec.Previous != nil {
		prev := *rec.Previous
		if rec.Previous.Node != nil {
			n := *rec.Previous.Node
			n.Clock = rec.Previous.Node.Clock.Copy()
			prev.Node = &n
		}
		if rec.Previous.Edge != nil {
			e := *rec.Previous.Edge
			e.Clock = rec.Previous.Edge.Clock.Copy()
			prev.Edge = &e
		}
		if rec.Previous.CascadedEdgeIDs != nil {
			prev.CascadedEdgeIDs = append([]string(nil), rec.Previous.CascadedEdgeIDs...)
		}
		out.Previous = &prev
	}
	return &out
}
