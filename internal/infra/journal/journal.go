// Package journal records committed changes as an append-only audit trail.
// Journals are write-mostly sinks: nothing in them is replayed into the store.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"socialcore/pkg/domain"
)

// Record is a change as stored by a journal backend: payloads are JSON encoded
// and every record carries a monotonically increasing sequence number.
type Record struct {
	Seq        int64             `json:"seq"`
	Entity     domain.EntityType `json:"entity"`
	EntityID   string            `json:"entityId"`
	Action     domain.Action     `json:"action"`
	Before     json.RawMessage   `json:"before,omitempty"`
	After      json.RawMessage   `json:"after,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Reader exposes the most recent journal records, newest last.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// Encode converts a change into a Record without a sequence number.
func Encode(change domain.Change) (Record, error) {
	rec := Record{
		Entity:     change.Entity,
		EntityID:   change.EntityID,
		Action:     change.Action,
		OccurredAt: change.OccurredAt.UTC(),
	}
	var err error
	if rec.Before, err = encodePayload(change.Before); err != nil {
		return Record{}, fmt.Errorf("encode before of %s %s: %w", change.Entity, change.EntityID, err)
	}
	if rec.After, err = encodePayload(change.After); err != nil {
		return Record{}, fmt.Errorf("encode after of %s %s: %w", change.Entity, change.EntityID, err)
	}
	return rec, nil
}

func encodePayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Memory keeps the latest records in process, bounded by a capacity.
type Memory struct {
	mu       sync.Mutex
	capacity int
	seq      int64
	records  []Record
}

// DefaultMemoryCapacity bounds NewMemory(0).
const DefaultMemoryCapacity = 1024

// NewMemory constructs an in-process journal that retains at most capacity
// records, discarding the oldest first.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

// Append stores the changes in order.
func (m *Memory) Append(_ context.Context, changes []domain.Change) error {
	encoded := make([]Record, 0, len(changes))
	for _, ch := range changes {
		rec, err := Encode(ch)
		if err != nil {
			return err
		}
		encoded = append(encoded, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range encoded {
		m.seq++
		rec.Seq = m.seq
		m.records = append(m.records, rec)
	}
	if overflow := len(m.records) - m.capacity; overflow > 0 {
		m.records = append([]Record(nil), m.records[overflow:]...)
	}
	return nil
}

// Recent returns up to limit of the newest records. A non-positive limit returns all retained records.
func (m *Memory) Recent(_ context.Context, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if limit > 0 && len(m.records) > limit {
		start = len(m.records) - limit
	}
	return append([]Record(nil), m.records[start:]...), nil
}
