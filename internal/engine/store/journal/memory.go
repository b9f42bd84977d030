package journal

import (
	"context"
	"sync"
)

// InMemoryJournal keeps records in memory for dev/tests. State does not
// survive a restart; production uses the Postgres journal.
type InMemoryJournal struct {
	mu      sync.RWMutex
	records []Record
	nextSeq uint64
}

// NewInMemory constructs an empty in-memory journal.
func NewInMemory() *InMemoryJournal {
	return &InMemoryJournal{nextSeq: 1}
}

func (j *InMemoryJournal) Append(_ context.Context, record Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	record.Seq = j.nextSeq
	j.nextSeq++
	j.records = append(j.records, record)
	return nil
}

func (j *InMemoryJournal) Replay(_ context.Context, fn func(Record) error) error {
	j.mu.RLock()
	snapshot := make([]Record, len(j.records))
	copy(snapshot, j.records)
	j.mu.RUnlock()

	for _, r := range snapshot {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of journaled records. Test helper.
func (j *InMemoryJournal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}
