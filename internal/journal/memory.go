package journal

import (
	"sync"

	"moltd/internal/daemon"
)

// MemoryJournal is an in-process daemon.Journal for tests and journal-less
// configurations.
type MemoryJournal struct {
	mu         sync.Mutex
	iterations []daemon.IterationRecord
	posts      []daemon.PostRecord
	nextID     int64
}

var _ daemon.Journal = (*MemoryJournal)(nil)

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{nextID: 1}
}

func (j *MemoryJournal) RecordIteration(rec daemon.IterationRecord) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec.ID = j.nextID
	j.nextID++
	j.iterations = append(j.iterations, rec)
	return rec.ID, nil
}

func (j *MemoryJournal) RecordPost(rec daemon.PostRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec.ID = int64(len(j.posts) + 1)
	j.posts = append(j.posts, rec)
	return nil
}

func (j *MemoryJournal) ListIterations(limit int) ([]daemon.IterationRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return lastN(j.iterations, limit), nil
}

func (j *MemoryJournal) ListPosts(limit int) ([]daemon.PostRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return lastN(j.posts, limit), nil
}

func (j *MemoryJournal) Close() error { return nil }

// lastN returns up to n entries, newest first.
func lastN[T any](entries []T, n int) []T {
	if n <= 0 {
		n = 20
	}
	var out []T
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}
