package audit

import (
	"context"
	"sync"

	"clinicore.org/internal/ids"
)

const defaultQueryLimit = 100

// MemoryStore keeps events in memory for tests and DSN-less runs.
// Append-only: there is no delete or update path.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) AppendEvent(_ context.Context, ev Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = ids.New()
	m.events = append(m.events, ev)
	return ev, nil
}

func (m *MemoryStore) QueryEvents(_ context.Context, f Filter) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := f.Limit
	if limit <= 0 || limit > defaultQueryLimit {
		limit = defaultQueryLimit
	}
	out := make([]Event, 0, limit)
	// Newest first, matching the SQL store ordering.
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		ev := m.events[i]
		if f.ActorID != "" && ev.ActorID != f.ActorID {
			continue
		}
		if f.Action != "" && ev.Action != f.Action {
			continue
		}
		if f.ObjectType != "" && ev.ObjectType != f.ObjectType {
			continue
		}
		if f.ObjectID != "" && ev.ObjectID != f.ObjectID {
			continue
		}
		if !f.From.IsZero() && ev.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && ev.CreatedAt.After(f.To) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
