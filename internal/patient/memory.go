package patient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"clinicore.org/internal/auth"
	"clinicore.org/internal/ids"
)

// MemoryStore is an in-memory patient Store for tests and DSN-less
// runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Patient
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Patient)}
}

func (m *MemoryStore) CreatePatient(_ context.Context, p Patient) (Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ExternalID != "" {
		for _, existing := range m.records {
			if existing.ExternalID == p.ExternalID {
				return Patient{}, fmt.Errorf("%w: external id already registered", auth.ErrConflict)
			}
		}
	}
	now := time.Now().UTC()
	p.ID = ids.New()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.records[p.ID] = p
	return p, nil
}

func (m *MemoryStore) GetPatient(_ context.Context, id string) (Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[id]
	if !ok {
		return Patient{}, fmt.Errorf("%w: patient %s", auth.ErrNotFound, id)
	}
	return p, nil
}

func (m *MemoryStore) SearchPatients(_ context.Context, query string, limit int) ([]Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > SearchLimit {
		limit = SearchLimit
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]Patient, 0)
	for _, p := range m.records {
		if matchesQuery(p, needle) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FamilyName != out[j].FamilyName {
			return out[i].FamilyName < out[j].FamilyName
		}
		return out[i].GivenName < out[j].GivenName
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesQuery(p Patient, needle string) bool {
	for _, field := range []string{p.FamilyName, p.GivenName, p.Email, p.Phone, p.ExternalID} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CandidatesFor(_ context.Context, fields IntakeFields) ([]Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := NormalizeEmail(fields.Email)
	phone := NormalizePhone(fields.Phone)
	dob, _ := fields.parseDOB()

	out := make([]Patient, 0)
	for _, p := range m.records {
		if !p.Active {
			continue
		}
		switch {
		case email != "" && NormalizeEmail(p.Email) == email:
		case phone != "" && NormalizePhone(p.Phone) == phone:
		case dob != nil && p.DOB != nil && dob.Equal(*p.DOB):
		default:
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
