package storage

import (
	"sync"
	"time"

	"github.com/vlied266/work-manager-sub001/pkg/models"
)

// mockStore implements Store with in-memory storage. Transactions are
// pass-through; CAS semantics on UpdateRun are preserved so concurrency tests
// behave like the real store.
type mockStore struct {
	mu         sync.Mutex
	procedures map[string]models.Procedure
	runs       map[string]models.Run
}

func NewMockStore() Store {
	return &mockStore{
		procedures: make(map[string]models.Procedure),
		runs:       make(map[string]models.Run),
	}
}

func (m *mockStore) Begin() (Store, error) { return m, nil }
func (m *mockStore) Commit() error         { return nil }
func (m *mockStore) Rollback() error       { return nil }
func (m *mockStore) Close() error          { return nil }

func (m *mockStore) SaveProcedure(p models.Procedure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = time.Now()
	m.procedures[p.ID] = p
	return nil
}

func (m *mockStore) GetProcedure(id string) (models.Procedure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procedures[id]
	if !ok {
		return models.Procedure{}, ErrNotFound
	}
	return p, nil
}

func (m *mockStore) ListProcedures(orgID string) ([]models.Procedure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Procedure
	for _, p := range m.procedures {
		if orgID == "" || p.OrgID == orgID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) CreateRun(r models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; ok {
		return ErrConflict
	}
	r.Version = 1
	m.runs[r.ID] = r
	return nil
}

func (m *mockStore) GetRun(id string) (models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return models.Run{}, ErrNotFound
	}
	return r, nil
}

func (m *mockStore) UpdateRun(r models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.runs[r.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != r.Version {
		return ErrConflict
	}
	r.Version++
	m.runs[r.ID] = r
	return nil
}

func (m *mockStore) ListRuns(procedureID string) ([]models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Run
	for _, r := range m.runs {
		if procedureID == "" || r.ProcedureID == procedureID {
			out = append(out, r)
		}
	}
	return out, nil
}
