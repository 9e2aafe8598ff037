// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"

	"duckflow/internal/domain"
)

// === Store Mock ===

// MockStore implements domain.Store for testing. Exec calls, including those
// made inside InTx, are recorded in order.
type MockStore struct {
	DialectValue domain.Dialect
	ExecFn       func(ctx context.Context, stmt string) (int64, error)
	QueryFn      func(ctx context.Context, stmt string) (*domain.ResultSet, error)
	InTxFn       func(ctx context.Context, fn func(tx domain.Execer) error) error
	CloseFn      func() error

	mu         sync.Mutex
	statements []string
	commits    int
	rollbacks  int
}

// Exec implements the interface method for testing.
func (m *MockStore) Exec(ctx context.Context, stmt string) (int64, error) {
	m.mu.Lock()
	m.statements = append(m.statements, stmt)
	m.mu.Unlock()
	if m.ExecFn != nil {
		return m.ExecFn(ctx, stmt)
	}
	return 0, nil
}

// Query implements the interface method for testing.
func (m *MockStore) Query(ctx context.Context, stmt string) (*domain.ResultSet, error) {
	if m.QueryFn != nil {
		return m.QueryFn(ctx, stmt)
	}
	panic("unexpected call to MockStore.Query")
}

// InTx implements the interface method for testing. Without InTxFn it runs
// fn against the mock itself and counts the outcome as commit or rollback.
func (m *MockStore) InTx(ctx context.Context, fn func(tx domain.Execer) error) error {
	if m.InTxFn != nil {
		return m.InTxFn(ctx, fn)
	}
	err := fn(m)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.rollbacks++
	} else {
		m.commits++
	}
	return err
}

// Dialect implements the interface method for testing.
func (m *MockStore) Dialect() domain.Dialect {
	if m.DialectValue == "" {
		return domain.DialectDuckDB
	}
	return m.DialectValue
}

// Close implements the interface method for testing.
func (m *MockStore) Close() error {
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	return nil
}

// Statements returns a copy of the executed statements.
func (m *MockStore) Statements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.statements...)
}

// Commits returns the number of transactions that committed.
func (m *MockStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Rollbacks returns the number of transactions that rolled back.
func (m *MockStore) Rollbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks
}

// === Source Prober Mock ===

// MockProber implements domain.SourceProber for testing.
type MockProber struct {
	ProbeFn func(ctx context.Context, location string, cred *domain.StorageCredential) error

	mu     sync.Mutex
	probed []string
}

// Probe implements the interface method for testing.
func (m *MockProber) Probe(ctx context.Context, location string, cred *domain.StorageCredential) error {
	m.mu.Lock()
	m.probed = append(m.probed, location)
	m.mu.Unlock()
	if m.ProbeFn != nil {
		return m.ProbeFn(ctx, location, cred)
	}
	return nil
}

// Probed returns the locations probed so far.
func (m *MockProber) Probed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.probed...)
}

// === Credential Mocks ===

// MockCredentialResolver implements domain.CredentialResolver for testing.
type MockCredentialResolver struct {
	ResolveFn func(ctx context.Context, ref string) (*domain.StorageCredential, error)
}

// Resolve implements the interface method for testing.
func (m *MockCredentialResolver) Resolve(ctx context.Context, ref string) (*domain.StorageCredential, error) {
	if m.ResolveFn != nil {
		return m.ResolveFn(ctx, ref)
	}
	return nil, nil
}

// MockCredentialRepository implements domain.StorageCredentialRepository for testing.
type MockCredentialRepository struct {
	UpsertFn    func(ctx context.Context, cred *domain.StorageCredential) (*domain.StorageCredential, error)
	GetByNameFn func(ctx context.Context, name string) (*domain.StorageCredential, error)
	ListFn      func(ctx context.Context, page domain.PageRequest) ([]domain.StorageCredential, int64, error)
	DeleteFn    func(ctx context.Context, name string) error
}

// Upsert implements the interface method for testing.
func (m *MockCredentialRepository) Upsert(ctx context.Context, cred *domain.StorageCredential) (*domain.StorageCredential, error) {
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, cred)
	}
	panic("unexpected call to MockCredentialRepository.Upsert")
}

// GetByName implements the interface method for testing.
func (m *MockCredentialRepository) GetByName(ctx context.Context, name string) (*domain.StorageCredential, error) {
	if m.GetByNameFn != nil {
		return m.GetByNameFn(ctx, name)
	}
	panic("unexpected call to MockCredentialRepository.GetByName")
}

// List implements the interface method for testing.
func (m *MockCredentialRepository) List(ctx context.Context, page domain.PageRequest) ([]domain.StorageCredential, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, page)
	}
	panic("unexpected call to MockCredentialRepository.List")
}

// Delete implements the interface method for testing.
func (m *MockCredentialRepository) Delete(ctx context.Context, name string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, name)
	}
	panic("unexpected call to MockCredentialRepository.Delete")
}

// === Pipeline Run Repository Mock ===

// MockRunRepository implements domain.PipelineRunRepository for testing.
// Without function fields it keeps runs and task runs in memory.
type MockRunRepository struct {
	CreateRunFn       func(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error)
	UpdateRunStatusFn func(ctx context.Context, id string, status domain.RunStatus, errMsg *string) error
	SaveTaskRunFn     func(ctx context.Context, tr *domain.TaskRun) error

	mu       sync.Mutex
	runs     map[string]*domain.PipelineRun
	order    []string
	taskRuns map[string]map[string]domain.TaskRun
}

func (m *MockRunRepository) init() {
	if m.runs == nil {
		m.runs = make(map[string]*domain.PipelineRun)
		m.taskRuns = make(map[string]map[string]domain.TaskRun)
	}
}

// CreateRun implements the interface method for testing.
func (m *MockRunRepository) CreateRun(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error) {
	if m.CreateRunFn != nil {
		return m.CreateRunFn(ctx, run)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	cp := *run
	if cp.ID == "" {
		cp.ID = domain.NewID()
	}
	if cp.Status == "" {
		cp.Status = domain.RunStatusPending
	}
	m.runs[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	out := cp
	return &out, nil
}

// GetRun implements the interface method for testing.
func (m *MockRunRepository) GetRun(_ context.Context, id string) (*domain.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	r, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrNotFound("pipeline run %q not found", id)
	}
	out := *r
	return &out, nil
}

// ListRuns implements the interface method for testing.
func (m *MockRunRepository) ListRuns(_ context.Context, filter domain.PipelineRunFilter) ([]domain.PipelineRun, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	var out []domain.PipelineRun
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.runs[m.order[i]]
		if filter.Pipeline != nil && r.Pipeline != *filter.Pipeline {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, int64(len(out)), nil
}

// UpdateRunStatus implements the interface method for testing.
func (m *MockRunRepository) UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, errMsg *string) error {
	if m.UpdateRunStatusFn != nil {
		return m.UpdateRunStatusFn(ctx, id, status, errMsg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	r, ok := m.runs[id]
	if !ok {
		return domain.ErrNotFound("pipeline run %q not found", id)
	}
	r.Status = status
	r.ErrorMessage = errMsg
	return nil
}

// CountActiveRuns implements the interface method for testing.
func (m *MockRunRepository) CountActiveRuns(_ context.Context, pipeline string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	var n int64
	for _, r := range m.runs {
		if r.Pipeline == pipeline && (r.Status == domain.RunStatusPending || r.Status == domain.RunStatusRunning) {
			n++
		}
	}
	return n, nil
}

// FailActiveRuns implements the interface method for testing.
func (m *MockRunRepository) FailActiveRuns(_ context.Context, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	var n int64
	for _, r := range m.runs {
		if r.Status == domain.RunStatusPending || r.Status == domain.RunStatusRunning {
			r.Status = domain.RunStatusFailed
			msg := reason
			r.ErrorMessage = &msg
			n++
		}
	}
	return n, nil
}

// SaveTaskRun implements the interface method for testing.
func (m *MockRunRepository) SaveTaskRun(ctx context.Context, tr *domain.TaskRun) error {
	if m.SaveTaskRunFn != nil {
		return m.SaveTaskRunFn(ctx, tr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if m.taskRuns[tr.RunID] == nil {
		m.taskRuns[tr.RunID] = make(map[string]domain.TaskRun)
	}
	m.taskRuns[tr.RunID][tr.TaskName] = *tr
	return nil
}

// ListTaskRuns implements the interface method for testing.
func (m *MockRunRepository) ListTaskRuns(_ context.Context, runID string) ([]domain.TaskRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	out := make([]domain.TaskRun, 0, len(m.taskRuns[runID]))
	for _, tr := range m.taskRuns[runID] {
		out = append(out, tr)
	}
	return out, nil
}
