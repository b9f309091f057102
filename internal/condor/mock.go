package condor

import (
	"context"
	"sync"
)

// MockScheduler implements the Scheduler interface for testing.
type MockScheduler struct {
	mu          sync.Mutex
	Batches     []Batch
	Submitted   []string
	DAGs        []string
	MaxRunning  map[string]int
	Removed     []string
	nextCluster int

	SubmitErr error
	QueryErr  error
	EditErr   error
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{MaxRunning: make(map[string]int)}
}

func (m *MockScheduler) Submit(ctx context.Context, submitFile string) (int, error) {
	if m.SubmitErr != nil {
		return 0, m.SubmitErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCluster++
	m.Submitted = append(m.Submitted, submitFile)
	return m.nextCluster, nil
}

func (m *MockScheduler) SubmitDAG(ctx context.Context, dagFile string) (int, error) {
	if m.SubmitErr != nil {
		return 0, m.SubmitErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCluster++
	m.DAGs = append(m.DAGs, dagFile)
	return m.nextCluster, nil
}

func (m *MockScheduler) ActiveBatches(ctx context.Context) ([]Batch, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Batch, len(m.Batches))
	copy(out, m.Batches)
	return out, nil
}

func (m *MockScheduler) SetMaxRunning(ctx context.Context, batchName string, n int) error {
	if m.EditErr != nil {
		return m.EditErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MaxRunning[batchName] = n
	return nil
}

func (m *MockScheduler) Remove(ctx context.Context, batchName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, batchName)
	return nil
}
