package github

import (
	"context"
	"fmt"
	"sync"
)

// MockAPI implements the API interface for testing.
type MockAPI struct {
	mu      sync.Mutex
	Runners []Runner
	Deleted []int64

	TokenFn   func(ctx context.Context, org, repo string) (string, error)
	ListErr   error
	DeleteErr error

	tokenCounter int
}

func NewMockAPI() *MockAPI {
	return &MockAPI{}
}

func (m *MockAPI) CreateRegistrationToken(ctx context.Context, org, repo string) (string, error) {
	if m.TokenFn != nil {
		return m.TokenFn(ctx, org, repo)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenCounter++
	return fmt.Sprintf("AABBCC%04d", m.tokenCounter), nil
}

func (m *MockAPI) ListRunners(ctx context.Context, org, repo string) ([]Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]Runner, len(m.Runners))
	copy(out, m.Runners)
	return out, nil
}

// SetListErr swaps the injected listing error; safe to call while a loop is
// polling the mock.
func (m *MockAPI) SetListErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListErr = err
}

func (m *MockAPI) DeleteRunner(ctx context.Context, org, repo string, id int64) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.Runners {
		if r.ID == id {
			m.Runners = append(m.Runners[:i], m.Runners[i+1:]...)
			m.Deleted = append(m.Deleted, id)
			return nil
		}
	}
	return &APIError{StatusCode: 404, Message: fmt.Sprintf("runner %d not found", id)}
}
