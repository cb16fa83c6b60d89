package dialogflow

import (
	"context"
	"sync"
)

// MockCall records one Send on a MockClient.
type MockCall struct {
	SessionID string
	Request   Request
}

// MockClient is a test double for Client.
type MockClient struct {
	SendFunc func(ctx context.Context, sessionID string, req Request) (*Result, error)

	mu    sync.Mutex
	calls []MockCall
}

func (m *MockClient) Send(ctx context.Context, sessionID string, req Request) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{SessionID: sessionID, Request: req})
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, sessionID, req)
	}
	return &Result{Parameters: map[string]any{}}, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}
