package adapter

import (
	"context"
	"sync"

	"github.com/aionlabs/aion/engine/core"
)

// MockClient is a scripted Client for tests: responses and errors are
// dequeued per call, and every request is recorded.
type MockClient struct {
	mu        sync.Mutex
	provider  core.ProviderName
	model     string
	responses []*Response
	errs      []error
	Requests  []*Request
}

func NewMockClient(provider core.ProviderName, model string) *MockClient {
	return &MockClient{provider: provider, model: model}
}

// QueueResponse enqueues a canned completion with estimated token counts.
func (m *MockClient) QueueResponse(content string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, &Response{
		Content:      content,
		Model:        m.model,
		Provider:     m.provider,
		InputTokens:  100,
		OutputTokens: len(content) / 4,
		TotalTokens:  100 + len(content)/4,
		FinishReason: "stop",
	})
	m.errs = append(m.errs, nil)
	return m
}

// QueueError enqueues a failure for the next call.
func (m *MockClient) QueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, nil)
	m.errs = append(m.errs, err)
	return m
}

func (m *MockClient) Complete(_ context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if len(m.responses) == 0 {
		return &Response{
			Content:      "ok",
			Model:        m.model,
			Provider:     m.provider,
			InputTokens:  10,
			OutputTokens: 1,
			TotalTokens:  11,
			FinishReason: "stop",
		}, nil
	}
	resp, err := m.responses[0], m.errs[0]
	m.responses = m.responses[1:]
	m.errs = m.errs[1:]
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Calls reports how many completions were requested.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
