package generation

import (
	"context"
	"sync"
)

// MockClient is a scriptable Client used in tests across packages.
type MockClient struct {
	mu sync.Mutex

	// CompleteFunc overrides behavior when set.
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)

	// Response is returned when CompleteFunc is nil.
	Response string

	ModelName string
	CostIn1K  float64
	CostOut1K float64

	Calls []MockCall
}

// MockCall records one Complete invocation.
type MockCall struct {
	SystemPrompt string
	UserPrompt   string
}

// Complete records the call and returns the scripted response.
func (m *MockClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, systemPrompt, userPrompt)
	}
	return &Completion{
		Text:         m.Response,
		InputTokens:  len(systemPrompt+userPrompt) / 4,
		OutputTokens: len(m.Response) / 4,
		Model:        m.Model(),
	}, nil
}

// Model returns the configured mock model name.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock"
	}
	return m.ModelName
}

// Cost returns the dollar cost for the given token counts.
func (m *MockClient) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*m.CostIn1K + float64(outputTokens)/1000*m.CostOut1K
}

// CallCount returns the number of Complete invocations.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
