package llm

import (
	"context"
	"fmt"
)

// MockResponse is one scripted reply, or a scripted failure when Err is set.
type MockResponse struct {
	Content string
	Err     error
}

// MockClient replays scripted responses in order. Structured and plain JSON
// calls draw from the same script, matching how the generator walks its
// retry states. Once the script runs out every call fails.
type MockClient struct {
	Script          []MockResponse
	JSONCalls       int
	StructuredCalls int
	next            int
}

func (m *MockClient) ChatJSON(context.Context, string, string) (string, error) {
	m.JSONCalls++
	return m.take()
}

func (m *MockClient) ChatStructured(context.Context, string, string, string, any) (string, error) {
	m.StructuredCalls++
	return m.take()
}

func (m *MockClient) take() (string, error) {
	if m.next >= len(m.Script) {
		return "", fmt.Errorf("llm mock: script exhausted after %d calls", m.next)
	}
	resp := m.Script[m.next]
	m.next++
	if resp.Err != nil {
		return "", resp.Err
	}
	return resp.Content, nil
}
