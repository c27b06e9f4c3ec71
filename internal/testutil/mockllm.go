// Package testutil provides shared testing utilities for the garcom project.
//
// This package contains reusable test infrastructure that can be used across
// multiple packages, following the pattern of Go standard library packages
// like net/http/httptest and testing/iotest.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/garcomlabs/garcom/internal/llm"
)

// MockProvider provides deterministic model responses for testing the
// session engine without a live model. It matches the compiled turn
// against registered patterns and returns the corresponding response.
//
// Thread-safe for concurrent use.
type MockProvider struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	err      error
	calls    []MockCall
}

type mockRule struct {
	pattern string // substring match against the turn, lowercased
	text    string
	tools   []llm.ToolCall
}

// MockCall records a single generation request seen by the mock.
type MockCall struct {
	System    string
	Turn      string
	ToolNames []string
	Response  string
}

// NewMockProvider creates a mock provider with the given fallback text,
// returned when no pattern matches.
func NewMockProvider(fallback string) *MockProvider {
	return &MockProvider{fallback: fallback}
}

// AddResponse registers a pattern that yields a plain text response.
// Patterns are checked in registration order; first match wins.
func (m *MockProvider) AddResponse(pattern, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), text: text})
}

// AddToolResponse registers a pattern that yields tool calls alongside text.
func (m *MockProvider) AddToolResponse(pattern, text string, tools ...llm.ToolCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), text: text, tools: tools})
}

// FailWith makes every subsequent Generate return err. Pass nil to recover.
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns a copy of all recorded generation requests.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// LastCall returns the most recent call, or nil when none happened.
func (m *MockProvider) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Generate implements llm.Provider.
func (m *MockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	var matched *mockRule
	lower := strings.ToLower(req.Turn)
	for i := range m.rules {
		if strings.Contains(lower, m.rules[i].pattern) {
			matched = &m.rules[i]
			break
		}
	}

	text := m.fallback
	var tools []llm.ToolCall
	if matched != nil {
		text = matched.text
		tools = matched.tools
	}

	m.calls = append(m.calls, MockCall{
		System:    req.System,
		Turn:      req.Turn,
		ToolNames: append([]string(nil), req.ToolNames...),
		Response:  text,
	})

	return &llm.Response{Text: text, ToolCalls: tools}, nil
}
