// Package llm wraps the Genkit model call behind a small provider
// interface so the engine can be tested without a live model.
package llm

import "context"

// ToolCall is one structured tool invocation returned by the model,
// separate from its prose reply.
type ToolCall struct {
	// Ref correlates the call with its result when continuing the
	// conversation.
	Ref   string
	Name  string
	Input any
}

// Request is one model invocation: system instructions, the compiled
// customer turn, and the subset of registered tools the model may call.
type Request struct {
	System    string
	Turn      string
	ToolNames []string
}

// Response carries the model's reply and any tool calls it requested.
// The caller executes the tool calls; the provider never does.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider executes one bounded model call.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}
