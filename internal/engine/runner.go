package engine

import (
	"context"

	"github.com/garcomlabs/garcom/internal/debounce"
)

// Runner adapts the engine to the debounce queue's dispatch contract.
type Runner struct {
	engine *Engine
}

// NewRunner wraps the engine for debounce dispatch.
func NewRunner(e *Engine) *Runner {
	return &Runner{engine: e}
}

// Run processes the compiled burst as one turn and returns the reply text.
func (r *Runner) Run(ctx context.Context, key debounce.Key, compiledTurn string) (string, error) {
	result, err := r.engine.ProcessTurn(ctx, key, compiledTurn)
	if err != nil {
		return "", err
	}
	return result.Reply, nil
}
