// Package policy decides which tools an LLM call may be offered.
//
// The allow-list is enforced up front: only tools resolved here are included
// in the function-calling schema sent to the model. The engine additionally
// rejects any call the model returns for a tool that was not offered.
package policy

import (
	"github.com/garcomlabs/garcom/internal/config"
	"github.com/garcomlabs/garcom/internal/log"
	"github.com/garcomlabs/garcom/internal/tools"
)

// defaultTools is the fail-closed fallback for unknown intents. Browsing
// and cart inspection only; nothing that mutates or finalizes.
var defaultTools = []string{tools.NameSearchMenu, tools.NameShowCart}

// Resolution is the outcome of an intent lookup: the tools the model may
// see and the hint injected into the prompt.
type Resolution struct {
	Tools []*tools.Definition
	Hint  string
}

// Names returns the allowed tool names in order.
func (r *Resolution) Names() []string {
	names := make([]string, len(r.Tools))
	for i, d := range r.Tools {
		names[i] = d.Name()
	}
	return names
}

// Allowed reports whether the named tool is in the resolution.
func (r *Resolution) Allowed(name string) bool {
	for _, d := range r.Tools {
		if d.Name() == name {
			return true
		}
	}
	return false
}

// Policy maps classified intents to tool allow-lists. Built once at
// startup from the orchestration config; read-only afterwards.
type Policy struct {
	registry *tools.Registry
	intents  map[string]resolved
	logger   log.Logger
}

type resolved struct {
	toolNames []string
	hint      string
}

// New builds a policy from the orchestration config and the tool registry.
// Intent entries referencing unknown tools have those names dropped with a
// warning; save-time validation should have caught them already.
func New(cfg config.OrchestrationConfig, registry *tools.Registry, logger log.Logger) *Policy {
	p := &Policy{
		registry: registry,
		intents:  make(map[string]resolved, len(cfg.Intents)),
		logger:   logger.With("component", "policy"),
	}
	for intent, entry := range cfg.Intents {
		var names []string
		for _, name := range entry.AllowedTools {
			if !registry.Has(name) {
				p.logger.Warn("dropping unknown tool from intent policy",
					"intent", intent, "tool", name)
				continue
			}
			names = append(names, name)
		}
		p.intents[intent] = resolved{toolNames: names, hint: entry.DecisionHint}
	}
	return p
}

// ResolveAllowedTools returns the tool subset and hint for the intent.
// Unknown intents fall back to the minimal default set, never to all tools.
func (p *Policy) ResolveAllowedTools(intent string) *Resolution {
	entry, ok := p.intents[intent]
	if !ok {
		p.logger.Debug("intent not configured, using default tool set", "intent", intent)
		entry = resolved{toolNames: defaultTools}
	}
	res := &Resolution{Hint: entry.hint}
	for _, name := range entry.toolNames {
		if d, ok := p.registry.Lookup(name); ok {
			res.Tools = append(res.Tools, d)
		}
	}
	return res
}
