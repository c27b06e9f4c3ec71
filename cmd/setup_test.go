package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garcomlabs/garcom/internal/config"
	"github.com/garcomlabs/garcom/internal/log"
)

func TestBuildPolicyRejectsUnknownToolName(t *testing.T) {
	cfg := &config.Config{
		Orchestration: config.OrchestrationConfig{
			Intents: map[string]config.IntentPolicy{
				"order_item": {AllowedTools: []string{"add_to_cart", "teleport_pizza"}},
			},
		},
	}

	registry := buildRegistry(cfg, log.NewNop())
	_, err := buildPolicy(cfg, registry, log.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrUnknownTool)
	assert.Contains(t, err.Error(), "teleport_pizza")
}

func TestBuildPolicyAcceptsDefaultOrchestration(t *testing.T) {
	cfg := &config.Config{}

	registry := buildRegistry(cfg, log.NewNop())
	pol, err := buildPolicy(cfg, registry, log.NewNop())
	require.NoError(t, err)

	res := pol.ResolveAllowedTools("order_item")
	assert.Contains(t, res.Names(), "add_to_cart")
}
