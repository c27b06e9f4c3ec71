package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/garcomlabs/garcom/internal/config"
	"github.com/garcomlabs/garcom/internal/llm"
	"github.com/garcomlabs/garcom/internal/log"
	"github.com/garcomlabs/garcom/internal/policy"
	"github.com/garcomlabs/garcom/internal/tools"
)

// initGenkit initializes Genkit with the configured model provider and
// registers the tool schemas so the model can emit typed tool calls.
func initGenkit(ctx context.Context, cfg *config.Config, registry *tools.Registry, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	default:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		logger.Info("initialized Genkit with googleai provider",
			"model", cfg.ModelName)
	}

	registry.AttachGenkit(g)
	return g, nil
}

// newProvider builds the production LLM provider with retry, circuit
// breaker, and a conservative client-side rate limit.
func newProvider(g *genkit.Genkit, cfg *config.Config, logger log.Logger) *llm.GenkitProvider {
	return llm.NewGenkitProvider(g, cfg.FullModelName(), logger,
		llm.WithTemperature(cfg.Temperature),
		llm.WithTimeout(60*time.Second),
		llm.WithRateLimit(5, 10),
	)
}

// buildRegistry creates the tool registry with restaurant description
// overrides applied.
func buildRegistry(cfg *config.Config, logger log.Logger) *tools.Registry {
	registry := tools.NewDefaultRegistry()
	registry.ApplyOverrides(cfg.Orchestration.ToolOverrides, logger)
	return registry
}

// buildPolicy creates the orchestration policy, falling back to the
// built-in intent mapping when the config defines none. An orchestration
// entry naming a tool the registry does not know fails startup instead of
// surfacing as a silently unusable intent.
func buildPolicy(cfg *config.Config, registry *tools.Registry, logger log.Logger) (*policy.Policy, error) {
	orchestration := cfg.Orchestration
	if len(orchestration.Intents) == 0 {
		orchestration = config.DefaultOrchestration()
		orchestration.ToolOverrides = cfg.Orchestration.ToolOverrides
	}
	if err := orchestration.ValidateTools(registry.Has); err != nil {
		return nil, fmt.Errorf("validating orchestration config: %w", err)
	}
	return policy.New(orchestration, registry, logger), nil
}
