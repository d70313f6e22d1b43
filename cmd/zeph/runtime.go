package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/osamaelmahalawi/zeph/internal/a2a"
	"github.com/osamaelmahalawi/zeph/internal/agent"
	"github.com/osamaelmahalawi/zeph/internal/channels"
	"github.com/osamaelmahalawi/zeph/internal/config"
	"github.com/osamaelmahalawi/zeph/internal/llm"
	"github.com/osamaelmahalawi/zeph/internal/mcp"
	"github.com/osamaelmahalawi/zeph/internal/memory"
	"github.com/osamaelmahalawi/zeph/internal/memory/vector"
	"github.com/osamaelmahalawi/zeph/internal/skills"
	"github.com/osamaelmahalawi/zeph/internal/tools"
	"github.com/osamaelmahalawi/zeph/internal/tools/filter"
)

// runtimeParts holds the shared collaborators behind one engine.
type runtimeParts struct {
	cfg    *config.Config
	store  *memory.SQLiteStore
	router *llm.Router
	mcp    *mcp.Manager

	buildEngine func(ch channels.Channel) *agent.Engine

	close func()
}

// buildRuntime wires the stores, providers, skills, and tool chain.
func buildRuntime(cfg *config.Config) (*runtimeParts, error) {
	vault, err := config.NewEnvVault(".env")
	if err != nil {
		return nil, err
	}

	store, err := memory.NewSQLiteStore(cfg.Memory.SQLitePath)
	if err != nil {
		return nil, err
	}

	providers, err := buildProviders(cfg, vault)
	if err != nil {
		store.Close()
		return nil, err
	}
	router := llm.NewRouter(providers, func(llm.StatusEvent) { agent.RecordProviderFallback() })

	// Vector store: Qdrant when configured, embedded otherwise.
	var vectors vector.Store = vector.NewChromemStore()
	if cfg.Memory.QdrantURL != "" {
		host, port := splitHostPort(cfg.Memory.QdrantURL)
		qdrant, err := vector.NewQdrantStore(vector.QdrantConfig{Host: host, Port: port})
		if err != nil {
			slog.Warn("qdrant unavailable, using embedded vector store", "error", err)
		} else {
			vectors = qdrant
		}
	}

	embed := router.Embed
	var semantic *memory.Semantic
	if cfg.Memory.SemanticEnabled {
		semantic = memory.NewSemantic(store, vectors, embedderFunc(embed), cfg.LLM.EmbeddingModel)
	}

	registry, err := skills.NewRegistry(cfg.Skills.Dirs)
	if err != nil {
		store.Close()
		return nil, err
	}
	matcher := skills.NewInMemoryMatcher(embed)
	syncCtx, cancelSync := context.WithCancel(context.Background())
	if err := matcher.Sync(syncCtx, registry.All()); err != nil {
		slog.Warn("initial skill matcher sync failed", "error", err)
	}
	if cfg.Skills.Watch {
		fingerprint := registry.Fingerprint()
		if err := registry.Watch(func() {
			if fp := registry.Fingerprint(); fp != fingerprint {
				fingerprint = fp
				_ = matcher.Sync(syncCtx, registry.All())
			}
		}); err != nil {
			slog.Warn("skill watcher unavailable", "error", err)
		}
	}

	mcpManager := mcp.NewManager(cfg.MCP.MaxDynamicServers, cfg.MCP.AllowedCommands, mcp.EmbedFunc(embed))

	parts := &runtimeParts{
		cfg:    cfg,
		store:  store,
		router: router,
		mcp:    mcpManager,
	}

	parts.buildEngine = func(ch channels.Channel) *agent.Engine {
		policy := tools.NewPermissionPolicy()
		policy.SetAutonomy(tools.AutonomyLevel(cfg.Tools.Autonomy))
		pipeline := filter.NewPipeline(cfg.Tools.SecurityPatterns)

		wd, _ := os.Getwd()
		inner := tools.Chain(
			tools.NewShellExecutor(policy, pipeline, cfg.Tools.Timeout, wd),
			tools.NewFileExecutor(policy, wd),
			tools.NewWebScrapeExecutor(cfg.Tools.Timeout, 0),
			mcp.NewExecutor(mcpManager, policy),
		)
		gate := tools.NewTrustGate(inner, policy)

		return agent.New(agent.Options{
			Config: agent.Config{
				MaxToolIterations:      cfg.Tools.MaxIterations,
				SummarizationThreshold: cfg.Memory.SummarizationThreshold,
				CompactionThreshold:    cfg.Memory.CompactionThreshold,
				CompactionPreserveTail: cfg.Memory.CompactionPreserveTail,
				PruneProtectTokens:     cfg.Memory.PruneProtectTokens,
				RecallLimit:            cfg.Memory.RecallLimit,
				ScoreThreshold:         cfg.Memory.ScoreThreshold,
				CrossSessionThreshold:  cfg.Memory.CrossSessionThreshold,
				SkillsMaxActive:        cfg.Skills.MaxActive,
				OSFamily:               runtime.GOOS,
				ModelName:              cfg.LLM.Model,
				IndexMaxChunks:         cfg.Index.MaxChunks,
			},
			Store:    store,
			TrustDB:  store,
			Semantic: semantic,
			Router:   router,
			Gate:     gate,
			Inner:    inner,
			Policy:   policy,
			Registry: registry,
			Matcher:  matcher,
			Trust:    skills.NewTrustManager(store),
			MCP:      mcpManager,
			Budget:   agent.NewContextBudget(cfg.LLM.ContextWindow, cfg.LLM.ReserveRatio),
			Ledger:   agent.NewCostLedger(budgetCents(cfg)),
			Channel:  ch,
		})
	}

	parts.close = func() {
		cancelSync()
		mcpManager.Close()
		registry.Close()
		vectors.Close()
		store.Close()
	}
	return parts, nil
}

func budgetCents(cfg *config.Config) int {
	if !cfg.Cost.Enabled {
		return 0
	}
	return cfg.Cost.BudgetCents
}

// embedderFunc adapts the router's Embed to the memory interface.
type embedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f embedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

func buildProviders(cfg *config.Config, vault config.VaultProvider) ([]llm.Provider, error) {
	names := append([]string{cfg.LLM.Provider}, cfg.LLM.Fallbacks...)
	var providers []llm.Provider
	for _, name := range names {
		switch name {
		case "anthropic":
			key, err := vault.Secret("ANTHROPIC_API_KEY")
			if err != nil {
				slog.Warn("anthropic provider skipped", "error", err)
				continue
			}
			p, err := llm.NewAnthropicProvider(llm.AnthropicConfig{
				APIKey:  key,
				Model:   cfg.LLM.Model,
				Window:  cfg.LLM.ContextWindow,
				Timeout: cfg.LLM.Timeout,
			})
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case "openai", "compatible":
			key, _ := vault.Secret("OPENAI_API_KEY")
			p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
				APIKey:         key,
				BaseURL:        cfg.LLM.BaseURL,
				Name:           name,
				Model:          cfg.LLM.Model,
				EmbeddingModel: cfg.LLM.EmbeddingModel,
				Window:         cfg.LLM.ContextWindow,
				Timeout:        cfg.LLM.Timeout,
			})
			if err != nil {
				slog.Warn("provider skipped", "provider", name, "error", err)
				continue
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no usable providers configured")
	}
	return providers, nil
}

func splitHostPort(raw string) (string, int) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw, 0
	}
	port := 0
	if p := parsed.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	}
	return parsed.Hostname(), port
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runWithChannel(cmd *cobra.Command, configPath string, build func(*config.Config) (channels.Channel, error)) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	parts, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer parts.close()

	ch, err := build(cfg)
	if err != nil {
		return err
	}
	defer ch.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	engine := parts.buildEngine(ch)
	if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	parts, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer parts.close()

	vault, err := config.NewEnvVault(".env")
	if err != nil {
		return err
	}
	token, err := config.ResolveSecret(vault, cfg.A2A.BearerToken)
	if err != nil {
		token = cfg.A2A.BearerToken
	}

	bridge := a2a.NewBridgeChannel()
	engine := parts.buildEngine(bridge)

	// One conversation at a time per engine instance.
	var engineMu sync.Mutex
	processor := a2a.ProcessorFunc(func(ctx context.Context, _ string, msg a2a.Message) (a2a.Message, []a2a.Artifact, error) {
		engineMu.Lock()
		defer engineMu.Unlock()
		bridge.Take()
		if err := engine.HandleMessage(ctx, msg.Text()); err != nil {
			return a2a.Message{}, nil, err
		}
		return a2a.TextMessage("assistant", bridge.Take()), nil, nil
	})

	card := a2a.AgentCard{
		Name:               "zeph",
		Description:        "Tool-using conversational agent",
		URL:                cfg.A2A.PublicURL,
		Version:            "1.0.0",
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
	}

	server := a2a.NewServer(a2a.ServerConfig{
		Addr:        fmt.Sprintf("%s:%d", cfg.A2A.Host, cfg.A2A.Port),
		BearerToken: token,
		RateLimit:   cfg.A2A.RateLimit,
		MaxBodySize: cfg.A2A.MaxBodySize,
		Timeout:     cfg.A2A.Timeout,
	}, card, processor)

	ctx, cancel := signalContext(cmd)
	defer cancel()
	return server.Start(ctx)
}
