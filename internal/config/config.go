// Package config loads the layered zeph configuration: built-in
// defaults, an optional YAML file, then ZEPH_-prefixed environment
// overrides. Every setting has a default so a bare binary starts.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMConfig selects and tunes the model providers.
type LLMConfig struct {
	// Provider is the primary backend: anthropic, openai, compatible.
	Provider string `yaml:"provider"`

	// Fallbacks are tried in order after the primary fails.
	Fallbacks []string `yaml:"fallbacks"`

	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`

	// BaseURL overrides the API endpoint for OpenAI-compatible servers
	// (Ollama, vLLM, LM Studio).
	BaseURL string `yaml:"base_url"`

	// ContextWindow is the token budget for one provider call.
	// 0 disables budgeting entirely.
	ContextWindow int `yaml:"context_window"`

	// ReserveRatio is the response-reserve slice of the window.
	ReserveRatio float64 `yaml:"reserve_ratio"`

	Timeout          time.Duration `yaml:"timeout"`
	EmbeddingTimeout time.Duration `yaml:"embedding_timeout"`
}

// MemoryConfig tunes the context memory hierarchy.
type MemoryConfig struct {
	SQLitePath      string `yaml:"sqlite_path"`
	QdrantURL       string `yaml:"qdrant_url"`
	SemanticEnabled bool   `yaml:"semantic_enabled"`

	// RecallLimit is the top-K for semantic recall queries.
	RecallLimit int `yaml:"recall_limit"`

	// ScoreThreshold drops recall hits below this cosine score;
	// cross-session recall uses CrossSessionThreshold.
	ScoreThreshold        float64 `yaml:"score_threshold"`
	CrossSessionThreshold float64 `yaml:"cross_session_threshold"`

	// SummarizationThreshold is the number of unsummarized messages
	// that triggers a background summary.
	SummarizationThreshold int `yaml:"summarization_threshold"`

	// CompactionThreshold is the overflow fraction of the
	// recent-history budget that triggers compaction.
	CompactionThreshold float64 `yaml:"compaction_threshold"`

	// CompactionPreserveTail messages stay verbatim after compaction.
	CompactionPreserveTail int `yaml:"compaction_preserve_tail"`

	// PruneProtectTokens shields recent tool output from pruning.
	PruneProtectTokens int `yaml:"prune_protect_tokens"`
}

// ToolsConfig tunes the tool execution substrate.
type ToolsConfig struct {
	MaxIterations   int           `yaml:"max_iterations"`
	Timeout         time.Duration `yaml:"timeout"`
	SummarizeOutput bool          `yaml:"summarize_output"`

	// SecurityPatterns are user extras always preserved by filters.
	SecurityPatterns []string `yaml:"security_patterns"`

	// Autonomy downgrades Ask to Allow for safe categories when
	// set to "high".
	Autonomy string `yaml:"autonomy"`
}

// SkillsConfig tunes the skill registry and matcher.
type SkillsConfig struct {
	Dirs      []string `yaml:"dirs"`
	MaxActive int      `yaml:"max_active"`
	Watch     bool     `yaml:"watch"`
}

// MCPConfig tunes dynamic MCP servers.
type MCPConfig struct {
	MaxDynamicServers int           `yaml:"max_dynamic_servers"`
	AllowedCommands   []string      `yaml:"allowed_commands"`
	Timeout           time.Duration `yaml:"timeout"`
}

// A2AConfig tunes the agent-to-agent server.
type A2AConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	PublicURL      string        `yaml:"public_url"`
	BearerToken    string        `yaml:"bearer_token"`
	RateLimit      int           `yaml:"rate_limit"`
	MaxBodySize    int64         `yaml:"max_body_size"`
	RequireTLS     bool          `yaml:"require_tls"`
	SSRFProtection bool          `yaml:"ssrf_protection"`
	Timeout        time.Duration `yaml:"timeout"`
}

// ChannelsConfig carries transport credentials. Secrets resolve
// through the vault provider; the YAML values are vault references or
// raw values for development.
type ChannelsConfig struct {
	TelegramToken   string `yaml:"telegram_token"`
	SlackBotToken   string `yaml:"slack_bot_token"`
	SlackAppToken   string `yaml:"slack_app_token"`
	DiscordToken    string `yaml:"discord_token"`
	TypingIndicator bool   `yaml:"typing_indicator"`
}

// CostConfig enables per-day spend tracking.
type CostConfig struct {
	Enabled     bool `yaml:"enabled"`
	BudgetCents int  `yaml:"budget_cents"`
}

// IndexConfig tunes code-index retrieval.
type IndexConfig struct {
	Enabled        bool    `yaml:"enabled"`
	MaxChunks      int     `yaml:"max_chunks"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// Config is the root configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Memory   MemoryConfig   `yaml:"memory"`
	Tools    ToolsConfig    `yaml:"tools"`
	Skills   SkillsConfig   `yaml:"skills"`
	MCP      MCPConfig      `yaml:"mcp"`
	A2A      A2AConfig      `yaml:"a2a"`
	Channels ChannelsConfig `yaml:"channels"`
	Cost     CostConfig     `yaml:"cost"`
	Index    IndexConfig    `yaml:"index"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:         "anthropic",
			Model:            "claude-sonnet-4-20250514",
			EmbeddingModel:   "text-embedding-3-small",
			ContextWindow:    32768,
			ReserveRatio:     0.2,
			Timeout:          120 * time.Second,
			EmbeddingTimeout: 30 * time.Second,
		},
		Memory: MemoryConfig{
			SQLitePath:             "zeph.db",
			QdrantURL:              "",
			SemanticEnabled:        true,
			RecallLimit:            5,
			ScoreThreshold:         0.35,
			CrossSessionThreshold:  0.55,
			SummarizationThreshold: 10,
			CompactionThreshold:    0.25,
			CompactionPreserveTail: 4,
			PruneProtectTokens:     2048,
		},
		Tools: ToolsConfig{
			MaxIterations:   5,
			Timeout:         60 * time.Second,
			SummarizeOutput: true,
		},
		Skills: SkillsConfig{
			MaxActive: 3,
		},
		MCP: MCPConfig{
			MaxDynamicServers: 8,
			Timeout:           30 * time.Second,
		},
		A2A: A2AConfig{
			Host:           "127.0.0.1",
			Port:           8484,
			RateLimit:      60,
			MaxBodySize:    1 << 20,
			SSRFProtection: true,
			Timeout:        60 * time.Second,
		},
		Channels: ChannelsConfig{
			TypingIndicator: true,
		},
		Cost: CostConfig{
			BudgetCents: 500,
		},
		Index: IndexConfig{
			MaxChunks:      12,
			ScoreThreshold: 0.3,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file
// at path, then environment overrides. An empty path skips the file
// layer; a missing file at a non-empty path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.LLM.ReserveRatio < 0 || c.LLM.ReserveRatio >= 1 {
		return fmt.Errorf("llm.reserve_ratio must be in [0,1), got %v", c.LLM.ReserveRatio)
	}
	if c.Tools.MaxIterations <= 0 {
		return fmt.Errorf("tools.max_iterations must be positive, got %d", c.Tools.MaxIterations)
	}
	if c.MCP.MaxDynamicServers < 0 {
		return fmt.Errorf("mcp.max_dynamic_servers must not be negative")
	}
	return nil
}
