package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays ZEPH_-prefixed environment variables onto cfg.
// Unset or unparsable values leave the current setting untouched.
func applyEnv(cfg *Config) {
	envString("ZEPH_LLM_PROVIDER", &cfg.LLM.Provider)
	envStringList("ZEPH_LLM_FALLBACKS", &cfg.LLM.Fallbacks)
	envString("ZEPH_LLM_MODEL", &cfg.LLM.Model)
	envString("ZEPH_LLM_EMBEDDING_MODEL", &cfg.LLM.EmbeddingModel)
	envString("ZEPH_LLM_BASE_URL", &cfg.LLM.BaseURL)
	envInt("ZEPH_MEMORY_CONTEXT_BUDGET_TOKENS", &cfg.LLM.ContextWindow)
	envFloat("ZEPH_LLM_RESERVE_RATIO", &cfg.LLM.ReserveRatio)
	envDuration("ZEPH_TIMEOUT_LLM", &cfg.LLM.Timeout)
	envDuration("ZEPH_TIMEOUT_EMBEDDING", &cfg.LLM.EmbeddingTimeout)

	envString("ZEPH_SQLITE_PATH", &cfg.Memory.SQLitePath)
	envString("ZEPH_QDRANT_URL", &cfg.Memory.QdrantURL)
	envBool("ZEPH_MEMORY_SEMANTIC_ENABLED", &cfg.Memory.SemanticEnabled)
	envInt("ZEPH_MEMORY_RECALL_LIMIT", &cfg.Memory.RecallLimit)
	envInt("ZEPH_MEMORY_SUMMARIZATION_THRESHOLD", &cfg.Memory.SummarizationThreshold)
	envFloat("ZEPH_MEMORY_COMPACTION_THRESHOLD", &cfg.Memory.CompactionThreshold)
	envInt("ZEPH_MEMORY_COMPACTION_PRESERVE_TAIL", &cfg.Memory.CompactionPreserveTail)
	envInt("ZEPH_MEMORY_PRUNE_PROTECT_TOKENS", &cfg.Memory.PruneProtectTokens)

	envInt("ZEPH_TOOLS_MAX_ITERATIONS", &cfg.Tools.MaxIterations)
	envDuration("ZEPH_TOOLS_TIMEOUT", &cfg.Tools.Timeout)
	envBool("ZEPH_TOOLS_SUMMARIZE_OUTPUT", &cfg.Tools.SummarizeOutput)
	envString("ZEPH_TOOLS_AUTONOMY", &cfg.Tools.Autonomy)

	envStringList("ZEPH_SKILLS_DIRS", &cfg.Skills.Dirs)
	envInt("ZEPH_SKILLS_MAX_ACTIVE", &cfg.Skills.MaxActive)
	envBool("ZEPH_SKILLS_WATCH", &cfg.Skills.Watch)

	envInt("ZEPH_MCP_MAX_DYNAMIC_SERVERS", &cfg.MCP.MaxDynamicServers)
	envStringList("ZEPH_MCP_ALLOWED_COMMANDS", &cfg.MCP.AllowedCommands)
	envDuration("ZEPH_MCP_TIMEOUT", &cfg.MCP.Timeout)

	envBool("ZEPH_A2A_ENABLED", &cfg.A2A.Enabled)
	envString("ZEPH_A2A_HOST", &cfg.A2A.Host)
	envInt("ZEPH_A2A_PORT", &cfg.A2A.Port)
	envString("ZEPH_A2A_PUBLIC_URL", &cfg.A2A.PublicURL)
	envString("ZEPH_A2A_BEARER_TOKEN", &cfg.A2A.BearerToken)
	envInt("ZEPH_A2A_RATE_LIMIT", &cfg.A2A.RateLimit)
	envInt64("ZEPH_A2A_MAX_BODY_SIZE", &cfg.A2A.MaxBodySize)
	envBool("ZEPH_A2A_REQUIRE_TLS", &cfg.A2A.RequireTLS)
	envBool("ZEPH_A2A_SSRF_PROTECTION", &cfg.A2A.SSRFProtection)
	envDuration("ZEPH_TIMEOUT_A2A", &cfg.A2A.Timeout)

	envString("ZEPH_TELEGRAM_TOKEN", &cfg.Channels.TelegramToken)
	envString("ZEPH_SLACK_BOT_TOKEN", &cfg.Channels.SlackBotToken)
	envString("ZEPH_SLACK_APP_TOKEN", &cfg.Channels.SlackAppToken)
	envString("ZEPH_DISCORD_TOKEN", &cfg.Channels.DiscordToken)

	envBool("ZEPH_COST_ENABLED", &cfg.Cost.Enabled)
	envInt("ZEPH_COST_BUDGET_CENTS", &cfg.Cost.BudgetCents)

	envBool("ZEPH_INDEX_ENABLED", &cfg.Index.Enabled)
	envInt("ZEPH_INDEX_MAX_CHUNKS", &cfg.Index.MaxChunks)
	envFloat("ZEPH_INDEX_SCORE_THRESHOLD", &cfg.Index.ScoreThreshold)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envStringList(key string, dst *[]string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := parts[:0]
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return
		}
		// Bare integers are seconds, matching the original env scheme.
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}
