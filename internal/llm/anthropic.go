package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// AnthropicProvider implements Provider on the Anthropic Messages API.
// It supports chat, streaming, and structured tool use; embeddings are
// unsupported and routed to another provider.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
	window    int
	timeout   time.Duration

	mu        sync.Mutex
	lastUsage *CacheUsage
}

// AnthropicConfig configures the provider.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Window    int
	Timeout   time.Duration
}

// NewAnthropicProvider creates the provider. APIKey is required.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Window <= 0 {
		cfg.Window = 200_000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		window:    cfg.Window,
		timeout:   cfg.Timeout,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }
func (p *AnthropicProvider) ContextWindow() int { return p.window }
func (p *AnthropicProvider) SupportsStreaming() bool { return true }
func (p *AnthropicProvider) SupportsEmbeddings() bool { return false }
func (p *AnthropicProvider) SupportsToolUse() bool { return true }

func (p *AnthropicProvider) LastCacheUsage() *CacheUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUsage
}

func (p *AnthropicProvider) recordUsage(u anthropic.Usage) {
	p.mu.Lock()
	p.lastUsage = &CacheUsage{
		CacheReadTokens:  int(u.CacheReadInputTokens),
		CacheWriteTokens: int(u.CacheCreationInputTokens),
		InputTokens:      int(u.InputTokens),
		OutputTokens:     int(u.OutputTokens),
	}
	p.mu.Unlock()
}

func (p *AnthropicProvider) params(system string, messages []ChatMessage) anthropic.MessageNewParams {
	converted := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			// Tool results and system-level notes travel as user turns.
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages:  converted,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (p *AnthropicProvider) Chat(ctx context.Context, system string, messages []ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Messages.New(ctx, p.params(system, messages))
	if err != nil {
		return "", wrapErr(p.Name(), err)
	}
	p.recordUsage(resp.Usage)

	var out string
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out += text.Text
		}
	}
	return out, nil
}

func (p *AnthropicProvider) ChatStream(ctx context.Context, system string, messages []ChatMessage) (<-chan StreamChunk, error) {
	streamCtx, cancel := context.WithTimeout(ctx, p.timeout)
	stream := p.client.Messages.NewStreaming(streamCtx, p.params(system, messages))

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer cancel()
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				select {
				case out <- StreamChunk{Text: text.Text}:
				case <-streamCtx.Done():
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- StreamChunk{Err: wrapErr(p.Name(), err)}
		}
	}()
	return out, nil
}

func (p *AnthropicProvider) ChatWithTools(ctx context.Context, system string, messages []ChatMessage, tools []models.ToolDef) (*ToolUseResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := p.params(system, messages)
	params.Tools = convertTools(tools)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapErr(p.Name(), err)
	}
	p.recordUsage(resp.Usage)

	result := &ToolUseResponse{}
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			result.Content += variant.Text
		case anthropic.ToolUseBlock:
			call := models.ToolCall{ID: variant.ID, ToolID: variant.Name}
			var params map[string]json.RawMessage
			if err := json.Unmarshal(variant.Input, &params); err == nil {
				call.Params = params
			}
			result.ToolCalls = append(result.ToolCalls, call)
		}
	}
	return result, nil
}

func (p *AnthropicProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, &ProviderError{Provider: p.Name(), Kind: KindUnsupported, Err: fmt.Errorf("embeddings not supported")}
}

func convertTools(tools []models.ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, def := range tools {
		properties := make(map[string]any, len(def.Params))
		var required []string
		for _, param := range def.Params {
			properties[param.Name] = map[string]any{"type": param.Type}
			if param.Required {
				required = append(required, param.Name)
			}
		}
		tool := anthropic.ToolParam{
			Name:        def.ID,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}
