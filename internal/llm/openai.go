package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// OpenAIProvider implements Provider on the OpenAI chat API. With a
// custom BaseURL it also serves any OpenAI-compatible server (Ollama,
// vLLM, LM Studio), which is how local models are wired.
type OpenAIProvider struct {
	client         *openai.Client
	name           string
	model          string
	embeddingModel string
	window         int
	timeout        time.Duration

	mu        sync.Mutex
	lastUsage *CacheUsage
}

// OpenAIConfig configures the provider.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Name           string
	Model          string
	EmbeddingModel string
	Window         int
	Timeout        time.Duration
}

// NewOpenAIProvider creates the provider. For OpenAI-compatible local
// servers the API key may be any non-empty placeholder.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "unused"
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Window <= 0 {
		cfg.Window = 128_000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(clientCfg),
		name:           cfg.Name,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		window:         cfg.Window,
		timeout:        cfg.Timeout,
	}, nil
}

func (p *OpenAIProvider) Name() string { return p.name }
func (p *OpenAIProvider) ContextWindow() int { return p.window }
func (p *OpenAIProvider) SupportsStreaming() bool { return true }
func (p *OpenAIProvider) SupportsEmbeddings() bool { return true }
func (p *OpenAIProvider) SupportsToolUse() bool { return true }

func (p *OpenAIProvider) LastCacheUsage() *CacheUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUsage
}

func (p *OpenAIProvider) recordUsage(u openai.Usage) {
	p.mu.Lock()
	usage := &CacheUsage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.CacheReadTokens = u.PromptTokensDetails.CachedTokens
	}
	p.lastUsage = usage
	p.mu.Unlock()
}

func (p *OpenAIProvider) request(system string, messages []ChatMessage) openai.ChatCompletionRequest {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		converted = append(converted, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{Model: p.model, Messages: converted}
}

func (p *OpenAIProvider) Chat(ctx context.Context, system string, messages []ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, p.request(system, messages))
	if err != nil {
		return "", wrapErr(p.name, err)
	}
	p.recordUsage(resp.Usage)
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: p.name, Kind: KindParse, Err: fmt.Errorf("empty choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) ChatStream(ctx context.Context, system string, messages []ChatMessage) (<-chan StreamChunk, error) {
	streamCtx, cancel := context.WithTimeout(ctx, p.timeout)

	req := p.request(system, messages)
	req.Stream = true
	stream, err := p.client.CreateChatCompletionStream(streamCtx, req)
	if err != nil {
		cancel()
		return nil, wrapErr(p.name, err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer cancel()
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				out <- StreamChunk{Err: wrapErr(p.name, err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- StreamChunk{Text: delta}:
			case <-streamCtx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *OpenAIProvider) ChatWithTools(ctx context.Context, system string, messages []ChatMessage, tools []models.ToolDef) (*ToolUseResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := p.request(system, messages)
	req.Tools = convertOpenAITools(tools)

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapErr(p.name, err)
	}
	p.recordUsage(resp.Usage)
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: p.name, Kind: KindParse, Err: fmt.Errorf("empty choices")}
	}

	choice := resp.Choices[0].Message
	result := &ToolUseResponse{Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		call := models.ToolCall{ID: tc.ID, ToolID: tc.Function.Name}
		var params map[string]json.RawMessage
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err == nil {
			call.Params = params
		}
		result.ToolCalls = append(result.ToolCalls, call)
	}
	return result, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.embeddingModel),
	})
	if err != nil {
		return nil, wrapErr(p.name, err)
	}
	if len(resp.Data) == 0 {
		return nil, &ProviderError{Provider: p.name, Kind: KindParse, Err: fmt.Errorf("empty embedding response")}
	}
	return resp.Data[0].Embedding, nil
}

func convertOpenAITools(tools []models.ToolDef) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, def := range tools {
		properties := make(map[string]any, len(def.Params))
		var required []string
		for _, param := range def.Params {
			properties[param.Name] = map[string]any{"type": param.Type}
			if param.Required {
				required = append(required, param.Name)
			}
		}
		schema := map[string]any{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			schema["required"] = required
		}
		raw, _ := json.Marshal(schema)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.ID,
				Description: def.Description,
				Parameters:  json.RawMessage(raw),
			},
		})
	}
	return out
}
