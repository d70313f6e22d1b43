package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// StatusEvent reports a provider failure during fallback routing.
type StatusEvent struct {
	Provider string
	Err      error
}

// StatusFunc receives one event per skipped provider.
type StatusFunc func(StatusEvent)

// rateLimitRetryDelay is the fixed delay before the single retry of a
// rate-limited call.
const rateLimitRetryDelay = 2 * time.Second

// Router wraps an ordered provider list. Each call walks the list,
// emits one status event per failing provider, and returns the first
// success. Embedding and tool-use calls skip providers without the
// capability.
type Router struct {
	providers []Provider
	status    StatusFunc
}

// NewRouter builds a router over providers in fallback order. status
// may be nil.
func NewRouter(providers []Provider, status StatusFunc) *Router {
	if status == nil {
		status = func(StatusEvent) {}
	}
	return &Router{providers: providers, status: status}
}

// Providers returns the configured fallback order.
func (r *Router) Providers() []Provider { return r.providers }

func (r *Router) emit(p Provider, err error) {
	slog.Warn("provider failed, falling back", "provider", p.Name(), "error", err)
	r.status(StatusEvent{Provider: p.Name(), Err: err})
}

// withRetry runs op, retrying exactly once after a fixed delay when
// the failure is a rate limit.
func withRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	out, err := op()
	if err == nil {
		return out, nil
	}
	var pe *ProviderError
	kind := Classify(err)
	if errors.As(err, &pe) {
		kind = pe.Kind
	}
	if kind != KindRateLimited {
		return out, err
	}
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-time.After(rateLimitRetryDelay):
	}
	return op()
}

// Chat tries each provider in order and returns the first successful
// response.
func (r *Router) Chat(ctx context.Context, system string, messages []ChatMessage) (string, error) {
	for _, p := range r.providers {
		out, err := withRetry(ctx, func() (string, error) {
			return p.Chat(ctx, system, messages)
		})
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.emit(p, err)
	}
	return "", ErrNoProviders
}

// ChatStream returns the first provider stream that opens. A provider
// that fails before producing its stream is skipped; once a stream is
// returned, errors inside it abort the stream without fallback.
func (r *Router) ChatStream(ctx context.Context, system string, messages []ChatMessage) (<-chan StreamChunk, error) {
	for _, p := range r.providers {
		if !p.SupportsStreaming() {
			continue
		}
		ch, err := withRetry(ctx, func() (<-chan StreamChunk, error) {
			return p.ChatStream(ctx, system, messages)
		})
		if err == nil {
			return ch, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.emit(p, err)
	}
	return nil, ErrNoProviders
}

// ChatWithTools routes a structured tool-use call, skipping providers
// without tool support.
func (r *Router) ChatWithTools(ctx context.Context, system string, messages []ChatMessage, tools []models.ToolDef) (*ToolUseResponse, error) {
	for _, p := range r.providers {
		if !p.SupportsToolUse() {
			continue
		}
		out, err := withRetry(ctx, func() (*ToolUseResponse, error) {
			return p.ChatWithTools(ctx, system, messages, tools)
		})
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.emit(p, err)
	}
	return nil, ErrNoProviders
}

// Embed routes an embedding call, skipping providers without
// embedding support.
func (r *Router) Embed(ctx context.Context, text string) ([]float32, error) {
	for _, p := range r.providers {
		if !p.SupportsEmbeddings() {
			continue
		}
		out, err := withRetry(ctx, func() ([]float32, error) {
			return p.Embed(ctx, text)
		})
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.emit(p, err)
	}
	return nil, ErrNoProviders
}

// SupportsToolUse reports whether any provider supports structured
// tool use.
func (r *Router) SupportsToolUse() bool {
	for _, p := range r.providers {
		if p.SupportsToolUse() {
			return true
		}
	}
	return false
}

// ContextWindow returns the primary provider's window.
func (r *Router) ContextWindow() int {
	if len(r.providers) == 0 {
		return 0
	}
	return r.providers[0].ContextWindow()
}

// LastCacheUsage returns the primary provider's last usage.
func (r *Router) LastCacheUsage() *CacheUsage {
	if len(r.providers) == 0 {
		return nil
	}
	return r.providers[0].LastCacheUsage()
}

// Name identifies the router by its primary provider.
func (r *Router) Name() string {
	if len(r.providers) == 0 {
		return "router"
	}
	return "router:" + r.providers[0].Name()
}
