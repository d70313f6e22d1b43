package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/osamaelmahalawi/zeph/internal/channels"
	"github.com/osamaelmahalawi/zeph/internal/codeindex"
	"github.com/osamaelmahalawi/zeph/internal/llm"
	"github.com/osamaelmahalawi/zeph/internal/mcp"
	"github.com/osamaelmahalawi/zeph/internal/memory"
	"github.com/osamaelmahalawi/zeph/internal/redact"
	"github.com/osamaelmahalawi/zeph/internal/skills"
	"github.com/osamaelmahalawi/zeph/internal/tools"
	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// Config carries the engine-level knobs, pre-resolved from the global
// configuration.
type Config struct {
	MaxToolIterations      int
	SummarizationThreshold int
	CompactionThreshold    float64
	CompactionPreserveTail int
	PruneProtectTokens     int

	RecallLimit           int
	ScoreThreshold        float64
	CrossSessionThreshold float64

	SkillsMaxActive int
	OSFamily        string
	ModelName       string

	IndexMaxChunks int
}

// Engine executes exactly one turn per inbound message against the
// shared stores. It owns all in-flight turn state exclusively.
type Engine struct {
	cfg Config

	store    memory.Store
	trustDB  memory.TrustStore
	semantic *memory.Semantic

	router   *llm.Router
	gate     *tools.TrustGate
	inner    tools.Executor
	policy   *tools.PermissionPolicy
	registry *skills.Registry
	matcher  skills.Matcher
	trust    *skills.TrustManager
	mcp      *mcp.Manager

	retriever codeindex.Retriever

	budget  *ContextBudget
	ledger  *CostLedger
	metrics *MetricsSnapshot

	channel channels.Channel

	conv int64
}

// Options wires the engine's collaborators. Semantic, MCP, and the
// retriever are optional.
type Options struct {
	Config    Config
	Store     memory.Store
	TrustDB   memory.TrustStore
	Semantic  *memory.Semantic
	Router    *llm.Router
	Gate      *tools.TrustGate
	Inner     tools.Executor
	Policy    *tools.PermissionPolicy
	Registry  *skills.Registry
	Matcher   skills.Matcher
	Trust     *skills.TrustManager
	MCP       *mcp.Manager
	Retriever codeindex.Retriever
	Budget    *ContextBudget
	Ledger    *CostLedger
	Metrics   *MetricsSnapshot
	Channel   channels.Channel
}

// New assembles an engine.
func New(opts Options) *Engine {
	if opts.Config.MaxToolIterations <= 0 {
		opts.Config.MaxToolIterations = 5
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetricsSnapshot()
	}
	if opts.Ledger == nil {
		opts.Ledger = NewCostLedger(0)
	}
	return &Engine{
		cfg:       opts.Config,
		store:     opts.Store,
		trustDB:   opts.TrustDB,
		semantic:  opts.Semantic,
		router:    opts.Router,
		gate:      opts.Gate,
		inner:     opts.Inner,
		policy:    opts.Policy,
		registry:  opts.Registry,
		matcher:   opts.Matcher,
		trust:     opts.Trust,
		mcp:       opts.MCP,
		retriever: opts.Retriever,
		budget:    opts.Budget,
		ledger:    opts.Ledger,
		metrics:   opts.Metrics,
		channel:   opts.Channel,
	}
}

// Metrics returns the published snapshot holder.
func (e *Engine) Metrics() *MetricsSnapshot { return e.metrics }

// Run loops on transport input until the transport closes or ctx is
// canceled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case inbound, ok := <-e.channel.Recv():
			if !ok {
				return nil
			}
			if err := e.HandleMessage(ctx, inbound.Text); err != nil {
				if errors.Is(err, context.Canceled) {
					e.notify(ctx, "\n[turn canceled]")
					continue
				}
				slog.Error("turn failed", "error", err)
				e.notify(ctx, fmt.Sprintf("error: %v", err))
			}
		}
	}
}

// notify sends a short out-of-band message to the transport.
func (e *Engine) notify(ctx context.Context, text string) {
	_ = e.channel.Send(ctx, redact.RedactSecrets(text))
	_ = e.channel.Flush(ctx)
}

// HandleMessage runs one full turn and returns once the final
// assistant message is flushed.
func (e *Engine) HandleMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Commands never touch the provider.
	if handled, err := e.dispatchCommand(ctx, text); handled {
		return err
	}

	if err := e.ledger.Check(); err != nil {
		e.notify(ctx, err.Error())
		return nil
	}

	if err := e.ensureConversation(ctx); err != nil {
		return err
	}
	if _, err := e.store.SaveMessage(ctx, e.conv, models.RoleUser, text, nil); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	if e.semantic != nil {
		e.indexLatest(ctx)
	}

	// Assemble the system prompt: skills by semantic match, the
	// policy-filtered tool catalog, environment block.
	skillsPrompt, err := e.assembleSkills(ctx, text)
	if err != nil {
		if errors.Is(err, skills.ErrActivationBlocked) {
			e.gate.SetEffectiveTrust(models.TrustBlocked)
			e.notify(ctx, "active skill set contains a blocked skill; tools are disabled this turn")
			skillsPrompt = ""
		} else {
			return err
		}
	}

	env := GatherEnvironment(e.cfg.ModelName)
	catalog := tools.FormatToolCatalog(e.gate, e.policy)
	systemPrompt := BuildSystemPrompt(skillsPrompt, &env, catalog)

	// Budget the window and populate the context regions.
	alloc := e.budget.Allocate(systemPrompt, skillsPrompt)
	messages, err := e.populateContext(ctx, text, alloc)
	if err != nil {
		return err
	}

	// Append the matched MCP tool block to the frozen system prompt.
	if e.mcp != nil {
		if matched, err := e.mcp.MatchTools(ctx, text, e.cfg.RecallLimit); err == nil {
			if block := mcp.FormatToolBlock(matched); block != "" {
				systemPrompt += "\n\n" + block
			}
		}
	}

	_ = e.channel.Typing(ctx, true)
	defer func() { _ = e.channel.Typing(context.WithoutCancel(ctx), false) }()

	finalText, iterations, toolCount, err := e.toolLoop(ctx, systemPrompt, messages)
	if err != nil {
		return err
	}

	if err := e.channel.Flush(ctx); err != nil {
		slog.Warn("flush failed", "error", err)
	}

	e.publishMetrics(systemPrompt, finalText, alloc, iterations, toolCount)
	turnsTotal.Inc()

	e.maybeSummarize(ctx)
	return nil
}

func (e *Engine) ensureConversation(ctx context.Context) error {
	if e.conv != 0 {
		return nil
	}
	conv, err := e.store.CreateConversation(ctx)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	e.conv = conv
	return nil
}

// indexLatest embeds recently persisted messages in the background.
func (e *Engine) indexLatest(ctx context.Context) {
	boundary, err := e.store.LatestSummaryLastMessageID(ctx, e.conv)
	if err != nil {
		return
	}
	msgs, err := e.store.LoadHistoryAfter(ctx, e.conv, boundary)
	if err != nil {
		return
	}
	go func() {
		bg := context.WithoutCancel(ctx)
		for _, msg := range msgs {
			if msg.Role == models.RoleTool {
				continue
			}
			if err := e.semantic.Index(bg, msg); err != nil {
				slog.Debug("embedding skipped", "message", msg.ID, "error", err)
				return
			}
		}
	}()
}

// assembleSkills matches, OS-filters, and trust-resolves the active
// skill set, returning the rendered skills prompt.
func (e *Engine) assembleSkills(ctx context.Context, query string) (string, error) {
	if e.registry == nil || e.matcher == nil || e.cfg.SkillsMaxActive <= 0 {
		return "", nil
	}

	names, err := e.matcher.Match(ctx, query, e.cfg.SkillsMaxActive)
	if err != nil {
		slog.Warn("skill matching failed", "error", err)
		return "", nil
	}

	var active []*skills.Skill
	for _, name := range names {
		skill, ok := e.registry.Get(name)
		if !ok || !skill.CompatibleWith(e.cfg.OSFamily) {
			continue
		}
		active = append(active, skill)
	}
	if len(active) == 0 {
		e.gate.SetEffectiveTrust(models.TrustTrusted)
		return "", nil
	}

	effective, err := e.trust.ResolveSet(ctx, active)
	if err != nil {
		return "", err
	}
	e.gate.SetEffectiveTrust(effective)

	for _, skill := range active {
		if err := e.trustDB.RecordSkillUse(ctx, skill.Name); err != nil {
			slog.Debug("skill usage not recorded", "skill", skill.Name, "error", err)
		}
	}
	return skills.FormatSkillsPrompt(active, e.cfg.OSFamily), nil
}

// populateContext fills the budget regions in turn (summaries, recall,
// cross-session recall, code context, recent history), each until its
// own token budget is exhausted, and returns the provider message list
// ending with the recent history.
func (e *Engine) populateContext(ctx context.Context, query string, alloc BudgetAllocation) ([]llm.ChatMessage, error) {
	var contextBlocks []string

	// Summaries, in id order, until the region budget is exhausted.
	if alloc.Summaries > 0 {
		sums, err := e.store.LoadSummaries(ctx, e.conv)
		if err != nil {
			return nil, err
		}
		used := 0
		var parts []string
		for _, s := range sums {
			t := memory.EstimateTokens(s.Content)
			if used+t > alloc.Summaries {
				break
			}
			parts = append(parts, s.Content)
			used += t
		}
		if len(parts) > 0 {
			contextBlocks = append(contextBlocks,
				"<conversation_summaries>\n"+strings.Join(parts, "\n---\n")+"\n</conversation_summaries>")
		}
	}

	// Semantic recall within this conversation, then across others.
	if e.semantic != nil {
		if alloc.SemanticRecall > 0 {
			hits, err := e.semantic.RecallConversation(ctx, query, e.conv, e.cfg.RecallLimit, e.cfg.ScoreThreshold)
			if err == nil {
				if block := e.renderRecall(ctx, hits, alloc.SemanticRecall, "relevant_history"); block != "" {
					contextBlocks = append(contextBlocks, block)
				}
			}
		}
		if alloc.CrossSession > 0 {
			hits, err := e.semantic.RecallCrossSession(ctx, query, e.conv, e.cfg.RecallLimit, e.cfg.CrossSessionThreshold)
			if err == nil {
				if block := e.renderRecall(ctx, hits, alloc.CrossSession, "cross_session_recall"); block != "" {
					contextBlocks = append(contextBlocks, block)
				}
			}
		}
	}

	// Code context, unless the query is a plain grep.
	if e.retriever != nil && alloc.CodeContext > 0 {
		if codeindex.ClassifyQuery(query) != codeindex.KindGrep {
			chunks, err := e.retriever.Retrieve(ctx, query, e.cfg.IndexMaxChunks)
			if err == nil {
				if block := codeindex.Pack(chunks, alloc.CodeContext, memory.EstimateTokens); block != "" {
					contextBlocks = append(contextBlocks, "<code_context>\n"+block+"\n</code_context>")
				}
			}
		}
	}

	// Recent history: the suffix after the summarized prefix boundary,
	// compacted first when it overflows its region.
	boundary, err := e.store.LatestSummaryLastMessageID(ctx, e.conv)
	if err != nil {
		return nil, err
	}
	recent, err := e.store.LoadHistoryAfter(ctx, e.conv, boundary)
	if err != nil {
		return nil, err
	}
	if alloc.RecentHistory > 0 && historyTokens(recent) > overflowLimit(alloc.RecentHistory, e.cfg.CompactionThreshold) {
		if err := e.compact(ctx, recent); err != nil {
			slog.Warn("compaction failed", "error", err)
		} else {
			boundary, err = e.store.LatestSummaryLastMessageID(ctx, e.conv)
			if err != nil {
				return nil, err
			}
			recent, err = e.store.LoadHistoryAfter(ctx, e.conv, boundary)
			if err != nil {
				return nil, err
			}
		}
	}

	var messages []llm.ChatMessage
	if len(contextBlocks) > 0 {
		messages = append(messages, llm.ChatMessage{
			Role:    models.RoleUser,
			Content: strings.Join(contextBlocks, "\n\n"),
		})
	}
	for _, msg := range recent {
		role := msg.Role
		if role == models.RoleTool {
			role = models.RoleUser
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: msg.Content})
	}
	return messages, nil
}

// renderRecall hydrates recall hits into a context block within the
// region budget.
func (e *Engine) renderRecall(ctx context.Context, hits []memory.RecallHit, budget int, tag string) string {
	used := 0
	var parts []string
	for _, hit := range hits {
		msg, err := e.store.LoadMessage(ctx, hit.MessageID)
		if err != nil {
			continue
		}
		t := memory.EstimateTokens(msg.Content)
		if used+t > budget {
			break
		}
		parts = append(parts, msg.Content)
		used += t
	}
	if len(parts) == 0 {
		return ""
	}
	return "<" + tag + ">\n" + strings.Join(parts, "\n---\n") + "\n</" + tag + ">"
}

// toolLoop drives generation and tool execution until the model stops
// calling tools or the iteration cap is reached.
func (e *Engine) toolLoop(ctx context.Context, systemPrompt string, messages []llm.ChatMessage) (string, int, int, error) {
	var (
		finalText string
		toolCount int
		iteration int
	)

	for iteration = 0; iteration < e.cfg.MaxToolIterations; iteration++ {
		if ctx.Err() != nil {
			return finalText, iteration, toolCount, ctx.Err()
		}

		text, calls, err := e.generate(ctx, systemPrompt, messages)
		if err != nil {
			return finalText, iteration, toolCount, err
		}
		finalText = text

		if text != "" {
			if _, err := e.store.SaveMessage(ctx, e.conv, models.RoleAssistant, text, nil); err != nil {
				return finalText, iteration, toolCount, fmt.Errorf("persist assistant message: %w", err)
			}
			messages = append(messages, llm.ChatMessage{Role: models.RoleAssistant, Content: text})
		}

		results, executed := e.executeCalls(ctx, text, calls)
		if len(results) == 0 {
			break
		}
		toolCount += executed

		for _, result := range results {
			parts := []models.Part{{Type: models.PartToolResult, ToolName: result.tool, Output: result.text, IsError: result.isError}}
			if _, err := e.store.SaveMessage(ctx, e.conv, models.RoleTool, result.text, parts); err != nil {
				return finalText, iteration, toolCount, fmt.Errorf("persist tool result: %w", err)
			}
			messages = append(messages, llm.ChatMessage{Role: models.RoleUser, Content: result.text})
		}
	}

	return finalText, iteration, toolCount, nil
}

// generate performs one provider call, streaming text to the channel.
func (e *Engine) generate(ctx context.Context, systemPrompt string, messages []llm.ChatMessage) (string, []models.ToolCall, error) {
	if e.router.SupportsToolUse() {
		resp, err := e.router.ChatWithTools(ctx, systemPrompt, messages, e.gate.ToolDefinitions())
		if err != nil {
			return "", nil, err
		}
		if resp.Content != "" {
			if err := e.channel.Send(ctx, redact.RedactSecrets(resp.Content)); err != nil {
				return "", nil, err
			}
		}
		return resp.Content, resp.ToolCalls, nil
	}

	stream, err := e.router.ChatStream(ctx, systemPrompt, messages)
	if err != nil {
		return "", nil, err
	}

	var accumulated strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return accumulated.String(), nil, chunk.Err
		}
		accumulated.WriteString(chunk.Text)
		if err := e.channel.Send(ctx, redact.RedactSecrets(chunk.Text)); err != nil {
			return accumulated.String(), nil, err
		}
		if ctx.Err() != nil {
			return accumulated.String(), nil, ctx.Err()
		}
	}
	return accumulated.String(), nil, nil
}

type toolResult struct {
	tool    string
	text    string
	isError bool
}

// executeCalls runs structured calls when present, otherwise scans the
// text for fenced invocations. Returns the tool-result messages to
// append and the count of successful executions.
func (e *Engine) executeCalls(ctx context.Context, text string, calls []models.ToolCall) ([]toolResult, int) {
	var results []toolResult
	executed := 0

	appendOutput := func(out *tools.ToolOutput) {
		executed++
		toolExecutionsTotal.WithLabelValues(out.ToolName).Inc()
		results = append(results, toolResult{tool: out.ToolName, text: "Tool output:\n" + out.Summary})
	}
	appendError := func(tool string, err error) {
		var toolErr *tools.ToolError
		if errors.As(err, &toolErr) {
			switch toolErr.Kind {
			case tools.ErrKindBlocked:
				toolDenialsTotal.Inc()
				results = append(results, toolResult{tool: tool, text: "Tool blocked: " + toolErr.Command, isError: true})
				return
			case tools.ErrKindTimeout:
				results = append(results, toolResult{tool: tool, text: "Tool timed out: " + toolErr.Command, isError: true})
				return
			}
		}
		results = append(results, toolResult{tool: tool, text: "Tool error: " + err.Error(), isError: true})
	}

	if len(calls) > 0 {
		for i := range calls {
			call := &calls[i]
			out, err := e.gate.ExecuteToolCall(ctx, call)
			if err != nil {
				var toolErr *tools.ToolError
				if errors.As(err, &toolErr) && toolErr.Kind == tools.ErrKindConfirmRequired {
					approved, confirmErr := e.channel.Confirm(ctx, "Allow tool "+call.ToolID+"?\n\n"+toolErr.Command)
					if confirmErr != nil {
						appendError(call.ToolID, confirmErr)
						continue
					}
					if !approved {
						toolDenialsTotal.Inc()
						results = append(results, toolResult{tool: call.ToolID, text: "Tool blocked: user rejected " + toolErr.Command, isError: true})
						continue
					}
					out, err = e.inner.ExecuteToolCall(ctx, call)
					if err != nil {
						appendError(call.ToolID, err)
						continue
					}
				} else {
					appendError(call.ToolID, err)
					continue
				}
			}
			if out != nil {
				appendOutput(out)
			}
		}
		return results, executed
	}

	// Fenced mode.
	out, err := e.gate.Execute(ctx, text)
	if err != nil {
		var toolErr *tools.ToolError
		if errors.As(err, &toolErr) && toolErr.Kind == tools.ErrKindConfirmRequired {
			approved, confirmErr := e.channel.Confirm(ctx, "Allow command?\n\n"+toolErr.Command)
			if confirmErr != nil {
				appendError(tools.ToolBash, confirmErr)
				return results, executed
			}
			if !approved {
				toolDenialsTotal.Inc()
				results = append(results, toolResult{tool: tools.ToolBash, text: "Tool blocked: user rejected " + toolErr.Command, isError: true})
				return results, executed
			}
			out, err = e.gate.ExecuteConfirmed(ctx, text)
			if err != nil {
				appendError(tools.ToolBash, err)
				return results, executed
			}
		} else {
			appendError(tools.ToolBash, err)
			return results, executed
		}
	}
	if out != nil {
		appendOutput(out)
	}
	return results, executed
}

func (e *Engine) publishMetrics(systemPrompt, finalText string, alloc BudgetAllocation, iterations, toolCount int) {
	m := TurnMetrics{
		PromptTokens:     memory.EstimateTokens(systemPrompt),
		CompletionTokens: memory.EstimateTokens(finalText),
		ToolExecutions:   toolCount,
		Iterations:       iterations,
		BudgetUsedTokens: alloc.SystemPrompt + alloc.Skills,
	}
	if usage := e.router.LastCacheUsage(); usage != nil {
		m.PromptTokens = usage.InputTokens
		m.CompletionTokens = usage.OutputTokens
		m.CacheReadTokens = usage.CacheReadTokens
	}
	e.metrics.Publish(m)
}
