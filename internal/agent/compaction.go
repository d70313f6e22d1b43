package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/osamaelmahalawi/zeph/internal/llm"
	"github.com/osamaelmahalawi/zeph/internal/memory"
	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// prunedMarker replaces tool output bodies removed by compaction.
const prunedMarker = "[tool output pruned]"

const summaryPrompt = `Summarize the following conversation segment in a compact paragraph.
Preserve decisions, file paths, command outcomes, and open questions. Do not add commentary.`

func historyTokens(msgs []models.Message) int {
	total := 0
	for _, m := range msgs {
		total += memory.EstimateTokens(m.Content)
	}
	return total
}

// overflowLimit is the token count beyond which the recent-history
// region triggers compaction: the region budget plus the configured
// overflow fraction.
func overflowLimit(budget int, threshold float64) int {
	return budget + int(float64(budget)*threshold)
}

// compact summarizes the oldest unsummarized stretch of recent,
// persists the summary to advance the boundary, and prunes stale tool
// outputs. The last CompactionPreserveTail messages stay verbatim.
func (e *Engine) compact(ctx context.Context, recent []models.Message) error {
	preserve := e.cfg.CompactionPreserveTail
	if preserve < 0 {
		preserve = 0
	}
	if len(recent) <= preserve+1 {
		return nil
	}
	toSummarize := recent[:len(recent)-preserve]

	summary, err := e.summarizeMessages(ctx, toSummarize)
	if err != nil {
		return err
	}

	first := toSummarize[0].ID
	last := toSummarize[len(toSummarize)-1].ID
	tokens := memory.EstimateTokens(summary)
	if err := e.store.SaveSummary(ctx, e.conv, summary, first, last, tokens); err != nil {
		// A concurrent task may have advanced the boundary; treat the
		// overlap as already-done.
		if errors.Is(err, memory.ErrSummaryOverlap) {
			return nil
		}
		return err
	}

	e.pruneToolOutputs(ctx, toSummarize)
	return nil
}

// pruneToolOutputs replaces tool output bodies beyond the protect
// budget with a short marker, newest first staying intact.
func (e *Engine) pruneToolOutputs(ctx context.Context, msgs []models.Message) {
	protected := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if msg.Role != models.RoleTool {
			continue
		}
		t := memory.EstimateTokens(msg.Content)
		if protected+t <= e.cfg.PruneProtectTokens {
			protected += t
			continue
		}
		if msg.Content == prunedMarker {
			continue
		}
		if err := e.store.ReplaceMessageContent(ctx, msg.ID, prunedMarker); err != nil {
			slog.Debug("prune skipped", "message", msg.ID, "error", err)
		}
	}
}

// summarizeMessages asks the provider for a summary of the given
// stretch.
func (e *Engine) summarizeMessages(ctx context.Context, msgs []models.Message) (string, error) {
	var transcript strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	summary, err := e.router.Chat(ctx, summaryPrompt, []llm.ChatMessage{
		{Role: models.RoleUser, Content: transcript.String()},
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// maybeSummarize fires a background summarization task when the
// unsummarized stretch exceeds the threshold.
func (e *Engine) maybeSummarize(ctx context.Context) {
	if e.cfg.SummarizationThreshold <= 0 {
		return
	}
	boundary, err := e.store.LatestSummaryLastMessageID(ctx, e.conv)
	if err != nil {
		return
	}
	recent, err := e.store.LoadHistoryAfter(ctx, e.conv, boundary)
	if err != nil {
		return
	}
	if len(recent) <= e.cfg.SummarizationThreshold {
		return
	}

	go func() {
		bg := context.WithoutCancel(ctx)
		if err := e.compact(bg, recent); err != nil {
			slog.Warn("background summarization failed", "error", err)
		}
	}()
}
