package channels

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// confirmTimeout bounds how long a chat transport waits for a
// confirmation reply.
const confirmTimeout = 2 * time.Minute

// Telegram bridges one Telegram bot chat to the engine. Streamed
// chunks buffer until Flush, since Telegram delivers whole messages.
type Telegram struct {
	bot     *bot.Bot
	inbound chan Inbound
	cancel  context.CancelFunc

	mu        sync.Mutex
	buffer    strings.Builder
	lastChat  int64
	confirmCh chan string
}

// NewTelegram creates the adapter and starts long polling.
func NewTelegram(token string) (*Telegram, error) {
	t := &Telegram{
		inbound: make(chan Inbound, chunkBufferSize),
	}

	b, err := bot.New(token, bot.WithDefaultHandler(t.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	t.bot = b

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go func() {
		b.Start(ctx)
		close(t.inbound)
	}()
	return t, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) handleUpdate(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	chatID := update.Message.Chat.ID
	text := update.Message.Text

	t.mu.Lock()
	t.lastChat = chatID
	waiting := t.confirmCh
	t.mu.Unlock()

	if waiting != nil {
		select {
		case waiting <- text:
			return
		default:
		}
	}

	select {
	case t.inbound <- Inbound{Text: text, ReplyTo: strconv.FormatInt(chatID, 10)}:
	case <-ctx.Done():
	}
}

func (t *Telegram) Recv() <-chan Inbound { return t.inbound }

func (t *Telegram) Send(_ context.Context, chunk string) error {
	t.mu.Lock()
	t.buffer.WriteString(chunk)
	t.mu.Unlock()
	return nil
}

func (t *Telegram) Flush(ctx context.Context) error {
	t.mu.Lock()
	text := t.buffer.String()
	t.buffer.Reset()
	chatID := t.lastChat
	t.mu.Unlock()

	if strings.TrimSpace(text) == "" || chatID == 0 {
		return nil
	}
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	return err
}

func (t *Telegram) Typing(ctx context.Context, on bool) error {
	if !on {
		return nil
	}
	t.mu.Lock()
	chatID := t.lastChat
	t.mu.Unlock()
	if chatID == 0 {
		return nil
	}
	_, err := t.bot.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: tgmodels.ChatActionTyping,
	})
	return err
}

func (t *Telegram) Confirm(ctx context.Context, prompt string) (bool, error) {
	t.mu.Lock()
	chatID := t.lastChat
	ch := make(chan string, 1)
	t.confirmCh = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.confirmCh = nil
		t.mu.Unlock()
	}()

	if chatID == 0 {
		return false, fmt.Errorf("telegram: no active chat to confirm with")
	}
	if _, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   prompt + "\n\nReply yes to approve, anything else to reject.",
	}); err != nil {
		return false, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(confirmTimeout):
		return false, nil
	case answer := <-ch:
		return IsAffirmative(answer), nil
	}
}

func (t *Telegram) Close() error {
	t.cancel()
	return nil
}
