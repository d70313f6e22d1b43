package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord bridges a Discord bot gateway session to the engine.
type Discord struct {
	session *discordgo.Session
	inbound chan Inbound

	mu          sync.Mutex
	buffer      strings.Builder
	lastChannel string
	confirmCh   chan string

	closeOnce sync.Once
}

// NewDiscord creates the adapter and opens the gateway connection.
func NewDiscord(token string) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}

	d := &Discord{
		session: session,
		inbound: make(chan Inbound, chunkBufferSize),
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	session.AddHandler(d.handleMessage)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open gateway: %w", err)
	}
	return d, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Content == "" {
		return
	}

	d.mu.Lock()
	d.lastChannel = m.ChannelID
	waiting := d.confirmCh
	d.mu.Unlock()

	if waiting != nil {
		select {
		case waiting <- m.Content:
			return
		default:
		}
	}

	select {
	case d.inbound <- Inbound{Text: m.Content, ReplyTo: m.ChannelID}:
	default:
		// Inbound buffer full: drop rather than stall the gateway
		// heartbeat.
	}
}

func (d *Discord) Recv() <-chan Inbound { return d.inbound }

func (d *Discord) Send(_ context.Context, chunk string) error {
	d.mu.Lock()
	d.buffer.WriteString(chunk)
	d.mu.Unlock()
	return nil
}

func (d *Discord) Flush(context.Context) error {
	d.mu.Lock()
	text := d.buffer.String()
	d.buffer.Reset()
	channel := d.lastChannel
	d.mu.Unlock()

	if strings.TrimSpace(text) == "" || channel == "" {
		return nil
	}
	_, err := d.session.ChannelMessageSend(channel, text)
	return err
}

func (d *Discord) Typing(_ context.Context, on bool) error {
	if !on {
		return nil
	}
	d.mu.Lock()
	channel := d.lastChannel
	d.mu.Unlock()
	if channel == "" {
		return nil
	}
	return d.session.ChannelTyping(channel)
}

func (d *Discord) Confirm(ctx context.Context, prompt string) (bool, error) {
	d.mu.Lock()
	channel := d.lastChannel
	ch := make(chan string, 1)
	d.confirmCh = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.confirmCh = nil
		d.mu.Unlock()
	}()

	if channel == "" {
		return false, fmt.Errorf("discord: no active channel to confirm with")
	}
	if _, err := d.session.ChannelMessageSend(channel,
		prompt+"\n\nReply yes to approve, anything else to reject."); err != nil {
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

// Close stops the gateway session. The inbound channel is left open:
// handlers may still be in flight, and the engine stops via context.
func (d *Discord) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.session.Close()
	})
	return err
}
