package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// Slack bridges a Slack app in Socket Mode to the engine.
type Slack struct {
	api    *slack.Client
	socket *socketmode.Client
	cancel context.CancelFunc

	inbound chan Inbound

	mu          sync.Mutex
	buffer      strings.Builder
	lastChannel string
	confirmCh   chan string
}

// NewSlack creates the adapter. botToken is the xoxb bot token,
// appToken the xapp app-level token required for Socket Mode.
func NewSlack(botToken, appToken string) (*Slack, error) {
	if botToken == "" || appToken == "" {
		return nil, fmt.Errorf("slack: bot and app tokens are required")
	}
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	s := &Slack{
		api:     api,
		socket:  socketmode.New(api),
		inbound: make(chan Inbound, chunkBufferSize),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.eventLoop(ctx)
	go func() {
		_ = s.socket.RunContext(ctx)
		close(s.inbound)
	}()
	return s, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.socket.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			s.socket.Ack(*evt.Request)

			inner, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
			if !ok || inner.BotID != "" || inner.Text == "" {
				continue
			}
			s.deliver(ctx, inner.Channel, inner.Text)
		}
	}
}

func (s *Slack) deliver(ctx context.Context, channel, text string) {
	s.mu.Lock()
	s.lastChannel = channel
	waiting := s.confirmCh
	s.mu.Unlock()

	if waiting != nil {
		select {
		case waiting <- text:
			return
		default:
		}
	}

	select {
	case s.inbound <- Inbound{Text: text, ReplyTo: channel}:
	case <-ctx.Done():
	}
}

func (s *Slack) Recv() <-chan Inbound { return s.inbound }

func (s *Slack) Send(_ context.Context, chunk string) error {
	s.mu.Lock()
	s.buffer.WriteString(chunk)
	s.mu.Unlock()
	return nil
}

func (s *Slack) Flush(ctx context.Context) error {
	s.mu.Lock()
	text := s.buffer.String()
	s.buffer.Reset()
	channel := s.lastChannel
	s.mu.Unlock()

	if strings.TrimSpace(text) == "" || channel == "" {
		return nil
	}
	_, _, err := s.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	return err
}

// Typing is a no-op: classic typing indicators are not exposed to
// Socket Mode apps.
func (s *Slack) Typing(context.Context, bool) error { return nil }

func (s *Slack) Confirm(ctx context.Context, prompt string) (bool, error) {
	s.mu.Lock()
	channel := s.lastChannel
	ch := make(chan string, 1)
	s.confirmCh = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.confirmCh = nil
		s.mu.Unlock()
	}()

	if channel == "" {
		return false, fmt.Errorf("slack: no active channel to confirm with")
	}
	_, _, err := s.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(prompt+"\n\nReply yes to approve, anything else to reject.", false))
	if err != nil {
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

func (s *Slack) Close() error {
	s.cancel()
	return nil
}
