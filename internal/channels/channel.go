// Package channels defines the uniform transport contract: inbound
// messages in, streamed chunks out, with typing and confirmation
// signals. Adapters exist for the terminal, Telegram, Slack, and
// Discord; the A2A server brings its own bridge channel.
package channels

import (
	"context"
	"strings"
)

// chunkBufferSize bounds each adapter's inbound message channel.
// Outbound chunks do not pass through a bounded channel: Send writes
// directly or appends to the adapter's buffer until Flush.
const chunkBufferSize = 32

// Inbound is one user message delivered by a transport.
type Inbound struct {
	// Text is the message body.
	Text string

	// ReplyTo is the transport-specific address to answer at (chat id,
	// channel id). Empty for single-conversation transports.
	ReplyTo string
}

// Channel is the transport seen by the engine. Send streams one chunk
// of the in-progress assistant message; Flush marks the message
// complete so buffering adapters can deliver it.
type Channel interface {
	Name() string

	// Recv returns the inbound message stream. The channel closes when
	// the transport shuts down.
	Recv() <-chan Inbound

	Send(ctx context.Context, chunk string) error
	Flush(ctx context.Context) error

	// Typing toggles the transport's typing indicator, where one
	// exists.
	Typing(ctx context.Context, on bool) error

	// Confirm asks the user to approve an action. It blocks until the
	// user answers or ctx is done.
	Confirm(ctx context.Context, prompt string) (bool, error)

	Close() error
}

// IsAffirmative reports whether a confirmation reply approves the
// action.
func IsAffirmative(text string) bool {
	switch strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".!") {
	case "y", "yes", "ok", "approve", "approved", "confirm", "sure":
		return true
	}
	return false
}
