package a2a

import (
	"context"
	"strings"
	"sync"

	"github.com/osamaelmahalawi/zeph/internal/channels"
)

// BridgeChannel adapts the engine's transport contract to the A2A
// server: streamed chunks accumulate into the task reply, and
// confirmation requests are rejected since no human sits behind the
// RPC endpoint.
type BridgeChannel struct {
	mu  sync.Mutex
	buf strings.Builder
}

// NewBridgeChannel creates an empty bridge.
func NewBridgeChannel() *BridgeChannel { return &BridgeChannel{} }

func (b *BridgeChannel) Name() string { return "a2a" }

// Recv returns nil: inbound messages arrive through the RPC methods,
// not a transport stream.
func (b *BridgeChannel) Recv() <-chan channels.Inbound { return nil }

func (b *BridgeChannel) Send(_ context.Context, chunk string) error {
	b.mu.Lock()
	b.buf.WriteString(chunk)
	b.mu.Unlock()
	return nil
}

func (b *BridgeChannel) Flush(context.Context) error { return nil }

func (b *BridgeChannel) Typing(context.Context, bool) error { return nil }

// Confirm rejects: Ask-gated tools never run over A2A.
func (b *BridgeChannel) Confirm(context.Context, string) (bool, error) {
	return false, nil
}

func (b *BridgeChannel) Close() error { return nil }

// Take returns the accumulated reply and resets the buffer.
func (b *BridgeChannel) Take() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.buf.String()
	b.buf.Reset()
	return out
}
