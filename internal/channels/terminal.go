package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Terminal is the interactive TUI channel. Chunks print as they
// arrive; confirmation prompts read a line from the same input.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer

	inbound chan Inbound
	confirm chan string

	mu         sync.Mutex
	confirming bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewTerminal creates the channel over stdin/stdout and starts the
// read loop.
func NewTerminal() *Terminal {
	t := &Terminal{
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		inbound: make(chan Inbound, chunkBufferSize),
		confirm: make(chan string, 1),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *Terminal) Name() string { return "terminal" }

func (t *Terminal) readLoop() {
	defer close(t.inbound)
	for {
		fmt.Fprint(t.out, "> ")
		line, err := t.in.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		t.mu.Lock()
		confirming := t.confirming
		t.mu.Unlock()
		if confirming {
			select {
			case t.confirm <- line:
			case <-t.done:
				return
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		select {
		case t.inbound <- Inbound{Text: line}:
		case <-t.done:
			return
		}
	}
}

func (t *Terminal) Recv() <-chan Inbound { return t.inbound }

func (t *Terminal) Send(_ context.Context, chunk string) error {
	_, err := fmt.Fprint(t.out, chunk)
	return err
}

func (t *Terminal) Flush(context.Context) error {
	_, err := fmt.Fprintln(t.out)
	return err
}

// Typing is a no-op: a terminal has no typing indicator.
func (t *Terminal) Typing(context.Context, bool) error { return nil }

func (t *Terminal) Confirm(ctx context.Context, prompt string) (bool, error) {
	t.mu.Lock()
	t.confirming = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.confirming = false
		t.mu.Unlock()
	}()

	fmt.Fprintf(t.out, "\n%s [y/N] ", prompt)
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-t.done:
		return false, io.EOF
	case answer := <-t.confirm:
		return IsAffirmative(answer), nil
	}
}

func (t *Terminal) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

// IsInteractive reports whether stdin is a TTY. The caller falls back
// to non-interactive modes otherwise.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
