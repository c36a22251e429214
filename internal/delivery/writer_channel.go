package delivery

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/xkilldash9x/cadence/api/schemas"
)

// WriterChannel delivers messages to an io.Writer, typically a terminal.
// Backspaces are rendered as "\b \b" so the terminal erases the character;
// wide characters are erased one column at a time.
type WriterChannel struct {
	name        string
	description string

	mu     sync.Mutex
	w      io.Writer
	closed bool
	// text mirrors what is currently on the line during a paced delivery.
	text []rune
}

// NewWriterChannel wraps w as a channel named name.
func NewWriterChannel(name, description string, w io.Writer) *WriterChannel {
	return &WriterChannel{name: name, description: description, w: w}
}

func (c *WriterChannel) Name() string        { return c.name }
func (c *WriterChannel) Description() string { return c.description }

// IsAvailable reports false once the channel is closed.
func (c *WriterChannel) IsAvailable(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Send writes message followed by a newline.
func (c *WriterChannel) Send(_ context.Context, message string) (schemas.DeliveryResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return schemas.DeliveryResult{Channel: c.name}, ErrChannelUnavailable
	}
	if _, err := io.WriteString(c.w, message+"\n"); err != nil {
		return schemas.DeliveryResult{Channel: c.name, Error: err.Error()}, err
	}
	return schemas.DeliveryResult{Success: true, Timestamp: time.Now().UTC(), Channel: c.name}, nil
}

// PrepareForDelivery starts a fresh line buffer.
func (c *WriterChannel) PrepareForDelivery(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelUnavailable
	}
	c.text = c.text[:0]
	return nil
}

// SendKeystroke writes a single keystroke. Pauses write nothing.
func (c *WriterChannel) SendKeystroke(_ context.Context, ev schemas.KeystrokeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelUnavailable
	}

	var out string
	switch {
	case ev.IsPause:
		return nil
	case ev.IsBackspace:
		if len(c.text) == 0 {
			return fmt.Errorf("backspace on empty line at sequence %d", ev.Sequence)
		}
		last := c.text[len(c.text)-1]
		c.text = c.text[:len(c.text)-1]
		out = eraseSequence(last)
	default:
		c.text = append(c.text, []rune(ev.Char)...)
		out = ev.Char
	}
	_, err := io.WriteString(c.w, out)
	return err
}

// eraseSequence returns the bytes that erase r from a terminal line.
func eraseSequence(r rune) string {
	w := max(runewidth.RuneWidth(r), 1)
	back := strings.Repeat("\b", w)
	return back + strings.Repeat(" ", w) + back
}

// FinalizeDelivery ends the line.
func (c *WriterChannel) FinalizeDelivery(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelUnavailable
	}
	_, err := io.WriteString(c.w, "\n")
	return err
}

// Text returns what the last paced delivery left on the line.
func (c *WriterChannel) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.text)
}

// Close marks the channel unavailable. The writer is owned by the caller and
// stays open.
func (c *WriterChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

var _ interface {
	Channel
	Preparer
	Finalizer
	Closer
} = (*WriterChannel)(nil)
