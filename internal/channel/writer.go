package channel

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
)

// WriterChannel writes encoded events to an io.Writer, one per line. It backs
// the one-shot CLI, where the terminal stands in for the client connection.
type WriterChannel struct {
	encoder Encoder

	mu     sync.Mutex
	w      io.Writer
	closed map[string]bool
}

func NewWriterChannel(w io.Writer, encoder Encoder) *WriterChannel {
	return &WriterChannel{
		encoder: encoder,
		w:       w,
		closed:  make(map[string]bool),
	}
}

func (c *WriterChannel) Push(_ context.Context, connectionID string, e Event) error {
	payload, err := c.encoder.Encode(e)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", errdefs.ErrChannel, e.Status, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed[connectionID] {
		return fmt.Errorf("%w: %s", ErrConnectionGone, connectionID)
	}
	if _, err := fmt.Fprintf(c.w, "%s\n", payload); err != nil {
		return fmt.Errorf("%w: write: %w", errdefs.ErrChannel, err)
	}
	return nil
}

func (c *WriterChannel) Close(_ context.Context, connectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed[connectionID] {
		return fmt.Errorf("%w: %s", ErrConnectionGone, connectionID)
	}
	c.closed[connectionID] = true
	return nil
}
