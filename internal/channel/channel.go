// Package channel delivers status events to connected clients. A connection is
// addressed by an opaque id minted by the transport when the client connects;
// holders of an id may push to it and close it, but never own it.
package channel

import (
	"context"
	"fmt"

	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
)

// ErrConnectionGone is returned when the addressed connection is unknown or
// has already been closed, typically because the client disconnected.
var ErrConnectionGone = fmt.Errorf("%w: connection gone", errdefs.ErrChannel)

// Channel pushes events to, and terminates, client connections.
type Channel interface {
	// Push sends one event to the connection. Errors wrap errdefs.ErrChannel.
	Push(ctx context.Context, connectionID string, e Event) error

	// Close terminates the connection.
	Close(ctx context.Context, connectionID string) error
}
