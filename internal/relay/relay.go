// Package relay moves a batch of files from the blob store into IPFS while
// reporting progress to the client that asked for it. Each request is driven
// by a small state machine; the first failure ends the batch.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tomasbasham/ipfs-relay/internal/channel"
	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
	"github.com/tomasbasham/ipfs-relay/internal/storage"
)

// Addresser stores content and returns its content identifier.
type Addresser interface {
	Add(ctx context.Context, data []byte) (string, error)
}

// Outcome is the transport-level result of handling one request. It is
// returned to the caller, never pushed to the client.
type Outcome struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

const (
	bodyDone           = "Done"
	msgMissingFilename = "Missing filename parameter"
	msgPostFailed      = "Failed to post to connections"
	msgUploadFailed    = "upload failed"
)

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// Options configures an Orchestrator.
type Options struct {
	Fetcher   storage.Fetcher
	Addresser Addresser
	Channel   channel.Channel
	Logger    *slog.Logger
}

// Orchestrator handles upload requests. It holds no per-request state, so a
// single value may serve concurrent requests.
type Orchestrator struct {
	fetcher   storage.Fetcher
	addresser Addresser
	channel   channel.Channel
	logger    *slog.Logger
}

func New(opts Options) *Orchestrator {
	return &Orchestrator{
		fetcher:   opts.Fetcher,
		addresser: opts.Addresser,
		channel:   opts.Channel,
		logger:    opts.Logger,
	}
}

// Process handles one inbound message from connectionID. Invalid messages are
// rejected without touching the connection. Otherwise every named file is
// relayed in order, the client is kept informed, and the connection is closed
// once the batch completes or fails.
func (o *Orchestrator) Process(ctx context.Context, connectionID string, raw []byte) Outcome {
	r := &run{
		Orchestrator: o,
		connectionID: connectionID,
		logger:       o.logger.With("connection_id", connectionID),
		state:        StateInit,
	}

	req, err := ParseRequest(connectionID, raw)
	if err != nil {
		r.transition(StateRejected)
		// Malformed and incomplete bodies look the same to the client; the log
		// keeps the difference.
		r.logger.Warn("upload request rejected", "error", err, "malformed", errors.Is(err, errInvalidBody))
		return Outcome{StatusCode: http.StatusBadRequest, Body: errorBody(msgMissingFilename)}
	}
	r.filenames = req.Filenames

	r.logger.Info("upload started", "files", len(r.filenames))
	for !r.state.Terminal() {
		r.step(ctx)
	}

	if r.err != nil {
		return Outcome{StatusCode: http.StatusInternalServerError, Body: errorBody(msgPostFailed)}
	}
	r.logger.Info("upload complete", "files", len(r.filenames))
	return Outcome{StatusCode: http.StatusOK, Body: bodyDone}
}

// run is the state of a single request.
type run struct {
	*Orchestrator

	connectionID string
	filenames    []string
	logger       *slog.Logger

	state State
	next  int // index into filenames of the file being, or next to be, relayed
	err   error
}

func (r *run) step(ctx context.Context) {
	switch r.state {
	case StateInit:
		r.push(ctx, channel.Started(), StateStarted)

	case StateStarted, StateAdded:
		if r.next < len(r.filenames) {
			r.push(ctx, channel.Adding(r.filenames[r.next]), StateAdding)
		} else {
			r.push(ctx, channel.Complete(), StateComplete)
		}

	case StateAdding:
		name := r.filenames[r.next]
		cid, err := r.relayFile(ctx, name)
		if err != nil {
			r.fail(ctx, err)
			return
		}
		if r.push(ctx, channel.Added(name, cid), StateAdded) {
			r.next++
		}

	case StateComplete, StateError:
		r.close(ctx)
	}
}

// relayFile fetches one object and adds its bytes to IPFS.
func (r *run) relayFile(ctx context.Context, name string) (string, error) {
	data, err := r.fetcher.Fetch(ctx, name)
	if err != nil {
		return "", &fileError{filename: name, err: err}
	}

	cid, err := r.addresser.Add(ctx, data)
	if err != nil {
		return "", &fileError{filename: name, err: err}
	}

	r.logger.Info("file added", "filename", name, "cid", cid, "bytes", len(data))
	return cid, nil
}

// push sends e and moves to next on success. A failed push fails the run.
func (r *run) push(ctx context.Context, e channel.Event, next State) bool {
	if err := r.channel.Push(ctx, r.connectionID, e); err != nil {
		r.fail(ctx, fmt.Errorf("push %s: %w", e.Status, err))
		return false
	}
	r.transition(next)
	return true
}

// fail records err, tells the client in sanitised form and moves to
// StateError. The full error only goes to the log.
func (r *run) fail(ctx context.Context, err error) {
	r.err = err
	r.logger.Error("upload failed", "state", r.state, "error", err)

	if perr := r.channel.Push(ctx, r.connectionID, channel.Error(describe(err))); perr != nil {
		r.logger.Warn("failed to report error to client", "error", perr)
	}
	r.transition(StateError)
}

// close terminates the connection. A failure here cannot change the outcome.
func (r *run) close(ctx context.Context) {
	if err := r.channel.Close(ctx, r.connectionID); err != nil {
		r.logger.Warn("failed to close connection", "error", err)
	}
	r.transition(StateClosed)
}

func (r *run) transition(next State) {
	if !r.state.CanTransition(next) {
		panic(fmt.Sprintf("relay: invalid transition %s -> %s", r.state, next))
	}
	r.state = next
}

// fileError ties a fetch or addressing failure to the file it concerns.
type fileError struct {
	filename string
	err      error
}

func (e *fileError) Error() string {
	return fmt.Sprintf("%s: %v", e.filename, e.err)
}

func (e *fileError) Unwrap() error { return e.err }

// describe returns a client-safe summary of err. Internal details such as
// bucket names, paths and backend responses are left out.
func describe(err error) string {
	var fe *fileError
	switch {
	case errors.As(err, &fe) && errors.Is(err, errdefs.ErrFetch):
		return fmt.Sprintf("failed to fetch %q", fe.filename)
	case errors.As(err, &fe) && errors.Is(err, errdefs.ErrAddressing):
		return fmt.Sprintf("failed to add %q to IPFS", fe.filename)
	case errors.Is(err, errdefs.ErrChannel):
		return "failed to post status update"
	case errors.As(err, &fe):
		return fmt.Sprintf("failed to relay %q", fe.filename)
	default:
		return msgUploadFailed
	}
}
