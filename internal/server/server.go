// Package server provides the relay's HTTP surface.
//
// Endpoints:
//
//	GET /ws              WebSocket; clients send {"action":"ipfs-upload",...}
//	GET /presigned-url   issue signed upload and download URLs for a new object
//	GET /healthz         liveness
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomasbasham/ipfs-relay/internal/channel"
	"github.com/tomasbasham/ipfs-relay/internal/relay"
	"github.com/tomasbasham/ipfs-relay/internal/storage"
)

const (
	// ActionUpload routes a WebSocket message to the upload relay.
	ActionUpload = "ipfs-upload"

	uploadURLTTL    = 120 * time.Second
	downloadURLTTL  = 300 * time.Second
	shutdownTimeout = 10 * time.Second

	// maxUploadBytes caps objects uploaded through a signed URL.
	maxUploadBytes = 100_000_000
)

// Processor handles one upload message received on a connection.
type Processor interface {
	Process(ctx context.Context, connectionID string, raw []byte) relay.Outcome
}

// Options configures a Server.
type Options struct {
	Registry  *channel.Registry
	Processor Processor
	Signer    storage.Signer
	Logger    *slog.Logger

	// AllowedOrigin is returned in CORS headers on /presigned-url.
	AllowedOrigin string
}

// Server holds the dependencies shared across HTTP handlers.
type Server struct {
	registry      *channel.Registry
	processor     Processor
	signer        storage.Signer
	logger        *slog.Logger
	allowedOrigin string
	mux           *http.ServeMux

	// uploads is the parent of every upload request's context. It is
	// cancelled on shutdown, never by a client going away.
	uploads       context.Context
	cancelUploads context.CancelFunc

	// mu guards closing and inflight.Add, so no upload starts once Wait may
	// be running.
	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

func New(opts Options) *Server {
	s := &Server{
		registry:      opts.Registry,
		processor:     opts.Processor,
		signer:        opts.Signer,
		logger:        opts.Logger,
		allowedOrigin: opts.AllowedOrigin,
	}
	s.uploads, s.cancelUploads = context.WithCancel(context.Background())

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /presigned-url", s.handlePresignedURL)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled. It then stops
// accepting upload requests, cancels those in flight, closes open connections
// and shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	// No read or write timeouts: WebSocket connections are long-lived.
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "connections", s.registry.Len())
	s.stopUploads()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Shutdown does not track hijacked connections, so close them first.
	s.registry.CloseAll(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// stopUploads refuses further upload requests and cancels running ones.
func (s *Server) stopUploads() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancelUploads()
}

// Wait blocks until every in-flight upload request has finished, or until
// ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startUpload registers an upload as in flight. It reports false once the
// server is shutting down.
func (s *Server) startUpload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Uploads run on the server's context rather than the request's, so a
	// client going away does not cancel an upload half way through a push.
	if err := s.registry.Accept(w, r, s.dispatch()); err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
	}
}

// envelope is the routing part of every inbound WebSocket message.
type envelope struct {
	Action string `json:"action"`
}

func (s *Server) dispatch() channel.Dispatcher {
	return func(connectionID string, msg []byte) {
		logger := s.logger.With("connection_id", connectionID)

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			logger.Warn("ignoring unroutable message", "error", err)
			return
		}

		switch env.Action {
		case ActionUpload:
			if !s.startUpload() {
				logger.Warn("ignoring upload request during shutdown")
				return
			}
			go func() {
				defer s.inflight.Done()
				out := s.processor.Process(s.uploads, connectionID, msg)
				logger.Info("upload request handled", "status_code", out.StatusCode, "body", out.Body)
			}()
		default:
			logger.Warn("ignoring message with unknown action", "action", env.Action)
		}
	}
}

// presignedURLResponse is returned from GET /presigned-url.
type presignedURLResponse struct {
	// FilePath is the object key the client uploads to and later names in an
	// ipfs-upload message.
	FilePath string `json:"filePath"`

	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`

	// UploadHeaders must accompany the PUT; they are part of its signature.
	UploadHeaders map[string]string `json:"uploadHeaders"`

	// PresignedGet reads the processed output of the upload, not the upload
	// itself.
	PresignedGet          string    `json:"presignedGet"`
	PresignedGetExpiresAt time.Time `json:"presignedGetExpiresAt"`
}

func (s *Server) handlePresignedURL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)

	fileType := r.URL.Query().Get("fileType")
	if fileType == "" {
		writeError(w, http.StatusBadRequest, "Missing fileType query parameter")
		return
	}

	key := uuid.NewString()

	put, err := s.signer.SignURL(r.Context(), &storage.SignRequest{
		ObjectName:  key,
		Method:      http.MethodPut,
		ContentType: fileType,
		TTL:         uploadURLTTL,
		MaxBytes:    maxUploadBytes,
	})
	if err != nil {
		s.writeSignError(w, err)
		return
	}

	get, err := s.signer.SignURL(r.Context(), &storage.SignRequest{
		ObjectName: outputObject(key),
		Method:     http.MethodGet,
		TTL:        downloadURLTTL,
	})
	if err != nil {
		s.writeSignError(w, err)
		return
	}

	headers := map[string]string{
		"Content-Type":                fileType,
		"x-goog-content-length-range": fmt.Sprintf("0,%d", maxUploadBytes),
	}

	writeJSON(w, http.StatusOK, presignedURLResponse{
		FilePath:              key,
		URL:                   put.URL,
		ExpiresAt:             put.ExpiresAt,
		UploadHeaders:         headers,
		PresignedGet:          get.URL,
		PresignedGetExpiresAt: get.ExpiresAt,
	})
}

// outputObject names the object produced from the upload stored at key.
func outputObject(key string) string {
	return "out/" + key + ".mp3"
}

func (s *Server) writeSignError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrSigningUnsupported) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	s.logger.Error("failed to sign URL", "error", err)
	writeError(w, http.StatusInternalServerError, "failed to sign URL")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.registry.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
