package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/ipfs-relay/internal/channel"
	"github.com/tomasbasham/ipfs-relay/internal/config"
	"github.com/tomasbasham/ipfs-relay/internal/logging"
	"github.com/tomasbasham/ipfs-relay/internal/server"
)

// drainTimeout bounds how long serve waits for cancelled uploads to return.
const drainTimeout = 10 * time.Second

type ServeOptions struct {
	config  *config.Config
	logger  *slog.Logger
	encoder channel.Encoder

	Port      int
	EnvFiles  []string
	LogLevel  string
	LogFormat string
	Protocol  string

	iooption.IOStreams
}

var (
	serveLong = templates.LongDesc(`
		Start the relay server. Clients connect to /ws and send ipfs-upload
		messages; upload URLs are issued from /presigned-url.

		Storage and IPFS settings are read from the environment (BUCKET_NAME,
		REGION, IPFS_URL, INFURA_PROJECT_ID, INFURA_SECRET, ...).`)

	serveExample = templates.Examples(`
		# Start on the default port
		relay serve

		# Start on a custom port, loading settings from a .env file
		relay serve --port 9090 --env-file .env

		# Use the bare token protocol instead of JSON status messages
		relay serve --protocol token`)
)

func NewServeOptions(streams iooption.IOStreams) *ServeOptions {
	return &ServeOptions{
		IOStreams: streams,
	}
}

func NewServeCommand(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the relay server",
		Long:    serveLong,
		Example: serveExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			if err := o.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&o.Port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().StringSliceVar(&o.EnvFiles, "env-file", nil, "Load environment variables from these files")
	cmd.Flags().StringVar(&o.LogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	cmd.Flags().StringVar(&o.LogFormat, "log-format", logging.FormatText, "Log format: text or json")
	cmd.Flags().StringVar(&o.Protocol, "protocol", channel.ProtocolJSON, "Status message encoding: json or token")

	return cmd
}

func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(o.ErrOut, o.LogLevel, o.LogFormat)
	if err != nil {
		return err
	}
	o.logger = logger

	encoder, err := channel.NewEncoder(o.Protocol)
	if err != nil {
		return err
	}
	o.encoder = encoder

	cfg, err := config.Load(o.EnvFiles...)
	if err != nil {
		return err
	}
	o.config = cfg

	return nil
}

func (o *ServeOptions) Validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("invalid port %d", o.Port)
	}
	return nil
}

func (o *ServeOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := o.logger.With("stage", o.config.Stage)

	store, err := newBlobStore(ctx, o.config)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	registry := channel.NewRegistry(logger, o.encoder)
	orchestrator := newOrchestrator(o.config, store, registry, logger)

	srv := server.New(server.Options{
		Registry:      registry,
		Processor:     orchestrator,
		Signer:        store,
		Logger:        logger,
		AllowedOrigin: o.config.DomainName,
	})

	addr := fmt.Sprintf(":%d", o.Port)
	logger.Info("starting relay server", "addr", addr, "backend", o.config.StorageBackend, "protocol", o.Protocol)

	err = srv.ListenAndServe(ctx, addr)

	// Uploads are cancelled on shutdown; this bounds the wait for them to
	// unwind.
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if werr := srv.Wait(drainCtx); werr != nil {
		logger.Warn("exiting with uploads still in flight", "error", werr)
	}
	return err
}
