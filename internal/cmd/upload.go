package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/ipfs-relay/internal/channel"
	"github.com/tomasbasham/ipfs-relay/internal/config"
	"github.com/tomasbasham/ipfs-relay/internal/logging"
	"github.com/tomasbasham/ipfs-relay/internal/relay"
	"github.com/tomasbasham/ipfs-relay/internal/storage"
)

// cliConnectionID addresses the terminal when the relay runs as a one-shot
// command.
const cliConnectionID = "cli"

type UploadOptions struct {
	config  *config.Config
	logger  *slog.Logger
	encoder channel.Encoder

	Filenames []string
	Dir       string
	EnvFiles  []string
	LogLevel  string
	Protocol  string

	iooption.IOStreams
}

var (
	uploadLong = templates.LongDesc(`
		Relay the named objects into IPFS once, printing each status message
		to standard output. Objects are read from the configured bucket, or
		from a local directory when --dir is given.`)

	uploadExample = templates.Examples(`
		# Relay two objects from the configured bucket
		relay upload a.mp3 b.mp3

		# Relay files from a local directory with bare status tokens
		relay upload --dir ./uploads --protocol token a.mp3`)
)

func NewUploadOptions(streams iooption.IOStreams) *UploadOptions {
	return &UploadOptions{
		IOStreams: streams,
	}
}

func NewUploadCommand(o *UploadOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "upload [FILENAME...]",
		DisableFlagsInUseLine: true,
		Short:                 "Relay objects into IPFS once",
		Long:                  uploadLong,
		Example:               uploadExample,
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

	flags := cmd.Flags()

	flags.StringVarP(&o.Dir, "dir", "d", "", "Read objects from this directory instead of the configured bucket")
	flags.StringSliceVar(&o.EnvFiles, "env-file", nil, "Load environment variables from these files")
	flags.StringVar(&o.LogLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	flags.StringVar(&o.Protocol, "protocol", channel.ProtocolJSON, "Status message encoding: json or token")

	return cmd
}

func (o *UploadOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("at least one filename is required")
	}
	o.Filenames = args

	logger, err := logging.New(o.ErrOut, o.LogLevel, logging.FormatText)
	if err != nil {
		return err
	}
	o.logger = logger

	encoder, err := channel.NewEncoder(o.Protocol)
	if err != nil {
		return err
	}
	o.encoder = encoder

	// A local directory replaces the bucket settings entirely.
	var overrides map[string]string
	if o.Dir != "" {
		overrides = map[string]string{
			"STORAGE_BACKEND": config.BackendDisk,
			"STORAGE_DIR":     o.Dir,
		}
	}
	cfg, err := config.LoadWithOverrides(overrides, o.EnvFiles...)
	if err != nil {
		return err
	}
	o.config = cfg

	return nil
}

func (o *UploadOptions) Validate() error {
	if len(o.Filenames) == 0 {
		return fmt.Errorf("at least one filename is required")
	}
	return nil
}

func (o *UploadOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newBlobStore(ctx, o.config)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	return o.relayFiles(ctx, store)
}

// relayFiles runs the batch against fetcher, writing status messages to o.Out.
func (o *UploadOptions) relayFiles(ctx context.Context, fetcher storage.Fetcher) error {
	ch := channel.NewWriterChannel(o.Out, o.encoder)
	orchestrator := newOrchestrator(o.config, fetcher, ch, o.logger)
	return runBatch(ctx, orchestrator, o.Filenames)
}

type processor interface {
	Process(ctx context.Context, connectionID string, raw []byte) relay.Outcome
}

// runBatch submits filenames as a single upload message.
func runBatch(ctx context.Context, p processor, filenames []string) error {
	msg := map[string]any{
		"action": "ipfs-upload",
		"data":   map[string]any{"filenames": filenames},
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode upload message: %w", err)
	}

	out := p.Process(ctx, cliConnectionID, raw)
	if out.StatusCode != http.StatusOK {
		return fmt.Errorf("upload failed with status %d: %v", out.StatusCode, out.Body)
	}
	return nil
}
