package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	rootLong = templates.LongDesc(`
		Relay files from object storage into IPFS, reporting progress to
		clients over a WebSocket.`)

	rootExamples = templates.Examples(`
		# Serve the relay using configuration from the environment
		relay serve

		# Relay local files once and print progress to the terminal
		relay upload --dir ./uploads a.mp3 b.mp3`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// RelayOptions defines the options for the `relay` command.
type RelayOptions struct {
	iooption.IOStreams
}

// NewRelayOptions provides an initialised RelayOptions instance.
func NewRelayOptions(streams iooption.IOStreams) *RelayOptions {
	return &RelayOptions{
		IOStreams: streams,
	}
}

// NewRootCommand creates the `relay` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewRelayOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `relay` command and its nested
// children.
func NewRootCommandWithArgs(o *RelayOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "relay [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "Object storage to IPFS upload relay",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	cmd.AddCommand(NewServeCommand(NewServeOptions(o.IOStreams)))
	cmd.AddCommand(NewUploadCommand(NewUploadOptions(o.IOStreams)))

	// Flags written with underscores are accepted with a warning and rewritten
	// to dashes. Set after AddCommand so it reaches every subcommand.
	warnings := printer.NewWarningPrinter(o.ErrOut, printer.WarningPrinterOptions{Color: true})
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(warnings))

	return cmd
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
