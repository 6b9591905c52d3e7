package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/consultline/conversync"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "conversync",
		Short:         "Conversation sync client: watch, send, and manage takeover",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newWatchCmd(),
		newSendCmd(),
		newTakeoverCmd(),
	)

	return rootCmd
}

// newEngine builds an engine from the environment with a text logger on
// stderr so stdout stays clean for conversation output.
func newEngine(verbose bool) (*conversync.Engine, error) {
	cfg, err := conversync.LoadConfig()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return conversync.New(cfg, conversync.WithLogger(logger))
}
