package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/sttd/internal/transcribe"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run [lang]",
		Short: "Run the transcription daemon in the foreground",
		Long: `Run the transcription daemon in the foreground.

The daemon runs until interrupted with Ctrl+C or SIGTERM, or until a fatal
error occurs. On exit the input, output and temp directories are removed
unless wipe_on_exit is false.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts, args)
		},
	}
}

func runDaemon(cmd *cobra.Command, opts *rootOptions, args []string) error {
	lang := language(args)

	cfg, err := opts.load()
	if err != nil {
		return err
	}

	svc, err := transcribe.NewService(cfg, lang)
	if err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return svc.Run(ctx)
}
