package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/sttd/internal/transcribe"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

// NewRootCmd creates the root command for the sttd CLI. Invoked with only a
// language argument it runs the daemon in the foreground.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "sttd [lang]",
		Short: "Offline speech-to-text file daemon",
		Long: `sttd polls an input directory for audio files whose names start with a
language code, converts them with ffmpeg, transcribes them with a local Vosk
model and writes one plain-text transcript per file to the output directory.

The language argument selects the model (<model_root>/models/<lang>) and the
filename prefix to accept. It defaults to "` + transcribe.DefaultLanguage + `".`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts, args)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", transcribe.DefaultConfigFile, "path to the YAML configuration file")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newStopCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// language returns the language argument or the default.
func language(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return transcribe.DefaultLanguage
}

func (o *rootOptions) load() (*transcribe.Config, error) {
	cfg, err := transcribe.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
