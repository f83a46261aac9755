package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TechnicallyShaun/sttd/internal/transcribe/ledger"
	"github.com/TechnicallyShaun/sttd/internal/transcribe/pidfile"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "status [lang]",
		Short: "Show daemon status and processing history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts, args, recent)
		},
	}
	cmd.Flags().IntVarP(&recent, "recent", "n", 0, "also list the N most recent files")
	return cmd
}

func runStatus(cmd *cobra.Command, opts *rootOptions, args []string, recent int) error {
	out := cmd.OutOrStdout()
	lang := language(args)

	cfg, err := opts.load()
	if err != nil {
		return err
	}

	running, pid, err := pidfile.New(cfg.PidFilePath(lang)).IsRunning()
	switch {
	case err != nil:
		fmt.Fprintf(out, "sttd (%s): unknown (%v)\n", lang, err)
	case running:
		fmt.Fprintf(out, "sttd (%s): running (PID %d)\n", lang, pid)
	default:
		fmt.Fprintf(out, "sttd (%s): not running\n", lang)
	}

	if !cfg.LedgerEnabled() {
		return nil
	}
	if _, err := os.Stat(cfg.Daemon.LedgerPath); err != nil {
		fmt.Fprintln(out, "No files processed yet")
		return nil
	}

	lg, err := ledger.Open(cmd.Context(), cfg.Daemon.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer lg.Close()

	stats, err := lg.Stats(cmd.Context(), lang)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	fmt.Fprintf(out, "Transcribed: %d\n", stats.Transcribed)
	fmt.Fprintf(out, "Failed:      %d\n", stats.Failed)
	if stats.Last != nil {
		fmt.Fprintf(out, "Last:        %s\n", describe(*stats.Last))
	}

	if recent <= 0 {
		return nil
	}
	entries, err := lg.Recent(cmd.Context(), lang, recent)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	fmt.Fprintln(out)
	for _, e := range entries {
		fmt.Fprintf(out, "  %s\n", describe(e))
	}
	return nil
}

func describe(e ledger.Entry) string {
	when := e.CreatedAt.Local().Format(time.DateTime)
	if e.Status == ledger.StatusFailed {
		return fmt.Sprintf("%s %s failed: %s", when, e.File, e.Reason)
	}
	return fmt.Sprintf("%s %s -> %s (%s)", when, e.File, e.Output, e.Elapsed)
}
