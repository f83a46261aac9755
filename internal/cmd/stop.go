package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/TechnicallyShaun/sttd/internal/transcribe/pidfile"
)

// stopTimeout is the maximum time to wait for graceful shutdown before sending SIGKILL
var stopTimeout = 10 * time.Second

const stopPollInterval = 100 * time.Millisecond

func newStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [lang]",
		Short: "Stop a running daemon",
		Long: `Stop the daemon serving a language.

Reads the PID from <data_path>/sttd-<lang>.pid and sends SIGTERM. The daemon
finishes the file in progress, then terminates. If the process doesn't exit
within 10 seconds, SIGKILL is sent. The PID file is removed afterwards.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd, opts, args)
		},
	}
}

func runStop(cmd *cobra.Command, opts *rootOptions, args []string) error {
	out := cmd.OutOrStdout()
	lang := language(args)

	cfg, err := opts.load()
	if err != nil {
		return err
	}
	pf := pidfile.New(cfg.PidFilePath(lang))

	running, pid, err := pf.IsRunning()
	if err != nil && !errors.Is(err, pidfile.ErrInvalidPID) {
		return err
	}
	if pid == 0 {
		if errors.Is(err, pidfile.ErrInvalidPID) {
			if rmErr := pf.Remove(); rmErr != nil {
				fmt.Fprintf(out, "Warning: %v\n", rmErr)
			}
		}
		fmt.Fprintf(out, "sttd (%s) is not running\n", lang)
		return nil
	}
	if !running {
		if err := pf.Remove(); err != nil {
			fmt.Fprintf(out, "Warning: failed to remove stale PID file: %v\n", err)
		}
		fmt.Fprintf(out, "sttd (%s) is not running (removed stale PID file for PID %d)\n", lang, pid)
		return nil
	}

	fmt.Fprintf(out, "Stopping sttd (%s, PID %d)...\n", lang, pid)

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}

	if !waitForExit(pid, stopTimeout) {
		fmt.Fprintln(out, "Process did not exit gracefully, sending SIGKILL...")
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("send SIGKILL: %w", err)
		}
		waitForExit(pid, 2*time.Second)
	}

	if err := pf.Remove(); err != nil {
		fmt.Fprintf(out, "Warning: failed to remove PID file: %v\n", err)
	}

	fmt.Fprintf(out, "sttd (%s) stopped\n", lang)
	return nil
}

// waitForExit polls until the process exits or timeout is reached
func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		alive, err := pidfile.Alive(pid)
		if err != nil || !alive {
			return true
		}
		time.Sleep(stopPollInterval)
	}
	return false
}
