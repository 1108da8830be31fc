package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"postflow/internal/daemonctl"
	"postflow/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run or control the postflow daemon",
	}

	var logLevel string
	var development bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	runCmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Launch postflowd in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			client := daemonctl.NewClient(cfg)
			if _, err := client.Status(cmd.Context()); err == nil {
				fmt.Fprintln(out, "Daemon already running")
				return nil
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			if err := daemonctl.Launch(exe, ctx.configPath()); err != nil {
				return err
			}
			status, err := client.WaitForStatus(cmd.Context(), 10*time.Second)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Daemon started on %s\n", status.Address)
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cfg, 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon (pid %d) did not exit in time and was killed\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon (pid %d) stopped\n", result.PID)
			return nil
		},
	}

	daemonCmd.AddCommand(runCmd, startCmd, stopCmd)
	return daemonCmd
}

// daemonExecutable prefers a postflowd next to this binary, then PATH.
func daemonExecutable() (string, error) {
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), "postflowd")
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath("postflowd")
	if err != nil {
		return "", fmt.Errorf("locate postflowd: %w", err)
	}
	return path, nil
}
