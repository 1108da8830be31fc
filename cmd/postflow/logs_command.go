package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"postflow/internal/logs"
)

const followWait = 2 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines      int
		follow     bool
		workflowID int64
		component  string
		level      string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if lines < 0 {
				return errors.New("--lines must not be negative")
			}
			filter := logs.Filter{WorkflowID: workflowID, Component: component, MinLevel: level}
			path := cfg.DaemonLogPath()

			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			if follow {
				var stop context.CancelFunc
				runCtx, stop = signal.NotifyContext(runCtx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
			}

			out := cmd.OutOrStdout()
			result, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: -1, Limit: lines, Filter: filter})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(result.Lines) == 0 && lines > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "No log lines in %s\n", path)
				}
				return nil
			}

			offset := result.Offset
			for {
				next, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: followWait, Filter: filter})
				if err != nil {
					if runCtx.Err() != nil {
						return nil
					}
					return err
				}
				for _, line := range next.Lines {
					fmt.Fprintln(out, line)
				}
				offset = next.Offset
				if runCtx.Err() != nil {
					return nil
				}
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().Int64VarP(&workflowID, "workflow", "w", 0, "Only lines for this workflow id")
	cmd.Flags().StringVar(&component, "component", "", "Only lines from this component (e.g. synthesis)")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}
