package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"postflow/internal/daemonctl"
	"postflow/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, workflow, and preflight status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, snap)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderSnapshot(snap, shouldColorize(out)))
			return nil
		},
	}
}

func renderSnapshot(snap *daemonctl.Snapshot, colorize bool) string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line(renderSectionHeader("Daemon", colorize))
	switch {
	case snap.Running && snap.Daemon != nil:
		line(renderStatusLine("Daemon", statusOK, "Running on "+snap.Daemon.Address, colorize))
	case snap.PID > 0 && daemonctl.ProcessAlive(snap.PID):
		line(renderStatusLine("Daemon", statusWarn, fmt.Sprintf("Process %d alive but API unreachable", snap.PID), colorize))
	default:
		line(renderStatusLine("Daemon", statusInfo, "Not running", colorize))
	}
	if snap.Daemon != nil {
		for _, h := range snap.Daemon.Workflow.StageHealth {
			kind, detail := statusOK, "Ready"
			if !h.Ready {
				kind, detail = statusError, h.Detail
			}
			line(renderStatusLine("Stage "+h.Name, kind, detail, colorize))
		}
	}

	line("")
	line(renderSectionHeader("Workflows", colorize))
	rows := make([][]string, 0, len(snap.Counts))
	for _, status := range queue.AllStatuses() {
		rows = append(rows, []string{string(status), strconv.Itoa(snap.Counts[string(status)])})
	}
	line(renderTable([]string{"Status", "Count"}, rows, 1))

	line("")
	line(renderSectionHeader("Preflight", colorize))
	for _, r := range snap.Preflight {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		line(renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return b.String()
}
