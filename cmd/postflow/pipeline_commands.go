package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"postflow/internal/api"
	"postflow/internal/daemonrun"
	"postflow/internal/selector"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one recovery sweep over active workflows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock := flock.New(filepath.Join(cfg.Paths.LogDir, "postflow-sweep.lock"))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire sweep lock: %w", err)
			}
			if !locked {
				fmt.Fprintln(cmd.OutOrStdout(), "Another sweep is running on this host")
				return nil
			}
			defer lock.Unlock()

			return ctx.withRuntime(cmd, func(runCtx context.Context, rt *daemonrun.Runtime) error {
				summary, err := rt.Monitor.Sweep(runCtx)
				if err != nil {
					return err
				}
				resp := api.FromSweepSummary(summary)
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Skipped {
					fmt.Fprintln(out, "Sweep skipped: another sweep holds the lease")
					return nil
				}
				fmt.Fprintf(out, "Processed %d: advanced %d, completed %d, failed %d, stuck %d, retried %d, unchanged %d, errors %d (%s)\n",
					resp.Processed, resp.Advanced, resp.Completed, resp.Failed, resp.Stuck,
					resp.Retried, resp.Unchanged, resp.Errors,
					(time.Duration(resp.DurationMS) * time.Millisecond).String())
				return nil
			})
		},
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var brand string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a workflow from the next eligible content for a brand",
		RunE: func(cmd *cobra.Command, _ []string) error {
			brand = strings.ToLower(strings.TrimSpace(brand))
			if brand == "" {
				return errors.New("--brand is required")
			}
			return ctx.withRuntime(cmd, func(runCtx context.Context, rt *daemonrun.Runtime) error {
				out := cmd.OutOrStdout()
				item, err := rt.Selector.Start(runCtx, brand)
				if errors.Is(err, selector.ErrNoContent) {
					if ctx.jsonOutput() {
						return writeJSON(cmd, api.StartResponse{Success: true, Message: "no eligible content for " + brand})
					}
					fmt.Fprintf(out, "No eligible content for %s\n", brand)
					return nil
				}
				if err != nil {
					return err
				}
				advanced, advErr := rt.Manager.Started(runCtx, item)
				if advanced != nil {
					item = advanced
				}
				workflow := api.FromItem(item)
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.StartResponse{Success: true, Started: true, Workflow: &workflow})
				}
				fmt.Fprintf(out, "Started workflow %d (%s) for %s: %s\n", item.ID, item.Status, brand, item.Title)
				if advErr != nil {
					fmt.Fprintf(out, "First stage deferred to the next sweep: %v\n", advErr)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&brand, "brand", "b", "", "Brand to start a workflow for")
	return cmd
}
