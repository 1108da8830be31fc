package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"postflow/internal/api"
	"postflow/internal/daemonrun"
	"postflow/internal/queue"
)

func newWorkflowsCommand(ctx *commandContext) *cobra.Command {
	workflowsCmd := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"wf"},
		Short:   "Inspect and retry workflow records",
	}
	workflowsCmd.AddCommand(newWorkflowsListCommand(ctx))
	workflowsCmd.AddCommand(newWorkflowsShowCommand(ctx))
	workflowsCmd.AddCommand(newWorkflowsRetryCommand(ctx))
	workflowsCmd.AddCommand(newWebhookFailuresCommand(ctx))
	return workflowsCmd
}

func newWorkflowsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var brand string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := queue.ListFilter{Brand: brand, Limit: limit}
			for _, raw := range statuses {
				for part := range strings.SplitSeq(raw, ",") {
					if strings.TrimSpace(part) == "" {
						continue
					}
					status, ok := queue.ParseStatus(part)
					if !ok {
						return fmt.Errorf("unknown status %q", part)
					}
					filter.Statuses = append(filter.Statuses, status)
				}
			}
			return ctx.withStore(cmd, func(runCtx context.Context, store *queue.Store) error {
				workflows, err := api.NewWorkflowService(store).List(runCtx, filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.WorkflowListResponse{Items: workflows})
				}
				out := cmd.OutOrStdout()
				if len(workflows) == 0 {
					fmt.Fprintln(out, "No workflows found")
					return nil
				}
				fmt.Fprintln(out, renderWorkflowTable(workflows))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable or comma-separated)")
	cmd.Flags().StringVarP(&brand, "brand", "b", "", "Filter by brand")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show (0 for all)")
	return cmd
}

func renderWorkflowTable(workflows []api.Workflow) string {
	rows := make([][]string, 0, len(workflows))
	for _, wf := range workflows {
		rows = append(rows, []string{
			strconv.FormatInt(wf.ID, 10),
			wf.Brand,
			wf.Status,
			truncate(wf.Title, 40),
			strconv.Itoa(wf.RetryCount),
			wf.UpdatedAt,
		})
	}
	return renderTable([]string{"ID", "Brand", "Status", "Title", "Retries", "Updated"}, rows, 0, 4)
}

func newWorkflowsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one workflow in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(runCtx context.Context, store *queue.Store) error {
				wf, err := api.NewWorkflowService(store).Describe(runCtx, id)
				if err != nil {
					return err
				}
				if wf == nil {
					return fmt.Errorf("workflow %d not found", id)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.WorkflowResponse{Item: *wf})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderWorkflowDetail(*wf))
				return nil
			})
		},
	}
}

func renderWorkflowDetail(wf api.Workflow) string {
	var b strings.Builder
	field := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "%-16s %s\n", label+":", value)
	}
	field("ID", strconv.FormatInt(wf.ID, 10))
	field("Brand", wf.Brand)
	field("Title", wf.Title)
	field("Status", wf.Status)
	field("Presenter", wf.Presenter)
	field("Synthesis job", wf.SynthesisJobID)
	field("Caption job", wf.CaptionJobID)
	field("Final asset", wf.FinalAssetURL)
	field("Retries", strconv.Itoa(wf.RetryCount))
	field("Failed stage", wf.FailedStage)
	field("Last error", wf.LastError)
	field("Created", wf.CreatedAt)
	field("Updated", wf.UpdatedAt)
	if len(wf.Schedule) > 0 {
		rows := make([][]string, 0, len(wf.Schedule))
		for _, d := range wf.Schedule {
			rows = append(rows, []string{
				d.ScheduledAt,
				strings.Join(d.Platforms, ", "),
				yesNo(d.Published),
				d.Error,
			})
		}
		b.WriteString(renderTable([]string{"Scheduled", "Platforms", "Published", "Error"}, rows))
		b.WriteByte('\n')
	}
	return b.String()
}

func newWorkflowsRetryCommand(ctx *commandContext) *cobra.Command {
	var allFailed bool
	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reopen failed workflows at the stage they failed in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !allFailed {
				return errors.New("pass workflow ids or --all-failed")
			}
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(runCtx context.Context, rt *daemonrun.Runtime) error {
				if allFailed {
					failed, err := rt.Store.List(runCtx, queue.ListFilter{Statuses: []queue.Status{queue.StatusFailed}})
					if err != nil {
						return err
					}
					for _, item := range failed {
						ids = append(ids, item.ID)
					}
				}
				results, err := api.RetryFailedByID(runCtx, rt.Store, ids, cfg.Workflow.MaxRetries)
				if err != nil {
					return err
				}
				for _, item := range results.Reopened {
					if advanced, advErr := rt.Manager.Advance(runCtx, item.ID); advErr == nil && advanced != nil {
						for i := range results.Items {
							if results.Items[i].ID == advanced.ID {
								results.Items[i].NewStatus = string(advanced.Status)
							}
						}
					}
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, results)
				}
				out := cmd.OutOrStdout()
				for _, r := range results.Items {
					switch r.Outcome {
					case api.RetryUpdated:
						fmt.Fprintf(out, "Workflow %d reopened (%s)\n", r.ID, r.NewStatus)
					default:
						fmt.Fprintf(out, "Workflow %d not retried: %s\n", r.ID, strings.ReplaceAll(string(r.Outcome), "_", " "))
					}
				}
				fmt.Fprintf(out, "%d workflow(s) reopened\n", results.UpdatedCount)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&allFailed, "all-failed", false, "Retry every failed workflow")
	return cmd
}

func newWebhookFailuresCommand(ctx *commandContext) *cobra.Command {
	var provider string
	var includeResolved bool
	var limit int

	cmd := &cobra.Command{
		Use:     "webhook-failures",
		Aliases: []string{"dead-letters"},
		Short:   "List provider callbacks that failed to apply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := queue.WebhookFailureFilter{Provider: provider, IncludeResolved: includeResolved, Limit: limit}
			return ctx.withStore(cmd, func(runCtx context.Context, store *queue.Store) error {
				failures, err := api.ListWebhookFailures(runCtx, store, filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.WebhookFailureListResponse{Items: failures})
				}
				out := cmd.OutOrStdout()
				if len(failures) == 0 {
					fmt.Fprintln(out, "No webhook failures")
					return nil
				}
				fmt.Fprintln(out, renderWebhookFailureTable(failures))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Filter by provider (synthesis or captions)")
	cmd.Flags().BoolVar(&includeResolved, "all", false, "Include failures a later delivery resolved")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show (0 for all)")
	return cmd
}

func renderWebhookFailureTable(failures []api.WebhookFailure) string {
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		kind := "transient"
		if f.Permanent {
			kind = "permanent"
		}
		if f.ResolvedAt != "" {
			kind = "resolved"
		}
		rows = append(rows, []string{
			strconv.FormatInt(f.ID, 10),
			f.Provider,
			f.DeliveryKey,
			kind,
			strconv.Itoa(f.Attempts),
			f.LastFailedAt,
			truncate(f.Error, 48),
		})
	}
	return renderTable([]string{"ID", "Provider", "Delivery", "Kind", "Attempts", "Last failed", "Error"}, rows, 0, 4)
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid workflow id %q", value)
	}
	return id, nil
}
