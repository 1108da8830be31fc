package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"postflow/internal/daemonrun"
	"postflow/internal/scheduling"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var brand string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview where a brand's next video would be scheduled",
		RunE: func(cmd *cobra.Command, _ []string) error {
			brand = strings.ToLower(strings.TrimSpace(brand))
			if brand == "" {
				return errors.New("--brand is required")
			}
			return ctx.withRuntime(cmd, func(_ context.Context, rt *daemonrun.Runtime) error {
				preview, err := rt.Planner.Describe(brand)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, preview)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderPreview(preview))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&brand, "brand", "b", "", "Brand to preview")
	return cmd
}

func renderPreview(p scheduling.Preview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Brand:    %s\n", p.Brand)
	fmt.Fprintf(&b, "Timezone: %s\n", p.Timezone)
	fmt.Fprintf(&b, "Policy:   %s\n", p.Policy)
	fmt.Fprintf(&b, "Now:      %s\n", p.Now.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Ladder:   %s\n", joinHours(p.Ladder))

	rows := make([][]string, 0, len(p.Platforms))
	for _, platform := range p.Platforms {
		next := "-"
		if !platform.Next.IsZero() {
			next = platform.Next.Format("Mon 2006-01-02 15:04")
		}
		rows = append(rows, []string{platform.Platform, joinHours(platform.Hours), next})
	}
	b.WriteString(renderTable([]string{"Platform", "Ranked hours", "Next slot"}, rows))
	b.WriteByte('\n')
	return b.String()
}

func joinHours(hours []int) string {
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = fmt.Sprintf("%02d:00", h)
	}
	return strings.Join(parts, ", ")
}

type slotDay struct {
	Day      string                   `json:"day"`
	Holdings []scheduling.SlotHolding `json:"holdings"`
}

func newSlotsCommand(ctx *commandContext) *cobra.Command {
	var brand string
	var day string
	var days int
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List claimed publish slots for a brand",
		RunE: func(cmd *cobra.Command, _ []string) error {
			brand = strings.ToLower(strings.TrimSpace(brand))
			if brand == "" {
				return errors.New("--brand is required")
			}
			if days <= 0 {
				return errors.New("--days must be positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			loc, err := cfg.BrandLocation(brand)
			if err != nil {
				return err
			}
			start := time.Now().In(loc)
			if day != "" {
				if start, err = time.ParseInLocation("2006-01-02", day, loc); err != nil {
					return fmt.Errorf("invalid --day %q: %w", day, err)
				}
			}
			return ctx.withRuntime(cmd, func(runCtx context.Context, rt *daemonrun.Runtime) error {
				lister, ok := rt.Claimer.(scheduling.SlotLister)
				if !ok {
					return errors.New("slot claim backend cannot list claims")
				}
				result := make([]slotDay, 0, days)
				for offset := range days {
					key := start.AddDate(0, 0, offset).Format("2006-01-02")
					holdings, err := lister.Holdings(runCtx, brand, key)
					if err != nil {
						return err
					}
					result = append(result, slotDay{Day: key, Holdings: holdings})
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				var rows [][]string
				for _, d := range result {
					for _, h := range d.Holdings {
						rows = append(rows, []string{d.Day, fmt.Sprintf("%02d:00", h.Hour), h.Owner})
					}
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintf(out, "No claimed slots for %s\n", brand)
					return nil
				}
				fmt.Fprintln(out, renderTable([]string{"Day", "Hour", "Owner"}, rows))
				fmt.Fprintf(out, "%d claimed slot(s)\n", len(rows))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&brand, "brand", "b", "", "Brand to inspect")
	cmd.Flags().StringVar(&day, "day", "", "First day to list (YYYY-MM-DD, brand timezone; default today)")
	cmd.Flags().IntVar(&days, "days", 3, "Number of days to list")
	return cmd
}
