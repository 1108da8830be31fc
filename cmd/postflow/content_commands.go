package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"postflow/internal/queue"
)

func newContentCommand(ctx *commandContext) *cobra.Command {
	contentCmd := &cobra.Command{
		Use:   "content",
		Short: "Manage content seeds",
	}
	contentCmd.AddCommand(newContentAddCommand(ctx))
	return contentCmd
}

func newContentAddCommand(ctx *commandContext) *cobra.Command {
	var in queue.NewContent
	var bodyFile string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a content seed for a brand",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			in.Brand = strings.ToLower(strings.TrimSpace(in.Brand))
			if _, ok := cfg.Brand(in.Brand); !ok {
				return fmt.Errorf("unknown brand %q", in.Brand)
			}
			if bodyFile != "" {
				body, err := readBody(cmd, bodyFile)
				if err != nil {
					return err
				}
				in.Body = body
			}
			if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Body) == "" {
				return errors.New("--title and --body (or --body-file) are required")
			}
			return ctx.withStore(cmd, func(runCtx context.Context, store *queue.Store) error {
				item, err := store.AddContent(runCtx, in)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, item)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added content %d for %s: %s\n", item.ID, item.Brand, item.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&in.Brand, "brand", "b", "", "Brand the seed belongs to")
	cmd.Flags().StringVarP(&in.Title, "title", "t", "", "Seed title")
	cmd.Flags().StringVar(&in.Body, "body", "", "Seed body used as the video script")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Read the body from a file (- for stdin)")
	cmd.Flags().Float64Var(&in.QualityScore, "quality", 0, "Quality score compared against the brand's min_quality")
	cmd.Flags().StringVar(&in.FeedSource, "feed", "", "Feed source name")
	cmd.Flags().StringVar(&in.SourceURL, "url", "", "Source article URL")
	return cmd
}

func readBody(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(data), nil
}
