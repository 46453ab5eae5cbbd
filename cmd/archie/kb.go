package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/archie/internal/publish"
)

func newKBCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Propose direct edits to the knowledge base",
		Long: `Propose direct edits to the knowledge base through change requests.

Examples:
  # Propose removing a document
  archie kb delete troubleshooting/old-vpn.md --reason "VPN was retired"

  # Apply several edits in one change request
  archie kb batch edits.yaml

  # Check on a change request
  archie kb status 42`,
	}
	cmd.AddCommand(newKBDeleteCmd(flags))
	cmd.AddCommand(newKBBatchCmd(flags))
	cmd.AddCommand(newKBStatusCmd(flags))
	return cmd
}

func newKBDeleteCmd(flags *globalFlags) *cobra.Command {
	var title, reason string
	cmd := &cobra.Command{
		Use:   "delete <path>",
		Short: "Propose removing a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			p, err := a.publisher()
			if err != nil {
				return err
			}
			res, err := p.Delete(ctx, publish.Deletion{Path: args[0], Title: title, Reason: reason})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Document title for the branch and change request (default: file name)")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the document should go")
	return cmd
}

func newKBBatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file|->",
		Short: "Apply a file of edits as one change request",
		Long: `Apply a file of edits as one change request.

The file is YAML (or JSON):

  title: Q1 cleanup
  summary: Refresh deployment docs
  operations:
    - action: update
      path: process/deploy.md
      content: |
        # Deploy
        ...
    - action: append
      path: troubleshooting/db-timeout.md
      content: Also check the pool size.
    - action: delete
      path: general/old.md

Actions are create, update, append and delete. A failed operation is
reported and the others still apply.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read batch: %w", err)
			}
			var batch publish.Batch
			if err := yaml.Unmarshal(data, &batch); err != nil {
				return fmt.Errorf("failed to parse batch: %w", err)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			p, err := a.publisher()
			if err != nil {
				return err
			}
			res, err := p.Batch(ctx, batch)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newKBStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the state of a change request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id < 1 {
				return fmt.Errorf("invalid change request id %q", args[0])
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			p, err := a.publisher()
			if err != nil {
				return err
			}
			status, err := p.Status(ctx, id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), status)
		},
	}
}
