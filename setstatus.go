package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sheetpoll/sheetpoll/ledger"
	"github.com/sheetpoll/sheetpoll/model"
)

// newSetStatusCmd builds the maintenance subcommand that updates the review
// status of already-persisted attachments. It runs independently of the main
// pipeline and is idempotent; per-file mismatches are reported but never
// abort the batch.
func newSetStatusCmd() *cobra.Command {
	var ledgerPath string

	cmd := &cobra.Command{
		Use:   "set-status <status> <filename>...",
		Short: "Update the review status of extracted attachments in the ledger",
		Long: `Update the review status of extracted attachments in the ledger.

Status is one of: pending_approval, approved, rejected.
Filenames address attachments as <hash>.<extension>, the names used in the
attachment output directory.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := model.ParseStatus(args[0])
			if err != nil {
				return err
			}

			store, err := ledger.NewStore(ledgerPath, nil)
			if err != nil {
				return fmt.Errorf("ledger.NewStore: %w", err)
			}

			results, err := store.UpdateAttachmentStatus(args[1:], status)
			for _, res := range results {
				if res.Updated {
					fmt.Printf("%s: set to %s\n", res.Filename, status)
					continue
				}
				fmt.Printf("%s: not updated (%s)\n", res.Filename, res.Reason)
			}
			if err != nil {
				return fmt.Errorf("persist ledger: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ledgerPath, "ledger", "processed_emails.json", "Path to the processed-email ledger file")

	return cmd
}
