package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	replayMax int
	dryRun    bool
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Manage dead-lettered review requests",
}

var dlqReprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Replay dead-lettered review requests back onto the queue",
	Long: `Replay dead-lettered review requests back onto the queue.

The server first verifies its host credential, then republishes each
dead-lettered message with its idempotency marker cleared so the review
actually runs again. Use --dry-run to see what would be replayed.

Examples:
  warden-cli dlq reprocess
  warden-cli dlq reprocess --max 10 --dry-run`,
	RunE: runDLQReprocess,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	dlqReprocessCmd.Flags().IntVarP(&replayMax, "max", "m", 50, "Maximum number of messages to replay")
	dlqReprocessCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be replayed without changing anything")
	dlqCmd.AddCommand(dlqReprocessCmd)
	rootCmd.AddCommand(dlqCmd)
}

type replaySummary struct {
	DryRun   bool `json:"dry_run"`
	Total    int  `json:"total"`
	Replayed int  `json:"replayed"`
	Failed   int  `json:"failed"`
	Reports  []struct {
		PRID         int    `json:"pr_id"`
		Revision     string `json:"revision"`
		Reason       string `json:"reason"`
		Status       string `json:"status"`
		NewMessageID string `json:"new_message_id"`
		Error        string `json:"error"`
	} `json:"reports"`
}

func runDLQReprocess(_ *cobra.Command, _ []string) error {
	body := map[string]any{"max": replayMax, "dry_run": dryRun}

	var summary replaySummary
	if err := newAPIClient().post(context.Background(), "/api/v1/dead-letters/reprocess", body, &summary); err != nil {
		return err
	}

	if summary.DryRun {
		titleColor.Printf("🔍 Dry run: %d dead-lettered message(s)\n", summary.Total)
	} else {
		titleColor.Printf("♻️  Reprocessed %d dead-lettered message(s): %d replayed, %d failed\n",
			summary.Total, summary.Replayed, summary.Failed)
	}

	for _, r := range summary.Reports {
		fmt.Println()
		boldColor.Printf("PR #%d", r.PRID)
		if r.Revision != "" {
			dimColor.Printf(" @ %s", shortRevision(r.Revision))
		}
		fmt.Println()
		if r.Reason != "" {
			dimColor.Printf("   Failed with: %s\n", r.Reason)
		}
		switch r.Status {
		case "replayed":
			successColor.Printf("   ✓ Replayed as %s\n", r.NewMessageID)
		case "failed":
			errorColor.Printf("   ✗ Replay failed: %s\n", r.Error)
		case "dry_run":
			warnColor.Println("   Would be replayed")
		}
	}
	return nil
}
