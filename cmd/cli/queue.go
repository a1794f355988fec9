package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var commitSHA string

var queueCmd = &cobra.Command{
	Use:   "queue [pr-id]",
	Short: "Queue a pull request for asynchronous review",
	Long: `Queue a pull request for asynchronous review.

The request is placed on the durable queue and picked up by a worker,
exactly like a webhook notification. The command returns as soon as the
message is accepted.

Examples:
  warden-cli queue 1234
  warden-cli queue 1234 --commit abc123def`,
	Args: cobra.ExactArgs(1),
	RunE: runQueue,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	queueCmd.Flags().StringVarP(&commitSHA, "commit", "c", "", "Head commit the review applies to")
	rootCmd.AddCommand(queueCmd)
}

func runQueue(_ *cobra.Command, args []string) error {
	prID, err := strconv.Atoi(args[0])
	if err != nil || prID <= 0 {
		return fmt.Errorf("pr-id must be a positive integer, got %q", args[0])
	}

	body := map[string]any{"pr_id": prID}
	if commitSHA != "" {
		body["commit_sha"] = commitSHA
	}

	var resp struct {
		MessageID string `json:"message_id"`
		Status    string `json:"status"`
	}
	if err := newAPIClient().post(context.Background(), "/api/v1/webhook", body, &resp); err != nil {
		return err
	}

	successColor.Printf("✅ Review request queued\n")
	dimColor.Printf("   Message ID: %s\n", resp.MessageID)
	return nil
}
