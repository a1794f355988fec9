package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var revision string

// Color definitions
var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	infoColor    = color.New(color.FgWhite)
	dimColor     = color.New(color.FgHiBlack)
	boldColor    = color.New(color.Bold)
)

var reviewCmd = &cobra.Command{
	Use:   "review [pr-id]",
	Short: "Run a regression review for a pull request and wait for the result",
	Long: `Run a regression review for a pull request and wait for the result.

The review command asks the server to fetch the PR, generate a regression
review, classify its findings and apply the severity-gated actions, then
prints the outcome.

Examples:
  warden-cli review 1234
  warden-cli review 1234 --revision abc123def`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	reviewCmd.Flags().StringVarP(&revision, "revision", "r", "", "Review a specific head commit instead of the current one")
	rootCmd.AddCommand(reviewCmd)
}

type reviewResult struct {
	PRID          int    `json:"pr_id"`
	Revision      string `json:"revision"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	FilesChanged  int    `json:"files_changed"`
	MaxSeverity   string `json:"max_severity"`
	HasBlocking   bool   `json:"has_blocking"`
	HasWarning    bool   `json:"has_warning"`
	ActionTaken   string `json:"action_taken"`
	Commented     bool   `json:"commented"`
	StoragePath   string `json:"storage_path"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
	ReviewPreview string `json:"review_preview"`
}

func runReview(cmd *cobra.Command, args []string) error {
	prID, err := strconv.Atoi(args[0])
	if err != nil || prID <= 0 {
		return fmt.Errorf("pr-id must be a positive integer, got %q", args[0])
	}

	titleColor.Println("🚀 Regression-Warden - PR Review")
	dimColor.Printf("   Target: PR #%d\n\n", prID)

	fmt.Println("Running review, this can take a few minutes...")
	start := time.Now()

	var result reviewResult
	body := map[string]any{"pr_id": prID}
	if revision != "" {
		body["revision"] = revision
	}
	if err := newAPIClient().post(context.Background(), "/api/v1/reviews", body, &result); err != nil {
		return err
	}

	dimColor.Printf("⏱️  Total time: %s\n", time.Since(start).Round(time.Millisecond))
	printResult(&result)
	return nil
}

func printResult(r *reviewResult) {
	separator := strings.Repeat("═", 60)

	fmt.Println()
	titleColor.Println(separator)
	titleColor.Println("📋 REVIEW RESULT")
	titleColor.Println(separator)
	fmt.Println()

	boldColor.Printf("PR #%d: %s\n", r.PRID, r.Title)
	infoColor.Printf("Author:        %s\n", r.Author)
	infoColor.Printf("Revision:      %s\n", shortRevision(r.Revision))
	infoColor.Printf("Files changed: %d\n", r.FilesChanged)

	fmt.Print("Severity:      ")
	printSeverityBadge(r.MaxSeverity)
	fmt.Println()

	infoColor.Printf("Action:        %s\n", r.ActionTaken)
	if r.StoragePath != "" {
		dimColor.Printf("Saved to:      %s\n", r.StoragePath)
	}

	switch r.Status {
	case "failed":
		fmt.Println()
		errorColor.Printf("❌ Review failed: %s\n", r.FailureReason)
	default:
		if r.HasBlocking {
			fmt.Println()
			errorColor.Println("⛔ Blocking regressions found, the PR was rejected.")
		} else if r.HasWarning {
			fmt.Println()
			warnColor.Println("⚠️  Potential regressions found, see the PR comment.")
		} else {
			fmt.Println()
			successColor.Println("✅ No regressions found.")
		}
	}

	if r.ReviewPreview != "" {
		fmt.Println()
		dimColor.Println(strings.Repeat("─", 60))
		fmt.Println(r.ReviewPreview)
	}
	fmt.Println()
}

func printSeverityBadge(severity string) {
	switch severity {
	case "blocking":
		color.New(color.BgRed, color.FgWhite, color.Bold).Printf(" %s ", severity)
	case "warning":
		color.New(color.BgYellow, color.FgBlack).Printf(" %s ", severity)
	case "info":
		color.New(color.BgGreen, color.FgWhite).Printf(" %s ", severity)
	default:
		color.New(color.BgWhite, color.FgBlack).Printf(" %s ", severity)
	}
}

func shortRevision(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}
