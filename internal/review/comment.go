package review

import (
	"fmt"
	"strings"

	"github.com/sevigo/regression-warden/internal/core"
)

// FormatComment builds the PR comment body posted for warning and blocking
// reviews: a standard header naming the verdict and the stored review
// location, followed by the full review markdown.
func FormatComment(author, storagePath string, severity core.Severity, reviewMarkdown string) string {
	var b strings.Builder
	b.WriteString("## Regression-Warden - Automated Regression Review\n\n")

	if severity == core.SeverityBlocking {
		fmt.Fprintf(&b, "⛔ **Sorry Dave ('%s'), I can't let you merge this time. This PR has been automatically rejected due to blocking issues.**\n\n", author)
	} else {
		b.WriteString("⚠️ **Warning: This PR has potential issues that should be reviewed.**\n\n")
	}

	fmt.Fprintf(&b, "📁 Full review saved to: `%s`\n\n---\n\n", storagePath)
	b.WriteString(reviewMarkdown)
	return b.String()
}
