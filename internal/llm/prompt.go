// Package llm provides the review-backend client: prompt construction and
// generation via a configured language model, with bounded retries.
package llm

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/sevigo/regression-warden/internal/core"
)

//go:embed prompts/regression_review.prompt
var systemPrompt string

// SystemPrompt returns the fixed regression-review instruction block.
func SystemPrompt() string {
	return systemPrompt
}

// BuildPrompt assembles the user prompt from PR metadata and the full
// before/after content of each changed file. Binary files are listed by
// name only; their bytes never reach the model. Repo-level custom
// instructions, when present, are appended at the end.
func BuildPrompt(prID int, meta *core.PRMetadata, files []core.ChangedFile, repoConfig *core.RepoConfig) string {
	var b strings.Builder

	b.WriteString("# Pull Request to Review\n\n")
	fmt.Fprintf(&b, "**Title:** %s\n", meta.Title)
	fmt.Fprintf(&b, "**ID:** %d\n", prID)
	fmt.Fprintf(&b, "**Author:** %s\n", meta.Author)
	fmt.Fprintf(&b, "**Source Branch:** %s\n", meta.SourceRef)
	fmt.Fprintf(&b, "**Target Branch:** %s\n\n", meta.TargetRef)
	b.WriteString("---\n\n# File Changes\n\n")

	for _, f := range files {
		fmt.Fprintf(&b, "## %s\n", f.Path)
		fmt.Fprintf(&b, "**Change Type:** %s\n\n", f.ChangeType)

		if f.IsBinary {
			b.WriteString("(binary file, content omitted)\n\n---\n\n")
			continue
		}

		switch f.ChangeType {
		case "removed":
			b.WriteString("### Deleted Content (being removed):\n")
			writeFence(&b, f.BeforeContent, "(empty)")
		case "added":
			b.WriteString("### Added Content (new file):\n")
			writeFence(&b, f.AfterContent, "(empty)")
		default:
			b.WriteString("### Before (current version):\n")
			writeFence(&b, f.BeforeContent, "(file did not exist)")
			b.WriteString("### After (proposed changes):\n")
			writeFence(&b, f.AfterContent, "(file will be deleted)")
		}
		b.WriteString("---\n\n")
	}

	if repoConfig != nil && len(repoConfig.CustomInstructions) > 0 {
		b.WriteString("# Repository Instructions\n\n")
		for _, instr := range repoConfig.CustomInstructions {
			fmt.Fprintf(&b, "- %s\n", instr)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nPlease provide your regression-focused review.\n")
	return b.String()
}

func writeFence(b *strings.Builder, content *string, placeholder string) {
	text := placeholder
	if content != nil {
		text = *content
	}
	fmt.Fprintf(b, "```\n%s\n```\n\n", text)
}
