// Package review holds the pure decision logic of the pipeline: severity
// classification of generated review text and the severity-to-action policy.
// Nothing in this package touches the network or storage.
package review

import (
	"regexp"
	"strings"

	"github.com/sevigo/regression-warden/internal/core"
)

// Matches the severity marker each finding block declares, e.g.
// **Severity:** blocking. Tolerates a missing colon and mixed case, the
// same quirks the model shows in section headers.
var severityMarkerRegex = regexp.MustCompile(`(?im)^\s*\*\*Severity:?\*\*\s*(blocking|warning|info)\b`)

// Classify scans review markdown for severity markers and returns the
// maximum severity found across all findings, independent of order.
//
// This is a best-effort heuristic over model-generated natural language.
// Empty or marker-less text classifies as info, never an error: a backend
// that produces no explicit severity must not block the pipeline.
func Classify(markdown string) core.Severity {
	maxSeverity := core.SeverityInfo
	for _, m := range severityMarkerRegex.FindAllStringSubmatch(markdown, -1) {
		if s := core.ParseSeverity(strings.ToLower(m[1])); s > maxSeverity {
			maxSeverity = s
		}
	}
	return maxSeverity
}
