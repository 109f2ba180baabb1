package synthesis

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hardenlabs/scanweave/internal/model"
)

const promptHeader = `Analyze the following vulnerability scan findings for %s and write a structured security report section in Markdown.
Highlight critical and high severity issues first. Use proper headings and bullet points.
Do not invent findings beyond the data given.

--- Begin Scan Data ---
`

const promptFooter = "--- End Scan Data ---\n"

const omittedNote = "(%d lower severity findings omitted to fit the payload limit)\n"

// detail text is capped per finding so a single verbose finding cannot
// starve the rest of the payload
const maxDetailBytes = 2048

const noFindingsMarkdown = "No findings were reported for this target. " +
	"The scan completed without matching any template."

// NoFindings is the canned summary for a clean target. No remote call is
// made, Attempts stays zero.
func NoFindings(target model.Target) model.SummaryResult {
	return model.SummaryResult{
		Target:   target,
		Markdown: noFindingsMarkdown,
		Attempts: 0,
	}
}

// BuildPrompt renders findings into a bounded prompt. Findings are
// ordered by severity, worst first, and lower severity findings are
// dropped once the payload ceiling is reached. The second return value
// is the number of findings left out.
func BuildPrompt(target model.Target, findings []model.FindingRecord, maxBytes int) (string, int) {
	sorted := slices.Clone(findings)
	// stable: emission order is kept within one severity class
	slices.SortStableFunc(sorted, func(a, b model.FindingRecord) int {
		return b.Severity.Rank() - a.Severity.Rank()
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, promptHeader, target)

	// reserve room for the footer and a possible omission note, so the
	// final prompt stays under maxBytes even when findings are dropped
	reserve := len(promptFooter)
	if len(sorted) > 1 {
		reserve += len(fmt.Sprintf(omittedNote, len(sorted)-1))
	}

	omitted := 0
	for i, f := range sorted {
		block := findingBlock(f)
		if i > 0 && sb.Len()+len(block)+reserve > maxBytes {
			omitted = len(sorted) - i
			break
		}
		sb.WriteString(block)
	}
	if omitted > 0 {
		fmt.Fprintf(&sb, omittedNote, omitted)
	}
	sb.WriteString(promptFooter)
	return sb.String(), omitted
}

func findingBlock(f model.FindingRecord) string {
	detail := f.Detail
	if len(detail) > maxDetailBytes {
		detail = detail[:maxDetailBytes] + "…"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", strings.ToUpper(string(f.Severity)), f.TemplateID)
	if f.Name != "" {
		fmt.Fprintf(&sb, ": %s", f.Name)
	}
	sb.WriteByte('\n')
	if f.MatchedAt != "" {
		fmt.Fprintf(&sb, "matched: %s\n", f.MatchedAt)
	}
	if detail != "" {
		fmt.Fprintf(&sb, "%s\n", detail)
	}
	sb.WriteByte('\n')
	return sb.String()
}
