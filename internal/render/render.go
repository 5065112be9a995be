// Package render produces output from fully assembled reports.
package render

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dshills/oceancheck/internal/schema"
	"github.com/dshills/oceancheck/internal/score"
)

// RenderJSON produces a pretty-printed JSON representation of the report.
// The output round-trips through json.Unmarshal back to an equal Report.
func RenderJSON(report *schema.Report) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("render: nil report")
	}
	return marshal(report)
}

// RenderCompatibilityJSON is RenderJSON for compatibility reports.
func RenderCompatibilityJSON(report *schema.CompatibilityReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("render: nil report")
	}
	return marshal(report)
}

func marshal(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// RenderMarkdown produces a GitHub-flavoured Markdown summary of a personality
// report.
func RenderMarkdown(report *schema.Report) string {
	if report == nil {
		return ""
	}
	var sb strings.Builder

	fmt.Fprintf(&sb, "## OCEAN Report: @%s\n\n", report.Username)
	if report.ProfileURL != "" {
		fmt.Fprintf(&sb, "**Profile:** %s  \n", report.ProfileURL)
	}
	if p := report.Profile; p.Name != nil {
		fmt.Fprintf(&sb, "**Name:** %s  \n", mdEscape(*p.Name))
	}
	fmt.Fprintf(&sb, "**Posts analysed:** %d  \n", report.PostCount)

	o := report.Analysis.OCEAN
	if o != nil {
		fmt.Fprintf(&sb, "**Dominant trait:** %s\n\n", score.TraitName(score.Dominant(*o)))
		sb.WriteString("| Trait | Score | |\n")
		sb.WriteString("|---|---|---|\n")
		for _, t := range schema.Traits {
			v := o.Get(t)
			fmt.Fprintf(&sb, "| %s | %.1f | %s |\n", score.TraitName(t), v, bar(v))
		}
	}
	sb.WriteString("\n")

	if report.Analysis.Explanation != "" {
		sb.WriteString("### Assessment\n\n")
		sb.WriteString(strings.TrimSpace(report.Analysis.Explanation))
		sb.WriteString("\n\n")
	}
	writeMeta(&sb, report.Meta)
	return sb.String()
}

// RenderCompatibilityMarkdown produces a Markdown summary of a compatibility
// report.
func RenderCompatibilityMarkdown(report *schema.CompatibilityReport) string {
	if report == nil {
		return ""
	}
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Compatibility: %s\n\n", strings.Join(handles(report.Users), " & "))
	fmt.Fprintf(&sb, "**Local score:** %d/100 (%s)  \n", report.LocalScore, report.LocalLabel)
	if s := report.Model.Score; s != nil {
		fmt.Fprintf(&sb, "**Model score:** %d/100 (%s)\n\n", *s, score.Label(*s))
	} else {
		sb.WriteString("\n")
	}

	if len(report.Scores) == 2 && len(report.Users) == 2 {
		fmt.Fprintf(&sb, "| Trait | @%s | @%s | Δ |\n", report.Users[0], report.Users[1])
		sb.WriteString("|---|---|---|---|\n")
		for _, t := range schema.Traits {
			fmt.Fprintf(&sb, "| %s | %.1f | %.1f | %.1f |\n",
				score.TraitName(t), report.Scores[0].Get(t), report.Scores[1].Get(t), report.Deltas.Get(t))
		}
		sb.WriteString("\n")
	}

	if report.Model.Explanation != "" {
		sb.WriteString("### Assessment\n\n")
		sb.WriteString(strings.TrimSpace(report.Model.Explanation))
		sb.WriteString("\n\n")
	}
	writeMeta(&sb, report.Meta)
	return sb.String()
}

func handles(users []string) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = "@" + u
	}
	return out
}

func writeMeta(sb *strings.Builder, m schema.Meta) {
	if m.Model == "" {
		return
	}
	fmt.Fprintf(sb, "_Model: %s/%s", m.Provider, m.Model)
	if !m.GeneratedAt.IsZero() {
		fmt.Fprintf(sb, ", generated %s", m.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	sb.WriteString("_\n")
}

// bar draws a 0-5 score as five cells.
func bar(v float64) string {
	n := int(math.Round(score.Clamp(v)))
	return strings.Repeat("█", n) + strings.Repeat("░", int(score.MaxTrait)-n)
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
