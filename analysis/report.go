package analysis

import (
	"fmt"
	"strings"
)

// RenderMarkdownReport renders the study report: each named result gets its
// two matrices and ranked signal sections. Output is deterministic for a
// given input.
func RenderMarkdownReport(title string, results []NamedResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escapeMarkdownInline(title))

	for _, nr := range results {
		fmt.Fprintf(&b, "## %s\n\n", escapeMarkdownInline(nr.Name))
		fmt.Fprintf(&b, "- participants: %d\n", nr.Result.TotalParticipants)
		fmt.Fprintf(&b, "- categories: %s\n\n", strings.Join(nr.Result.Categories, ", "))

		writeMatrixMarkdown(&b, "By section", nr.Result.SectionMatrix)
		writeMatrixMarkdown(&b, "By theme", nr.Result.ThemeMatrix)

		if len(nr.Result.Signals) == 0 {
			b.WriteString("No signals detected.\n\n")
			continue
		}
		b.WriteString("### Signals\n\n")
		for i, s := range nr.Result.Signals {
			writeSignalMarkdown(&b, i+1, s)
		}
	}

	return b.String()
}

func writeMatrixMarkdown(b *strings.Builder, title string, m *Matrix) {
	if m == nil || len(m.RowLabels) == 0 || len(m.ColLabels) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)

	b.WriteString("| location |")
	for _, c := range m.ColLabels {
		fmt.Fprintf(b, " %s |", escapeMarkdownInline(c))
	}
	b.WriteString(" total |\n")

	b.WriteString("| --- |")
	for range m.ColLabels {
		b.WriteString(" ---: |")
	}
	b.WriteString(" ---: |\n")

	for _, r := range m.RowLabels {
		fmt.Fprintf(b, "| %s |", escapeMarkdownInline(r))
		for _, c := range m.ColLabels {
			b.WriteString(" " + formatCell(m.Cells[CellKey(r, c)]) + " |")
		}
		fmt.Fprintf(b, " %d |\n", m.RowTotals[r])
	}

	b.WriteString("| **total** |")
	for _, c := range m.ColLabels {
		fmt.Fprintf(b, " %d |", m.ColTotals[c])
	}
	fmt.Fprintf(b, " %d |\n\n", m.GrandTotal)
}

// formatCell shows the raw count, with the weighted mass in parentheses when
// fractional memberships make it diverge.
func formatCell(c *Cell) string {
	if c == nil {
		return "0"
	}
	if c.WeightedCount == float64(c.Count) {
		return fmt.Sprintf("%d", c.Count)
	}
	return fmt.Sprintf("%d (%.2f)", c.Count, c.WeightedCount)
}

func writeSignalMarkdown(b *strings.Builder, rank int, s Signal) {
	fmt.Fprintf(b, "#### %d. %s × %s (%s)\n\n", rank, escapeMarkdownInline(s.Location), escapeMarkdownInline(s.Category), s.Source)
	fmt.Fprintf(b, "- confidence: %s\n", s.Confidence)
	fmt.Fprintf(b, "- score: %.3f\n", s.Score)
	fmt.Fprintf(b, "- concentration: %.2f\n", s.Concentration)
	fmt.Fprintf(b, "- effective voices: %.2f\n", s.EffectiveVoices)
	fmt.Fprintf(b, "- mean intensity: %.2f\n", s.MeanIntensity)
	fmt.Fprintf(b, "- quotes: %d from %s\n\n", s.Count, strings.Join(s.Participants, ", "))

	for _, q := range s.Quotes {
		fmt.Fprintf(b, "> %s\n", escapeMarkdownInline(q.Text))
		meta := fmt.Sprintf("— %s, %s @ %.1fs", q.ParticipantID, q.SessionID, q.StartTime)
		if len(q.Tags) > 0 {
			meta += " [" + strings.Join(q.Tags, ", ") + "]"
		}
		fmt.Fprintf(b, ">\n> %s\n\n", escapeMarkdownInline(meta))
	}
}

func escapeMarkdownInline(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.TrimSpace(s)
}
