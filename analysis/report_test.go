package analysis

import (
	"strings"
	"testing"
)

func sampleResult() Result {
	quotes := []Quote{
		{ID: "q1", SessionID: "s1", ParticipantID: "p1", Text: "I give up here",
			Section: "Checkout", Theme: "trust", Sentiment: "frustration", Intensity: 3, StartTime: 31},
		{ID: "q2", SessionID: "s2", ParticipantID: "p2", Text: "where is the total?",
			Section: "Checkout", Theme: "trust", Sentiment: "frustration", Intensity: 2, StartTime: 12},
	}
	return AnalyzeSentiment(quotes, []string{"Checkout"}, []string{"trust"},
		[]string{"delight", "frustration"}, 0)
}

func TestRenderMarkdownReport(t *testing.T) {
	t.Parallel()

	out := RenderMarkdownReport("Checkout usability", []NamedResult{
		{Name: "sentiment", Result: sampleResult()},
	})

	for _, want := range []string{
		"# Checkout usability",
		"## sentiment",
		"### By section",
		"### By theme",
		"| location | delight | frustration | total |",
		"| Checkout | 0 | 2 | 2 |",
		"### Signals",
		"Checkout × frustration (section)",
		"> I give up here",
		"— p1, s1 @ 31.0s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderMarkdownReport_Deterministic(t *testing.T) {
	t.Parallel()

	results := []NamedResult{{Name: "sentiment", Result: sampleResult()}}
	a := RenderMarkdownReport("study", results)
	b := RenderMarkdownReport("study", results)
	if a != b {
		t.Fatal("report output differs across identical renders")
	}
}

func TestFormatCell_ShowsWeightWhenFractional(t *testing.T) {
	t.Parallel()

	whole := &Cell{Count: 3, WeightedCount: 3.0}
	if got := formatCell(whole); got != "3" {
		t.Fatalf("formatCell(whole)=%q, want \"3\"", got)
	}
	partial := &Cell{Count: 3, WeightedCount: 2.25}
	if got := formatCell(partial); got != "3 (2.25)" {
		t.Fatalf("formatCell(partial)=%q", got)
	}
	if got := formatCell(nil); got != "0" {
		t.Fatalf("formatCell(nil)=%q, want \"0\"", got)
	}
}

func TestEscapeMarkdownInline(t *testing.T) {
	t.Parallel()

	if got := escapeMarkdownInline("a|b\nc"); got != "a\\|b c" {
		t.Fatalf("escapeMarkdownInline=%q", got)
	}
}
