package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fieldnotehq/quote-loom/analysis"
	"github.com/fieldnotehq/quote-loom/analysis/fileutils"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("signal-scan", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-in", "study/mapped",
		"-out", "study/analysis",
		"-study", "study/study.toml",
		"-store", "study/study.db",
		"-save-run",
		"-top-signals", "5",
		"-pretty",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.StorePath != filepath.FromSlash("study/study.db") || !cfg.SaveRun {
		t.Fatalf("StorePath=%q SaveRun=%v", cfg.StorePath, cfg.SaveRun)
	}
	if cfg.TopSignals != 5 || !cfg.Pretty {
		t.Fatalf("TopSignals=%d Pretty=%v", cfg.TopSignals, cfg.Pretty)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.InPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted neither -in nor -store")
	}

	cfg = defaultConfig()
	cfg.SaveRun = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted -save-run without -store")
	}
}

func TestCollectArtifacts_SplitsKinds(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, name := range []string{"s1.enriched.json", "s1.quotes.json", "s2.quotes.json", "notes.md"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(`{}`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	enriched, plain, err := collectArtifacts(root)
	if err != nil {
		t.Fatalf("collectArtifacts: %v", err)
	}
	if len(enriched) != 1 || len(plain) != 2 {
		t.Fatalf("enriched=%v plain=%v", enriched, plain)
	}
}

func TestLoadArtifacts_EnrichedWinsPerSession(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	// s1 exists in both forms; the enriched copy carries the mapped theme.
	if err := fileutils.WriteJSONFileAtomic(filepath.Join(root, "s1.enriched.json"), enrichedArtifact{
		SessionID: "s1",
		Quotes: []analysis.Quote{
			{ID: "q1", SessionID: "s1", ParticipantID: "p1", Text: "stuck", Section: "Checkout",
				Theme: "navigation", Sentiment: "frustration", Intensity: 2},
		},
		Proposals: []analysis.TagLink{
			{QuoteID: "q1", Tag: "dead-end", State: analysis.TagProposed, Confidence: 0.7},
		},
	}, false); err != nil {
		t.Fatalf("write enriched: %v", err)
	}
	if err := fileutils.WriteJSONFileAtomic(filepath.Join(root, "s1.quotes.json"), analysis.QuoteSet{
		SessionID: "s1",
		Quotes: []analysis.Quote{
			{ID: "q1", SessionID: "s1", ParticipantID: "p1", Text: "stuck", Section: "Checkout",
				Sentiment: "frustration", Intensity: 2},
		},
	}, false); err != nil {
		t.Fatalf("write quotes: %v", err)
	}
	if err := fileutils.WriteJSONFileAtomic(filepath.Join(root, "s2.quotes.json"), analysis.QuoteSet{
		SessionID: "s2",
		Quotes: []analysis.Quote{
			{ID: "q2", SessionID: "s2", ParticipantID: "p2", Text: "fine", Section: "Search",
				Sentiment: "neutral", Intensity: 1},
		},
	}, false); err != nil {
		t.Fatalf("write quotes: %v", err)
	}

	quotes, links, err := loadArtifacts(root)
	if err != nil {
		t.Fatalf("loadArtifacts: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("len(quotes)=%d, want 2 (s1 deduplicated)", len(quotes))
	}
	var s1 *analysis.Quote
	for i := range quotes {
		if quotes[i].ID == "q1" {
			s1 = &quotes[i]
		}
	}
	if s1 == nil || s1.Theme != "navigation" {
		t.Fatalf("quotes=%+v, want the enriched q1", quotes)
	}
	if len(links) != 1 || links[0].Tag != "dead-end" {
		t.Fatalf("links=%+v", links)
	}
}

func TestSignalSummaryTable(t *testing.T) {
	t.Parallel()

	res := analysis.Result{Signals: []analysis.Signal{
		{Location: "Checkout", Source: analysis.SourceSection, Category: "frustration",
			Count: 4, EffectiveVoices: 3.5, Score: 1.234, Confidence: analysis.ConfidenceModerate,
			Quotes: []analysis.SignalQuote{{Text: "I give up here"}}},
	}}

	out := signalSummaryTable("sentiment", res)
	for _, want := range []string{"Checkout", "frustration", "moderate", "3.50", "1.234", "I give up here"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTable_PadsShortRows(t *testing.T) {
	t.Parallel()

	out := renderTable([]string{"a", "b"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "only") {
		t.Fatalf("table missing cell:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("renderTable with no headers should render nothing")
	}
}
