package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fieldnotehq/quote-loom/analysis"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("quote-extractor", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-in", "study/sessions",
		"-out", "study/quotes",
		"-study", "study/study.toml",
		"-model", "gpt-5-mini",
		"-pretty",
		"-overwrite",
		"-max-sessions", "5",
		"-store", "study/study.db",
		"-api-key", "k",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.InPath != filepath.FromSlash("study/sessions") {
		t.Fatalf("InPath=%q", cfg.InPath)
	}
	if cfg.OutDir != filepath.FromSlash("study/quotes") {
		t.Fatalf("OutDir=%q", cfg.OutDir)
	}
	if !cfg.Pretty || !cfg.Overwrite {
		t.Fatalf("Pretty=%v Overwrite=%v", cfg.Pretty, cfg.Overwrite)
	}
	if cfg.MaxSessions != 5 || cfg.StorePath != filepath.FromSlash("study/study.db") {
		t.Fatalf("MaxSessions=%d StorePath=%q", cfg.MaxSessions, cfg.StorePath)
	}
	if cfg.APIKey != "k" {
		t.Fatalf("APIKey=%q", cfg.APIKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfigValidate_RequiresStudy(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.StudyPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted an empty -study")
	}
}

func TestCollectTranscriptFiles_SkipsQuoteArtifacts(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "wave1"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"wave1/s1.json", "wave1/s1.quotes.json", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(name)), []byte(`{}`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	files, err := collectTranscriptFiles(root)
	if err != nil {
		t.Fatalf("collectTranscriptFiles: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "s1.json" {
		t.Fatalf("files=%v, want just s1.json", files)
	}
}

func TestQuoteSetOutPath_PreservesRelativeLayout(t *testing.T) {
	t.Parallel()

	in := t.TempDir()
	if err := os.MkdirAll(filepath.Join(in, "wave1"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got := quoteSetOutPath(in, filepath.FromSlash("out"), filepath.Join(in, "wave1", "s1.json"))
	want := filepath.FromSlash("out/wave1/s1.quotes.json")
	if got != want {
		t.Fatalf("outPath=%q, want %q", got, want)
	}
}

func TestQuoteSetFrom_FiltersAndClamps(t *testing.T) {
	t.Parallel()

	study := analysis.StudyConfig{
		Name:     "Checkout usability",
		Sections: []string{"Checkout", "Search"},
	}
	tr := Transcript{SessionID: "s1"}
	resp := extractResponse{Quotes: []extractedQuote{
		{ParticipantID: "p1", Text: " I give up here ", Section: "Checkout",
			Sentiment: "Frustration", Intensity: 7, StartTime: 31, SegmentOrdinal: 2},
		{ParticipantID: "p2", Text: "fine", Section: "Cart", Sentiment: "neutral", Intensity: 1},
		{ParticipantID: "p3", Text: "nice", Section: "Search", Sentiment: "amazement", Intensity: 2},
		{ParticipantID: "", Text: "orphan", Section: "Search", Sentiment: "delight", Intensity: 2},
	}}

	qs := quoteSetFrom(tr, study, resp)
	if len(qs.Quotes) != 1 {
		t.Fatalf("len(quotes)=%d, want 1 (off-list labels dropped)", len(qs.Quotes))
	}
	q := qs.Quotes[0]
	if q.ID == "" {
		t.Fatal("quote has no assigned ID")
	}
	if q.Text != "I give up here" {
		t.Fatalf("Text=%q, want trimmed", q.Text)
	}
	if q.Sentiment != "frustration" {
		t.Fatalf("Sentiment=%q, want lowercased", q.Sentiment)
	}
	if q.Intensity != 3 {
		t.Fatalf("Intensity=%d, want clamped to 3", q.Intensity)
	}
	if q.SessionID != "s1" || q.SegmentOrdinal != 2 {
		t.Fatalf("quote=%+v", q)
	}
}

func TestComposeExtractionInstructions_ListsLabels(t *testing.T) {
	t.Parallel()

	got := composeExtractionInstructions([]string{"Checkout"}, []string{"delight", "frustration"})
	if !strings.Contains(got, "SECTION LABELS:\n- Checkout\n") {
		t.Fatalf("missing section list:\n%s", got)
	}
	if !strings.Contains(got, "SENTIMENT VOCABULARY:\n- delight\n- frustration\n") {
		t.Fatalf("missing sentiment list:\n%s", got)
	}
}

func TestBuildTranscriptPromptInput_Truncates(t *testing.T) {
	t.Parallel()

	tr := Transcript{SessionID: "s1", Utterances: []Utterance{
		{ParticipantID: "p1", Text: strings.Repeat("x", 500)},
	}}
	got := buildTranscriptPromptInput(tr, promptOptions{MaxTranscriptChars: 100})
	if !strings.Contains(got, "SESSION: s1") {
		t.Fatalf("missing session header:\n%s", got)
	}
	idx := strings.Index(got, "TRANSCRIPT (JSON):\n")
	if idx == -1 {
		t.Fatalf("missing transcript marker:\n%s", got)
	}
	body := got[idx+len("TRANSCRIPT (JSON):\n"):]
	if len(body) != 100 {
		t.Fatalf("len(body)=%d, want 100", len(body))
	}
}

func TestIndexRecordFrom(t *testing.T) {
	t.Parallel()

	qs := analysis.QuoteSet{SessionID: "s1", Quotes: []analysis.Quote{
		{ParticipantID: "p2", Section: "Checkout"},
		{ParticipantID: "p1", Section: "Checkout"},
		{ParticipantID: "p1", Section: "Search"},
	}}
	rec := indexRecordFrom("out/s1.quotes.json", qs)
	if rec.QuoteCount != 3 {
		t.Fatalf("QuoteCount=%d", rec.QuoteCount)
	}
	if len(rec.Participants) != 2 || rec.Participants[0] != "p1" {
		t.Fatalf("Participants=%v, want sorted unique", rec.Participants)
	}
	if len(rec.Sections) != 2 || rec.Sections[0] != "Checkout" {
		t.Fatalf("Sections=%v", rec.Sections)
	}
}
