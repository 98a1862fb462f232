package analysis

import (
	"testing"
)

func TestDetectSignals_MinimumCount(t *testing.T) {
	t.Parallel()

	m := BuildMatrix([]string{"Checkout", "Search"}, []string{"friction"}, []Contribution{
		{Row: "Checkout", Col: "friction", ParticipantID: "p1", Intensity: 2, Weight: 1},
		{Row: "Search", Col: "friction", ParticipantID: "p2", Intensity: 2, Weight: 1},
		{Row: "Search", Col: "friction", ParticipantID: "p3", Intensity: 2, Weight: 1},
	})

	signals := DetectSignals(m, SourceSection, 3, nil)
	if len(signals) != 1 {
		t.Fatalf("len(signals)=%d, want 1 (count==1 cells never emit)", len(signals))
	}
	if signals[0].Location != "Search" || signals[0].Count != 2 {
		t.Fatalf("signal=%+v, want Search with count 2", signals[0])
	}
}

func TestClassifyConfidence_StrictBoundaries(t *testing.T) {
	t.Parallel()

	// Concentration exactly 2.0 never classifies strong, even with ample counts.
	if got := classifyConfidence(2.0, 5, 6); got == ConfidenceStrong {
		t.Fatalf("confidence at concentration==2.0 is %q, want below strong", got)
	}
	if got := classifyConfidence(2.0, 5, 6); got != ConfidenceModerate {
		t.Fatalf("confidence=%q, want moderate", got)
	}
	if got := classifyConfidence(2.01, 5, 6); got != ConfidenceStrong {
		t.Fatalf("confidence=%q, want strong", got)
	}
	if got := classifyConfidence(1.5, 3, 4); got != ConfidenceEmerging {
		t.Fatalf("confidence at concentration==1.5 is %q, want emerging", got)
	}
	if got := classifyConfidence(3.0, 4, 10); got != ConfidenceModerate {
		t.Fatalf("confidence with 4 participants=%q, want moderate", got)
	}
}

func TestDetectSignals_SortsQuotes(t *testing.T) {
	t.Parallel()

	m := BuildMatrix([]string{"Checkout"}, []string{"friction"}, []Contribution{
		{Row: "Checkout", Col: "friction", ParticipantID: "p2", Intensity: 2, Weight: 1},
		{Row: "Checkout", Col: "friction", ParticipantID: "p1", Intensity: 2, Weight: 1},
		{Row: "Checkout", Col: "friction", ParticipantID: "p1", Intensity: 3, Weight: 1},
	})
	lookup := func(row, col string) []SignalQuote {
		return []SignalQuote{
			{Text: "late", ParticipantID: "p1", StartTime: 90},
			{Text: "other voice", ParticipantID: "p2", StartTime: 10},
			{Text: "early", ParticipantID: "p1", StartTime: 5},
		}
	}

	signals := DetectSignals(m, SourceSection, 2, lookup)
	if len(signals) != 1 {
		t.Fatalf("len(signals)=%d, want 1", len(signals))
	}
	quotes := signals[0].Quotes
	if quotes[0].Text != "early" || quotes[1].Text != "late" || quotes[2].Text != "other voice" {
		t.Fatalf("quote order=%q,%q,%q, want participant then start time",
			quotes[0].Text, quotes[1].Text, quotes[2].Text)
	}
	if got := signals[0].Participants; len(got) != 2 || got[0] != "p1" || got[1] != "p2" {
		t.Fatalf("participants=%v, want sorted unique [p1 p2]", got)
	}
}

func TestRankSignals_StableAndTruncated(t *testing.T) {
	t.Parallel()

	signals := []Signal{
		{Location: "A", Score: 1.0},
		{Location: "B", Score: 2.0},
		{Location: "C", Score: 1.0},
		{Location: "D", Score: 0.5},
	}

	ranked := RankSignals(signals, 3)
	if len(ranked) != 3 {
		t.Fatalf("len(ranked)=%d, want 3", len(ranked))
	}
	if ranked[0].Location != "B" {
		t.Fatalf("ranked[0]=%s, want B", ranked[0].Location)
	}
	// Equal scores keep emission order.
	if ranked[1].Location != "A" || ranked[2].Location != "C" {
		t.Fatalf("tie order=%s,%s, want A,C", ranked[1].Location, ranked[2].Location)
	}

	if got := RankSignals(make([]Signal, 20), 0); len(got) != DefaultTopSignals {
		t.Fatalf("default truncation=%d, want %d", len(got), DefaultTopSignals)
	}
}

func TestAnalyzeSentiment_EndToEnd(t *testing.T) {
	t.Parallel()

	// Checkout: 4 friction quotes from 4 distinct participants.
	// Search: 4 delight quotes from 4 distinct participants.
	var quotes []Quote
	for i, p := range []string{"p1", "p2", "p3", "p4"} {
		quotes = append(quotes, Quote{
			ID: "cq" + p, SessionID: "s1", ParticipantID: p,
			Text: "checkout quote", Section: "Checkout", Theme: "trust",
			Sentiment: "frustration", Intensity: 2, StartTime: float64(i * 10),
			SegmentOrdinal: i,
		})
	}
	for i, p := range []string{"p1", "p2", "p3", "p4"} {
		quotes = append(quotes, Quote{
			ID: "sq" + p, SessionID: "s2", ParticipantID: p,
			Text: "search quote", Section: "Search", Theme: "speed",
			Sentiment: "delight", Intensity: 2, StartTime: float64(i * 10),
			SegmentOrdinal: i,
		})
	}

	res := AnalyzeSentiment(quotes, []string{"Checkout", "Search"}, []string{"trust", "speed"},
		[]string{"delight", "frustration"}, 0)

	if res.TotalParticipants != 4 {
		t.Fatalf("TotalParticipants=%d, want 4", res.TotalParticipants)
	}

	var checkout *Signal
	for i := range res.Signals {
		s := &res.Signals[i]
		if s.Source == SourceSection && s.Location == "Checkout" && s.Category == "frustration" {
			checkout = s
			break
		}
	}
	if checkout == nil {
		t.Fatalf("no Checkout/frustration signal in %+v", res.Signals)
	}
	// Observed rate 4/4 over expected 4/8: concentration exactly 2.
	if checkout.Concentration != 2.0 {
		t.Fatalf("Concentration=%v, want 2.0", checkout.Concentration)
	}
	// Strict inequality keeps concentration==2 out of the strong tier.
	if checkout.Confidence != ConfidenceModerate {
		t.Fatalf("Confidence=%q, want moderate", checkout.Confidence)
	}
	if checkout.Count != 4 || len(checkout.Participants) != 4 {
		t.Fatalf("Count=%d participants=%d, want 4 and 4", checkout.Count, len(checkout.Participants))
	}
	if len(checkout.Quotes) != 4 {
		t.Fatalf("len(Quotes)=%d, want 4", len(checkout.Quotes))
	}
	// Sentiment path leaves codebook-only fields at their defaults.
	if checkout.Quotes[0].Tags != nil || checkout.Quotes[0].SegmentOrdinal != -1 {
		t.Fatalf("sentiment quote carries codebook fields: %+v", checkout.Quotes[0])
	}

	if res.SectionMatrix.GrandTotal != 8 || res.ThemeMatrix.GrandTotal != 8 {
		t.Fatalf("grand totals=%d/%d, want 8/8",
			res.SectionMatrix.GrandTotal, res.ThemeMatrix.GrandTotal)
	}
}

func TestAnalyzeSentiment_DefaultVocabulary(t *testing.T) {
	t.Parallel()

	res := AnalyzeSentiment(nil, []string{"Checkout"}, nil, nil, 0)
	if len(res.Categories) != len(SentimentLabels) {
		t.Fatalf("Categories=%v, want default vocabulary", res.Categories)
	}
}
