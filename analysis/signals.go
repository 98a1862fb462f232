package analysis

import (
	"sort"
)

// DefaultTopSignals is the merge/rank truncation used when the caller passes
// a non-positive top-N.
const DefaultTopSignals = 12

// minSignalCount is the minimum cell count for a signal: a pattern needs at
// least two independent contributions.
const minSignalCount = 2

// QuoteLookup returns the display quotes belonging to one matrix cell.
// A nil lookup yields signals without quotes.
type QuoteLookup func(row, col string) []SignalQuote

// DetectSignals scans one matrix and emits a signal for every cell with at
// least two contributions, in row-label then column-label order. Source names
// which view the matrix represents (SourceSection or SourceTheme).
func DetectSignals(m *Matrix, source string, totalParticipants int, quotesFor QuoteLookup) []Signal {
	var signals []Signal
	for _, row := range m.RowLabels {
		for _, col := range m.ColLabels {
			cell := m.Cells[CellKey(row, col)]
			if cell == nil || cell.Count < minSignalCount {
				continue
			}

			counts := make([]int, 0, len(cell.Participants))
			participants := make([]string, 0, len(cell.Participants))
			for p, n := range cell.Participants {
				participants = append(participants, p)
				counts = append(counts, n)
			}
			sort.Strings(participants)

			nEff := SimpsonsNeff(counts)
			mean := MeanIntensity(cell.Intensities)
			concentration := ConcentrationRatio(cell.Count, m.RowTotals[row], m.ColTotals[col], m.GrandTotal)
			score := CompositeSignal(concentration, nEff, totalParticipants, mean)

			var quotes []SignalQuote
			if quotesFor != nil {
				quotes = append(quotes, quotesFor(row, col)...)
				sortSignalQuotes(quotes)
			}

			signals = append(signals, Signal{
				Location:        row,
				Source:          source,
				Category:        col,
				Count:           cell.Count,
				Participants:    participants,
				EffectiveVoices: nEff,
				MeanIntensity:   mean,
				Concentration:   concentration,
				Score:           score,
				Confidence:      classifyConfidence(concentration, len(participants), cell.Count),
				Quotes:          quotes,
			})
		}
	}
	return signals
}

// classifyConfidence tiers a signal by concentration (strict inequalities),
// unique participant count, and raw count.
func classifyConfidence(concentration float64, uniqueParticipants, count int) string {
	switch {
	case concentration > 2.0 && uniqueParticipants >= 5 && count >= 6:
		return ConfidenceStrong
	case concentration > 1.5 && uniqueParticipants >= 3 && count >= 4:
		return ConfidenceModerate
	default:
		return ConfidenceEmerging
	}
}

func sortSignalQuotes(quotes []SignalQuote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		if quotes[i].ParticipantID != quotes[j].ParticipantID {
			return quotes[i].ParticipantID < quotes[j].ParticipantID
		}
		return quotes[i].StartTime < quotes[j].StartTime
	})
}

// RankSignals sorts signals by composite score descending and truncates to
// topN (DefaultTopSignals when topN <= 0). The sort is stable: signals with
// equal scores keep their emission order.
func RankSignals(signals []Signal, topN int) []Signal {
	ranked := append([]Signal(nil), signals...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if topN <= 0 {
		topN = DefaultTopSignals
	}
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// CountParticipants returns the number of distinct participant IDs across the
// input quotes, the study-wide normalization denominator.
func CountParticipants(quotes []Quote) int {
	seen := make(map[string]struct{}, len(quotes))
	for _, q := range quotes {
		if q.ParticipantID == "" {
			continue
		}
		seen[q.ParticipantID] = struct{}{}
	}
	return len(seen)
}

// AnalyzeSentiment runs the fixed-vocabulary sentiment analysis: one
// section x sentiment matrix, one theme x sentiment matrix, and the merged
// ranked signal list. A nil sentiments slice selects SentimentLabels.
// Quotes without a sentiment contribute to neither matrix.
func AnalyzeSentiment(quotes []Quote, sections, themes, sentiments []string, topN int) Result {
	if sentiments == nil {
		sentiments = SentimentLabels
	}
	total := CountParticipants(quotes)

	sectionOf := func(q Quote) string { return q.Section }
	themeOf := func(q Quote) string { return q.Theme }
	sentimentOf := func(q Quote) string { return q.Sentiment }

	sectionMatrix := BuildCategoryMatrix(sections, sentiments, quotes, sectionOf, sentimentOf)
	themeMatrix := BuildCategoryMatrix(themes, sentiments, quotes, themeOf, sentimentOf)

	signals := DetectSignals(sectionMatrix, SourceSection, total, sentimentQuoteIndex(quotes, sectionOf))
	signals = append(signals, DetectSignals(themeMatrix, SourceTheme, total, sentimentQuoteIndex(quotes, themeOf))...)

	return Result{
		SectionMatrix:     sectionMatrix,
		ThemeMatrix:       themeMatrix,
		Signals:           RankSignals(signals, topN),
		TotalParticipants: total,
		Categories:        append([]string(nil), sentiments...),
	}
}

// sentimentQuoteIndex maps cells to display quotes for the sentiment path.
// Tags and segment ordinals stay at their defaults on this path.
func sentimentQuoteIndex(quotes []Quote, rowOf func(Quote) string) QuoteLookup {
	idx := make(map[string][]SignalQuote)
	for _, q := range quotes {
		if q.Sentiment == "" {
			continue
		}
		key := CellKey(rowOf(q), q.Sentiment)
		idx[key] = append(idx[key], SignalQuote{
			Text:           q.Text,
			ParticipantID:  q.ParticipantID,
			SessionID:      q.SessionID,
			StartTime:      q.StartTime,
			Intensity:      q.Intensity,
			SegmentOrdinal: -1,
		})
	}
	return func(row, col string) []SignalQuote {
		return idx[CellKey(row, col)]
	}
}
