// Package analysis turns categorized, timestamped research quotes into
// contingency matrices and ranked signals. It performs no I/O: callers feed
// it already-extracted quotes (or quote-derived contributions) and consume
// the resulting matrices and signals.
package analysis

// Signal source types, naming which matrix a signal came from.
const (
	SourceSection = "section"
	SourceTheme   = "theme"
)

// Confidence tiers for detected signals.
const (
	ConfidenceStrong   = "strong"
	ConfidenceModerate = "moderate"
	ConfidenceEmerging = "emerging"
)

// SentimentLabels is the default fixed sentiment vocabulary, in display order.
var SentimentLabels = []string{"delight", "satisfaction", "neutral", "confusion", "frustration"}

// Quote is one verbatim, timestamped quote extracted from a session recording.
type Quote struct {
	ID            string `json:"id"`
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Text          string `json:"text"`

	// Section is the product screen/section the quote was grouped under.
	Section string `json:"section,omitempty"`

	// Theme is the emergent theme assigned by the theme-mapping pass.
	Theme string `json:"theme,omitempty"`

	// Sentiment is one of the study's sentiment labels, empty when unrated.
	Sentiment string `json:"sentiment,omitempty"`

	// Intensity is the 1-3 emotional intensity of the quote.
	Intensity int `json:"intensity"`

	// StartTime is seconds from the start of the session recording.
	StartTime float64 `json:"start_time"`

	// SegmentOrdinal is the quote's position within its session transcript, -1 when unknown.
	SegmentOrdinal int `json:"segment_ordinal"`
}

// QuoteSet is the on-disk artifact shape shared by the extraction and
// theme-mapping binaries: a batch of quotes, usually one file per session.
type QuoteSet struct {
	StudyName string  `json:"study_name,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	Quotes    []Quote `json:"quotes"`
}

// Contribution is one (location, category) membership fact derived from a
// quote. A quote with tags in several category groups yields one contribution
// per group; Weight carries the membership confidence in [0,1].
type Contribution struct {
	Row           string
	Col           string
	ParticipantID string
	Intensity     int
	Weight        float64
}

// SignalQuote is a quote attached to a detected signal for display.
// Tags and SegmentOrdinal only apply on the codebook path; the sentiment path
// leaves them at their defaults (nil, -1).
type SignalQuote struct {
	Text           string   `json:"text"`
	ParticipantID  string   `json:"participant_id"`
	SessionID      string   `json:"session_id"`
	StartTime      float64  `json:"start_time"`
	Intensity      int      `json:"intensity"`
	Tags           []string `json:"tags,omitempty"`
	SegmentOrdinal int      `json:"segment_ordinal"`
}

// Signal is one statistically notable concentration of a category at a location.
type Signal struct {
	Location string `json:"location"`
	Source   string `json:"source"`
	Category string `json:"category"`

	Count           int      `json:"count"`
	Participants    []string `json:"participants"`
	EffectiveVoices float64  `json:"effective_voices"`
	MeanIntensity   float64  `json:"mean_intensity"`
	Concentration   float64  `json:"concentration"`
	Score           float64  `json:"score"`
	Confidence      string   `json:"confidence"`

	Quotes []SignalQuote `json:"quotes"`
}

// Result packages one analysis invocation for downstream serialization.
type Result struct {
	SectionMatrix *Matrix `json:"section_matrix"`
	ThemeMatrix   *Matrix `json:"theme_matrix"`

	// Signals is the merged, ranked, truncated signal list across both matrices.
	Signals []Signal `json:"signals"`

	// TotalParticipants is the distinct participant count used for normalization.
	TotalParticipants int `json:"total_participants"`

	// Categories is the canonical ordered category vocabulary of this analysis.
	Categories []string `json:"categories"`
}

// NamedResult pairs a Result with the codebook (or view) it was computed for.
type NamedResult struct {
	Name   string `json:"name"`
	Result Result `json:"result"`
}
