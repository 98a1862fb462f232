package analysis

import (
	"sort"
)

// TagState is the researcher-facing lifecycle of a quote-tag association.
type TagState string

const (
	// TagAccepted marks a researcher-confirmed association, weight 1.0.
	TagAccepted TagState = "accepted"
	// TagProposed marks a machine-proposed association, weighted by its confidence.
	TagProposed TagState = "proposed"
	// TagRejected marks a researcher-rejected proposal, excluded from analysis.
	TagRejected TagState = "rejected"
)

// TagLink associates one quote with one codebook tag.
type TagLink struct {
	QuoteID string   `json:"quote_id"`
	Tag     string   `json:"tag"`
	State   TagState `json:"state"`

	// Confidence is the proposal confidence in [0,1]; ignored for accepted links.
	Confidence float64 `json:"confidence,omitempty"`
}

// TagGroup is one category group of a codebook: the tags that roll up into a
// single matrix column.
type TagGroup struct {
	Name string   `toml:"name" json:"name"`
	Tags []string `toml:"tags" json:"tags"`
}

// Codebook is an ordered set of tag groups; group order defines the category
// column order of the codebook analysis.
type Codebook struct {
	Name   string     `toml:"name" json:"name"`
	Groups []TagGroup `toml:"group" json:"groups"`
}

// GroupNames returns the codebook's category vocabulary in declaration order.
func (c Codebook) GroupNames() []string {
	names := make([]string, 0, len(c.Groups))
	for _, g := range c.Groups {
		names = append(names, g.Name)
	}
	return names
}

// GroupMembership is the resolved, weighted membership of one quote in one
// tag group: the unit the weighted builder consumes after fan-out.
type GroupMembership struct {
	QuoteID string
	Group   string

	// Weight is the membership confidence: 1.0 when any link in the group is
	// accepted, otherwise the highest proposal confidence, clamped to [0,1].
	Weight float64

	// Tags are the qualifying tag names within the group, in the group's
	// declaration order.
	Tags []string
}

// ResolveGroupMemberships turns raw tag links into per-(quote, group)
// memberships for one codebook:
//
//   - accepted links weigh 1.0;
//   - proposed links weigh their confidence, unless the same (quote, tag) was
//     also accepted (no double count) or rejected (excluded);
//   - tags outside the codebook are ignored;
//   - a quote qualifying for several groups fans out to one membership per group.
//
// Output is ordered by quote ID, then codebook group order.
func ResolveGroupMemberships(links []TagLink, cb Codebook) []GroupMembership {
	type linkState struct {
		accepted   bool
		rejected   bool
		confidence float64
	}

	groupOf := make(map[string]int, 16)
	for gi, g := range cb.Groups {
		for _, t := range g.Tags {
			groupOf[t] = gi
		}
	}

	effective := make(map[string]map[string]*linkState) // quote -> tag -> state
	for _, l := range links {
		if l.QuoteID == "" || l.Tag == "" {
			continue
		}
		if _, ok := groupOf[l.Tag]; !ok {
			continue
		}
		byTag := effective[l.QuoteID]
		if byTag == nil {
			byTag = make(map[string]*linkState)
			effective[l.QuoteID] = byTag
		}
		st := byTag[l.Tag]
		if st == nil {
			st = &linkState{}
			byTag[l.Tag] = st
		}
		switch l.State {
		case TagAccepted:
			st.accepted = true
		case TagRejected:
			st.rejected = true
		case TagProposed:
			if c := clamp01(l.Confidence); c > st.confidence {
				st.confidence = c
			}
		}
	}

	quoteIDs := make([]string, 0, len(effective))
	for id := range effective {
		quoteIDs = append(quoteIDs, id)
	}
	sort.Strings(quoteIDs)

	var memberships []GroupMembership
	for _, id := range quoteIDs {
		byTag := effective[id]
		for gi, g := range cb.Groups {
			weight := 0.0
			var tags []string
			for _, tag := range g.Tags {
				st := byTag[tag]
				if st == nil {
					continue
				}
				w := 0.0
				switch {
				case st.accepted:
					w = 1.0
				case st.rejected:
					// Rejected without a competing accept: excluded.
				default:
					w = st.confidence
				}
				if w <= 0 {
					continue
				}
				tags = append(tags, tag)
				if w > weight {
					weight = w
				}
			}
			if weight <= 0 {
				continue
			}
			memberships = append(memberships, GroupMembership{
				QuoteID: id,
				Group:   cb.Groups[gi].Name,
				Weight:  weight,
				Tags:    tags,
			})
		}
	}
	return memberships
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// AnalyzeCodebook runs the confidence-weighted codebook analysis: columns are
// the codebook's tag groups, rows are sections and themes, contributions are
// resolved group memberships. Memberships referencing unknown quote IDs are
// dropped silently, like any other unknown-label contribution.
func AnalyzeCodebook(quotes []Quote, links []TagLink, cb Codebook, sections, themes []string, topN int) Result {
	total := CountParticipants(quotes)
	categories := cb.GroupNames()

	byID := make(map[string]Quote, len(quotes))
	for _, q := range quotes {
		byID[q.ID] = q
	}

	memberships := ResolveGroupMemberships(links, cb)

	var sectionContribs, themeContribs []Contribution
	sectionIdx := make(map[string][]SignalQuote)
	themeIdx := make(map[string][]SignalQuote)
	for _, ms := range memberships {
		q, ok := byID[ms.QuoteID]
		if !ok {
			continue
		}
		sectionContribs = append(sectionContribs, Contribution{
			Row:           q.Section,
			Col:           ms.Group,
			ParticipantID: q.ParticipantID,
			Intensity:     q.Intensity,
			Weight:        ms.Weight,
		})
		themeContribs = append(themeContribs, Contribution{
			Row:           q.Theme,
			Col:           ms.Group,
			ParticipantID: q.ParticipantID,
			Intensity:     q.Intensity,
			Weight:        ms.Weight,
		})

		sq := SignalQuote{
			Text:           q.Text,
			ParticipantID:  q.ParticipantID,
			SessionID:      q.SessionID,
			StartTime:      q.StartTime,
			Intensity:      q.Intensity,
			Tags:           ms.Tags,
			SegmentOrdinal: q.SegmentOrdinal,
		}
		skey := CellKey(q.Section, ms.Group)
		sectionIdx[skey] = append(sectionIdx[skey], sq)
		tkey := CellKey(q.Theme, ms.Group)
		themeIdx[tkey] = append(themeIdx[tkey], sq)
	}

	sectionMatrix := BuildMatrix(sections, categories, sectionContribs)
	themeMatrix := BuildMatrix(themes, categories, themeContribs)

	lookup := func(idx map[string][]SignalQuote) QuoteLookup {
		return func(row, col string) []SignalQuote { return idx[CellKey(row, col)] }
	}

	signals := DetectSignals(sectionMatrix, SourceSection, total, lookup(sectionIdx))
	signals = append(signals, DetectSignals(themeMatrix, SourceTheme, total, lookup(themeIdx))...)

	return Result{
		SectionMatrix:     sectionMatrix,
		ThemeMatrix:       themeMatrix,
		Signals:           RankSignals(signals, topN),
		TotalParticipants: total,
		Categories:        categories,
	}
}
