package analysis

import (
	"encoding/json"
)

// cellKeySep joins row and column labels into a composite cell key.
// The unit separator never appears in transcript-derived labels.
const cellKeySep = "\x1f"

// CellKey is the composite map key for the (row, col) intersection.
func CellKey(row, col string) string {
	return row + cellKeySep + col
}

// Cell is one (location, category) intersection of a Matrix.
//
// Invariant: Count == sum of Participants values == len(Intensities).
type Cell struct {
	// Count is the number of raw contributions in this cell, incremented by 1
	// per contribution regardless of weight.
	Count int `json:"count"`

	// WeightedCount is the sum of contribution weights; equals Count when all
	// weights are 1.0.
	WeightedCount float64 `json:"weighted_count"`

	// Participants maps participant ID to that participant's contribution count.
	Participants map[string]int `json:"participants"`

	// Intensities holds one 1-3 intensity per contribution, in contribution order.
	Intensities []int `json:"intensities"`
}

// Matrix is the full location x category cross-tabulation for one view
// (quotes grouped by product section, or by emergent theme).
//
// Every (row, col) pair is materialized at construction with a zeroed cell.
// Totals track contribution count, not weighted mass. A contribution whose
// row or column label is unknown is dropped silently: it affects no total
// and appears in no cell.
type Matrix struct {
	RowLabels []string
	ColLabels []string

	Cells map[string]*Cell

	RowTotals  map[string]int
	ColTotals  map[string]int
	GrandTotal int
}

// NewMatrix creates a matrix with every cell pre-created at zero.
func NewMatrix(rowLabels, colLabels []string) *Matrix {
	m := &Matrix{
		RowLabels: append([]string(nil), rowLabels...),
		ColLabels: append([]string(nil), colLabels...),
		Cells:     make(map[string]*Cell, len(rowLabels)*len(colLabels)),
		RowTotals: make(map[string]int, len(rowLabels)),
		ColTotals: make(map[string]int, len(colLabels)),
	}
	for _, r := range m.RowLabels {
		m.RowTotals[r] = 0
		for _, c := range m.ColLabels {
			m.Cells[CellKey(r, c)] = &Cell{Participants: make(map[string]int)}
		}
	}
	for _, c := range m.ColLabels {
		m.ColTotals[c] = 0
	}
	return m
}

// Cell returns the cell at (row, col), or nil for unknown labels.
func (m *Matrix) Cell(row, col string) *Cell {
	return m.Cells[CellKey(row, col)]
}

// Add accumulates one contribution. Unknown row or column labels are a
// data-quality non-event: the contribution is dropped with no count, log,
// or error.
func (m *Matrix) Add(c Contribution) {
	cell, ok := m.Cells[CellKey(c.Row, c.Col)]
	if !ok {
		return
	}
	cell.Count++
	cell.WeightedCount += c.Weight
	cell.Participants[c.ParticipantID]++
	cell.Intensities = append(cell.Intensities, c.Intensity)

	m.RowTotals[c.Row]++
	m.ColTotals[c.Col]++
	m.GrandTotal++
}

// BuildMatrix is the generic weighted builder: a pure fold over an explicit
// contribution sequence already expanded by the caller (one contribution per
// (quote, category-group) pairing). It performs no business logic beyond
// accumulation.
func BuildMatrix(rowLabels, colLabels []string, contributions []Contribution) *Matrix {
	m := NewMatrix(rowLabels, colLabels)
	for _, c := range contributions {
		m.Add(c)
	}
	return m
}

// BuildCategoryMatrix is the fixed-category builder: each quote carries at
// most one category value and contributes exactly one full-weight
// contribution. Quotes whose category resolves to "" are excluded entirely.
func BuildCategoryMatrix(rowLabels, colLabels []string, quotes []Quote, rowOf, categoryOf func(Quote) string) *Matrix {
	m := NewMatrix(rowLabels, colLabels)
	for _, q := range quotes {
		cat := categoryOf(q)
		if cat == "" {
			continue
		}
		m.Add(Contribution{
			Row:           rowOf(q),
			Col:           cat,
			ParticipantID: q.ParticipantID,
			Intensity:     q.Intensity,
			Weight:        1.0,
		})
	}
	return m
}

// matrixJSON is the client-facing representation: cells nested by row label
// then column label, so consumers never see the composite key encoding.
type matrixJSON struct {
	RowLabels  []string                    `json:"row_labels"`
	ColLabels  []string                    `json:"col_labels"`
	Cells      map[string]map[string]*Cell `json:"cells"`
	RowTotals  map[string]int              `json:"row_totals"`
	ColTotals  map[string]int              `json:"col_totals"`
	GrandTotal int                         `json:"grand_total"`
}

// MarshalJSON renders the matrix with cells nested by row and column label.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	out := matrixJSON{
		RowLabels:  m.RowLabels,
		ColLabels:  m.ColLabels,
		Cells:      make(map[string]map[string]*Cell, len(m.RowLabels)),
		RowTotals:  m.RowTotals,
		ColTotals:  m.ColTotals,
		GrandTotal: m.GrandTotal,
	}
	for _, r := range m.RowLabels {
		row := make(map[string]*Cell, len(m.ColLabels))
		for _, c := range m.ColLabels {
			row[c] = m.Cells[CellKey(r, c)]
		}
		out.Cells[r] = row
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a matrix from its nested client-facing representation.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var in matrixJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.RowLabels = in.RowLabels
	m.ColLabels = in.ColLabels
	m.RowTotals = in.RowTotals
	m.ColTotals = in.ColTotals
	m.GrandTotal = in.GrandTotal
	m.Cells = make(map[string]*Cell, len(in.RowLabels)*len(in.ColLabels))
	for r, row := range in.Cells {
		for c, cell := range row {
			if cell.Participants == nil {
				cell.Participants = make(map[string]int)
			}
			m.Cells[CellKey(r, c)] = cell
		}
	}
	return nil
}
