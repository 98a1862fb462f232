package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/fieldnotehq/quote-loom/analysis"
	"github.com/fieldnotehq/quote-loom/analysis/fileutils"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// signalSummaryTable renders the ranked signals of one analysis for stdout.
func signalSummaryTable(name string, res analysis.Result) string {
	headers := []string{"#", "analysis", "location", "category", "src", "conf", "count", "voices", "score", "quote"}
	aligns := []columnAlignment{
		alignRight, alignLeft, alignLeft, alignLeft, alignLeft,
		alignLeft, alignRight, alignRight, alignRight, alignLeft,
	}

	rows := make([][]string, 0, len(res.Signals))
	for i, s := range res.Signals {
		sample := ""
		if len(s.Quotes) > 0 {
			sample = fileutils.Truncate(s.Quotes[0].Text, 48)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			name,
			s.Location,
			s.Category,
			s.Source,
			s.Confidence,
			fmt.Sprintf("%d", s.Count),
			fmt.Sprintf("%.2f", s.EffectiveVoices),
			fmt.Sprintf("%.3f", s.Score),
			sample,
		})
	}
	return renderTable(headers, rows, aligns)
}
