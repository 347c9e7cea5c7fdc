package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable draws rows under headers with rounded borders. Short rows are
// padded and cells beyond the header count are dropped.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment, colorize bool) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if colorize {
		tw.Style().Color.Header = text.Colors{text.FgHiBlue, text.Bold}
	}
	tw.AppendHeader(toRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(toRow(row, len(headers)))
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if i < len(aligns) && aligns[i] == alignRight {
			configs[i].Align = text.AlignRight
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func toRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	return row
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
