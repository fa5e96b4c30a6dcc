package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wesleyorama2/tinyprof/prof/stats"
)

var (
	summaryTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	summaryHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	summaryCell   = lipgloss.NewStyle().Padding(0, 1)
	summaryDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	summaryWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// summaryHeaders are the columns of a stream's region table.
var summaryHeaders = []string{"REGION", "COUNT", "PENDING", "MIN", "P50", "P95", "P99", "MAX", "MEAN"}

// Summary writes a styled per-region statistics table for every stream of
// the collector.
func Summary(w io.Writer, col *stats.Collector) {
	streams := col.Streams()
	totals := col.Totals()

	fmt.Fprintln(w)
	fmt.Fprintln(w, summaryTitle.Render("Region Summary"))
	fmt.Fprintln(w, summaryDim.Render(strings.Repeat("═", 60)))

	if len(streams) == 0 {
		fmt.Fprintln(w, summaryDim.Render("no frames recorded"))
		return
	}

	for _, key := range streams {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %s\n",
			lipgloss.NewStyle().Bold(true).Render(key.String()),
			summaryDim.Render(fmt.Sprintf("(%s frames)", formatNumber(col.Frames(key)))))
		fmt.Fprintln(w, SummaryTable(col.Regions(key)))
	}

	fmt.Fprintln(w)
	line := fmt.Sprintf("Reports: %s | Late resolutions: %s",
		formatNumber(totals.Reports), formatNumber(totals.Resolutions))
	if totals.Unmatched > 0 {
		line += " | " + summaryWarn.Render(fmt.Sprintf("Unmatched: %d", totals.Unmatched))
	}
	fmt.Fprintln(w, line)
}

// SummaryTable builds the region statistics table of one stream.
func SummaryTable(regions []stats.RegionStats) *table.Table {
	rows := make([][]string, len(regions))
	for i, r := range regions {
		pending := fmt.Sprintf("%d", r.Pending)
		if r.Pending > 0 {
			pending = summaryWarn.Render(pending)
		}
		rows[i] = []string{
			r.Name,
			formatNumber(r.Count),
			pending,
			FormatRegionDuration(r.Min),
			FormatRegionDuration(r.P50),
			FormatRegionDuration(r.P95),
			FormatRegionDuration(r.P99),
			FormatRegionDuration(r.Max),
			FormatRegionDuration(r.Mean),
		}
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(summaryDim).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return summaryHeader
			}
			return summaryCell
		}).
		Headers(summaryHeaders...).
		Rows(rows...)
}
