// Package formatter renders reconciliation reports and site listings as
// aligned text tables for terminal output.
package formatter

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/marvst/properties-scraper/internal/config"
	"github.com/marvst/properties-scraper/internal/syncer"
	"github.com/marvst/properties-scraper/pkg/utils"
)

const maxCellWidth = 60

// RenderReport formats a reconciliation report as a two-column table,
// followed by one row per rejection when any occurred.
func RenderReport(report *syncer.Report) string {
	var b strings.Builder

	rows := [][]string{
		{"inserted", strconv.Itoa(report.Inserted)},
		{"updated", strconv.Itoa(report.Updated)},
		{"unchanged", strconv.Itoa(report.Unchanged)},
		{"rejected", strconv.Itoa(report.Rejected)},
	}

	if len(report.Unattempted) > 0 {
		rows = append(rows, []string{"unattempted", strconv.Itoa(len(report.Unattempted))})
	}

	b.WriteString(renderTable([]string{"outcome", "count"}, rows))

	if len(report.Rejections) > 0 {
		b.WriteString("\n")

		var rejectionRows [][]string
		for _, rej := range report.Rejections {
			detail := ""
			if rej.Err != nil {
				detail = rej.Err.Error()
			}

			rejectionRows = append(rejectionRows, []string{
				rej.Field,
				string(rej.Reason),
				utils.Truncate(detail, maxCellWidth),
			})
		}

		b.WriteString(renderTable([]string{"field", "reason", "detail"}, rejectionRows))
	}

	return b.String()
}

// RenderSites formats loaded site configurations as a table.
func RenderSites(sites []*config.SiteConfig) string {
	rows := make([][]string, 0, len(sites))

	for _, site := range sites {
		enabled := "yes"
		if !site.Enabled {
			enabled = "no"
		}

		rows = append(rows, []string{
			site.Name,
			enabled,
			utils.Truncate(site.SiteOrigin, maxCellWidth),
		})
	}

	return renderTable([]string{"site", "enabled", "origin"}, rows)
}

// renderTable lays out rows under headers using display width, so
// double-width characters in listing data keep columns aligned.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))

	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}

	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := runewidth.StringWidth(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder

	writeRow := func(cells []string) {
		for i, width := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}

			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", width-runewidth.StringWidth(cell)))

			if i < len(widths)-1 {
				b.WriteString("  ")
			}
		}

		b.WriteString("\n")
	}

	writeRow(headers)

	separators := make([]string, len(widths))
	for i, width := range widths {
		separators[i] = strings.Repeat("-", width)
	}

	writeRow(separators)

	for _, row := range rows {
		writeRow(row)
	}

	return b.String()
}
