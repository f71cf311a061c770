package extract

import (
	"regexp"
	"strings"

	"finsight-backend/internal/dataset"
)

// Labeled monetary quantities recognized by the free-text fallback. Absent
// labels are omitted from the dataset, never zero-filled.
var labelPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"revenue", regexp.MustCompile(`revenue[:\s]+\$?([\d,]+)`)},
	{"profit", regexp.MustCompile(`profit[:\s]+\$?([\d,]+)`)},
	{"expenses", regexp.MustCompile(`expenses[:\s]+\$?([\d,]+)`)},
}

// scanLabeledMetrics scans free text for labeled monetary quantities and
// returns a single-row dataset of whatever labels matched.
func scanLabeledMetrics(text string) *dataset.Dataset {
	lower := strings.ToLower(text)

	var cols []dataset.Column
	var row []dataset.Cell
	for _, lp := range labelPatterns {
		m := lp.pattern.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		v, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		cols = append(cols, dataset.Column{Name: lp.name, Kind: dataset.KindNumber})
		row = append(row, dataset.Number(v))
	}

	d, err := dataset.New(cols)
	if err != nil {
		d, _ = dataset.New(nil)
		return d
	}
	if len(row) > 0 {
		_ = d.AppendRow(row)
	}
	return d
}

var fieldSplitter = regexp.MustCompile(`\t+| {2,}`)

// detectTextTables finds whitespace-aligned grids in extracted text: runs of
// consecutive lines that split into the same number of fields (at least two
// columns, at least two lines, header included). This is a simple heuristic,
// not layout inference.
func detectTextTables(text string) [][][]string {
	var tables [][][]string
	var current [][]string

	flush := func() {
		if len(current) >= 2 {
			tables = append(tables, current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		fields := splitTableLine(line)
		if len(fields) < 2 {
			flush()
			continue
		}
		if len(current) > 0 && len(fields) != len(current[0]) {
			flush()
		}
		current = append(current, fields)
	}
	flush()
	return tables
}

func splitTableLine(line string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	parts := fieldSplitter.Split(trimmed, -1)
	var fields []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			fields = append(fields, s)
		}
	}
	return fields
}

// tablesToDatasets converts detected grids into canonical datasets (header
// row + body rows, shared coercion rules). Grids that fail conversion are
// skipped; the caller falls back to the label scan when none survive.
func tablesToDatasets(grids [][][]string) []*dataset.Dataset {
	var out []*dataset.Dataset
	for _, grid := range grids {
		d, err := buildDataset(grid[0], grid[1:])
		if err != nil || d.Empty() {
			continue
		}
		out = append(out, d)
	}
	return out
}
