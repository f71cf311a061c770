package extract

import (
	"strconv"
	"strings"
	"time"

	"finsight-backend/internal/dataset"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
	"2006-01",
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumber coerces numeric-looking text: optional currency symbol,
// thousands separators, decimals, sign.
func parseNumber(raw string) (float64, bool) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "$")
	clean = strings.ReplaceAll(clean, ",", "")
	if clean == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isEmptyRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// uniqueHeaders keeps column names unique by suffixing repeats, and fills
// blank headers positionally.
func uniqueHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = name + "_" + strconv.Itoa(n+1)
		}
		if _, ok := seen[name]; !ok {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

// buildDataset converts a header + string grid into a canonical dataset,
// applying the shared coercion rules: fully-empty rows are dropped, columns
// whose name contains "date" are coerced to dates, and text columns whose
// non-empty values all look numeric are coerced to numbers. Coercion is
// best-effort per column; any failure leaves the column as text.
func buildDataset(header []string, rows [][]string) (*dataset.Dataset, error) {
	names := uniqueHeaders(header)

	var kept [][]string
	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		padded := make([]string, len(names))
		copy(padded, row)
		kept = append(kept, padded)
	}

	kinds := make([]dataset.Kind, len(names))
	for i, name := range names {
		kinds[i] = columnKind(name, column(kept, i))
	}

	cols := make([]dataset.Column, len(names))
	for i, name := range names {
		cols[i] = dataset.Column{Name: name, Kind: kinds[i]}
	}
	d, err := dataset.New(cols)
	if err != nil {
		return nil, err
	}

	for _, row := range kept {
		cells := make([]dataset.Cell, len(names))
		for i, raw := range row {
			cells[i] = coerceCell(kinds[i], raw)
		}
		if err := d.AppendRow(cells); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func column(rows [][]string, idx int) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row[idx])
	}
	return out
}

func columnKind(name string, values []string) dataset.Kind {
	if strings.Contains(strings.ToLower(name), "date") && columnParses(values, func(v string) bool {
		_, ok := parseDate(v)
		return ok
	}) {
		return dataset.KindDate
	}
	if columnParses(values, func(v string) bool {
		_, ok := parseNumber(v)
		return ok
	}) {
		return dataset.KindNumber
	}
	return dataset.KindText
}

// columnParses reports whether every non-empty value parses; a column with no
// non-empty values stays text.
func columnParses(values []string, parse func(string) bool) bool {
	any := false
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if !parse(v) {
			return false
		}
		any = true
	}
	return any
}

func coerceCell(kind dataset.Kind, raw string) dataset.Cell {
	if strings.TrimSpace(raw) == "" {
		return dataset.Missing()
	}
	switch kind {
	case dataset.KindDate:
		if t, ok := parseDate(raw); ok {
			return dataset.Date(t)
		}
	case dataset.KindNumber:
		if v, ok := parseNumber(raw); ok {
			return dataset.Number(v)
		}
	}
	return dataset.Text(strings.TrimSpace(raw))
}
