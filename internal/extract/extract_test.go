package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestResolveKnownTokens(t *testing.T) {
	cases := []struct {
		token string
	}{
		{"csv"}, {"xlsx"}, {"xls"}, {"pdf"}, {"docx"},
		{"report.csv"}, {".PDF"}, {"statements.DOCX"},
	}
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			if _, err := Resolve(tc.token); err != nil {
				t.Fatalf("Resolve(%q): %v", tc.token, err)
			}
		})
	}
}

func TestResolveUnsupportedToken(t *testing.T) {
	_, err := Resolve("report.docm")
	if err == nil {
		t.Fatal("expected error for docm")
	}
	var unsupported *UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedFormatError, got %T", err)
	}
	if unsupported.Token != "docm" {
		t.Fatalf("unexpected token: %q", unsupported.Token)
	}
}

func TestCSVExtractCoercion(t *testing.T) {
	raw := strings.Join([]string{
		`date,revenue,expenses,notes`,
		`2023-01-01,"100,000",75000,ok`,
		`,,,`,
		`2023-02-01,120000,85000,fine`,
	}, "\n")

	result := (&CSVExtractor{}).Extract(context.Background(), []byte(raw), "q1.csv")
	if result.Failed {
		t.Fatalf("unexpected failure: %s", result.Diagnostic)
	}
	if result.Rows != 2 {
		t.Fatalf("expected 2 rows after dropping the empty one, got %d", result.Rows)
	}

	revenue, ok := result.Data.NumericSeries("revenue")
	if !ok || revenue[0] != 100000 || revenue[1] != 120000 {
		t.Fatalf("unexpected revenue series: %v ok=%v", revenue, ok)
	}
	if _, ok := result.Data.NumericSeries("notes"); ok {
		t.Fatal("notes column must stay text")
	}
	if result.DateRange != "2023-01-01 to 2023-02-01" {
		t.Fatalf("unexpected date range: %q", result.DateRange)
	}
}

func TestCSVExtractEmptyPayloadDegrades(t *testing.T) {
	result := (&CSVExtractor{}).Extract(context.Background(), nil, "empty.csv")
	if !result.Failed {
		t.Fatal("expected failed result")
	}
	if result.Data == nil {
		t.Fatal("failed result must still carry a dataset")
	}
}

func TestCSVExtractMixedColumnStaysText(t *testing.T) {
	raw := "amount\n100\nn/a\n200\n"
	result := (&CSVExtractor{}).Extract(context.Background(), []byte(raw), "mixed.csv")
	if result.Failed {
		t.Fatalf("unexpected failure: %s", result.Diagnostic)
	}
	if _, ok := result.Data.NumericSeries("amount"); ok {
		t.Fatal("column with unparseable values must stay text")
	}
}

func TestLegacyXLSDegrades(t *testing.T) {
	result := (&SpreadsheetExtractor{Legacy: true}).Extract(context.Background(), []byte{0xd0, 0xcf}, "old.xls")
	if !result.Failed {
		t.Fatal("expected failed result for legacy xls")
	}
	if !strings.Contains(result.Diagnostic, "legacy xls") {
		t.Fatalf("unexpected diagnostic: %q", result.Diagnostic)
	}
}

func TestPDFGarbageDegrades(t *testing.T) {
	result := (&PDFExtractor{}).Extract(context.Background(), []byte("not a pdf"), "bad.pdf")
	if !result.Failed {
		t.Fatal("expected failed result")
	}
	if result.Kind != KindPDF {
		t.Fatalf("unexpected kind: %q", result.Kind)
	}
}

func TestScanLabeledMetrics(t *testing.T) {
	text := "Quarterly summary\nRevenue: $1,250,000\nProfit: 300,000\nHeadcount: 50\n"
	d := scanLabeledMetrics(text)

	revenue, ok := d.NumericSeries("revenue")
	if !ok || revenue[0] != 1250000 {
		t.Fatalf("unexpected revenue: %v ok=%v", revenue, ok)
	}
	profit, ok := d.NumericSeries("profit")
	if !ok || profit[0] != 300000 {
		t.Fatalf("unexpected profit: %v ok=%v", profit, ok)
	}
	// Absent labels are omitted, not zero-filled.
	if d.HasColumn("expenses") {
		t.Fatal("expenses must be omitted when not present in text")
	}
}

func TestScanLabeledMetricsNothingMatched(t *testing.T) {
	d := scanLabeledMetrics("no financial terms here")
	if !d.Empty() {
		t.Fatalf("expected empty dataset, got %d rows", d.RowCount())
	}
}

func TestDetectTextTables(t *testing.T) {
	text := strings.Join([]string{
		"Annual report",
		"",
		"quarter    revenue    profit",
		"Q1         100000     25000",
		"Q2         120000     35000",
		"",
		"closing remarks",
	}, "\n")

	grids := detectTextTables(text)
	if len(grids) != 1 {
		t.Fatalf("expected 1 table, got %d", len(grids))
	}
	if len(grids[0]) != 3 || len(grids[0][0]) != 3 {
		t.Fatalf("unexpected grid shape: %v", grids[0])
	}

	tables := tablesToDatasets(grids)
	if len(tables) != 1 {
		t.Fatalf("expected 1 dataset, got %d", len(tables))
	}
	revenue, ok := tables[0].NumericSeries("revenue")
	if !ok || len(revenue) != 2 || revenue[1] != 120000 {
		t.Fatalf("unexpected revenue series: %v ok=%v", revenue, ok)
	}
}

func TestDetectTextTablesIgnoresProse(t *testing.T) {
	grids := detectTextTables("just a paragraph of text\nanother line\n")
	if len(grids) != 0 {
		t.Fatalf("expected no tables, got %d", len(grids))
	}
}
