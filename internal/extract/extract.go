// Package extract converts raw financial documents (CSV, XLSX, PDF, DOCX)
// into the canonical dataset. Extractors never fail hard: any internal error
// degrades to a Result with the Failed flag and a diagnostic, so a run can
// keep whatever data the other files yielded.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"finsight-backend/internal/dataset"
)

// Extractor kinds recorded in Result metadata.
const (
	KindCSV         = "csv"
	KindSpreadsheet = "spreadsheet"
	KindPDF         = "pdf"
	KindDOCX        = "docx"
)

// Result wraps a canonical dataset plus source metadata. It is always
// produced, even on failure; Failed distinguishes "no usable data" from
// partial data.
type Result struct {
	Source     string
	Kind       string
	Data       *dataset.Dataset
	Rows       int
	Columns    int
	DateRange  string
	Text       string
	Tables     []*dataset.Dataset
	Sheets     map[string]*dataset.Dataset
	SheetNames []string
	Pages      int
	Failed     bool
	Diagnostic string
}

// Extractor converts one file format into the canonical dataset.
type Extractor interface {
	Extract(ctx context.Context, data []byte, source string) Result
}

// UnsupportedFormatError is the one hard failure in the normalization layer.
// Callers skip the file and continue with the remainder of the run.
type UnsupportedFormatError struct {
	Token string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %s", e.Token)
}

// NormalizeToken derives the registry token from a filename, extension, or
// caller-supplied type.
func NormalizeToken(fileType string) string {
	token := strings.ToLower(strings.TrimSpace(fileType))
	if strings.Contains(token, ".") {
		token = strings.TrimPrefix(filepath.Ext(token), ".")
	}
	return token
}

// Resolve returns the extractor for a normalized file-type token. Unknown
// tokens yield UnsupportedFormatError.
func Resolve(fileType string) (Extractor, error) {
	token := NormalizeToken(fileType)
	switch token {
	case "csv":
		return &CSVExtractor{}, nil
	case "xlsx", "xls":
		return &SpreadsheetExtractor{Legacy: token == "xls"}, nil
	case "pdf":
		return &PDFExtractor{}, nil
	case "docx":
		return &DOCXExtractor{}, nil
	default:
		return nil, &UnsupportedFormatError{Token: token}
	}
}

func failedResult(source, kind, diagnostic string) Result {
	empty, _ := dataset.New(nil)
	return Result{
		Source:     source,
		Kind:       kind,
		Data:       empty,
		Failed:     true,
		Diagnostic: diagnostic,
	}
}

func finishResult(r *Result) {
	if r.Data == nil {
		r.Data, _ = dataset.New(nil)
	}
	r.Rows = r.Data.RowCount()
	r.Columns = r.Data.ColumnCount()
	if min, max, ok := r.Data.DateRange(); ok {
		r.DateRange = fmt.Sprintf("%s to %s",
			min.Format("2006-01-02"), max.Format("2006-01-02"))
	}
}

const textExcerptLimit = 1000

func excerpt(text string) string {
	if len(text) > textExcerptLimit {
		return text[:textExcerptLimit]
	}
	return text
}
