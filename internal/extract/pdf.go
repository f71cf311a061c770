package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"finsight-backend/internal/dataset"
)

// PDFExtractor pulls text from page documents via github.com/ledongthuc/pdf,
// tries structured-table detection first, and falls back to scanning the
// text for labeled monetary quantities.
type PDFExtractor struct{}

// Extract parses the PDF payload.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte, source string) Result {
	if err := ctx.Err(); err != nil {
		return failedResult(source, KindPDF, err.Error())
	}

	text, pages, err := extractPDFText(data)
	if err != nil {
		return failedResult(source, KindPDF, fmt.Sprintf("pdf parsing failed: %v", err))
	}

	tables := tablesToDatasets(detectTextTables(text))

	var primary *dataset.Dataset
	if len(tables) > 0 {
		primary = tables[0]
	} else {
		primary = scanLabeledMetrics(text)
	}

	result := Result{
		Source: source,
		Kind:   KindPDF,
		Data:   primary,
		Text:   excerpt(text),
		Tables: tables,
		Pages:  pages,
	}
	finishResult(&result)
	return result
}

func extractPDFText(data []byte) (text string, pages int, err error) {
	// pdf.NewReader panics on some malformed inputs; contain that here so the
	// extractor contract (degrade, never throw) holds.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", 0, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", 0, err
	}
	return buf.String(), reader.NumPage(), nil
}
