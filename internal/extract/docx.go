package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"finsight-backend/internal/dataset"
)

// DOCXExtractor pulls paragraph and table content out of word/document.xml.
// Structured tables win; when the document has none, the paragraph text is
// scanned for labeled monetary quantities.
type DOCXExtractor struct{}

// Extract parses the DOCX payload.
func (e *DOCXExtractor) Extract(ctx context.Context, data []byte, source string) Result {
	if err := ctx.Err(); err != nil {
		return failedResult(source, KindDOCX, err.Error())
	}

	text, grids, err := readDocumentXML(data)
	if err != nil {
		return failedResult(source, KindDOCX, fmt.Sprintf("docx parsing failed: %v", err))
	}

	tables := tablesToDatasets(grids)

	var primary *dataset.Dataset
	if len(tables) > 0 {
		primary = tables[0]
	} else {
		primary = scanLabeledMetrics(text)
	}

	result := Result{
		Source: source,
		Kind:   KindDOCX,
		Data:   primary,
		Text:   excerpt(text),
		Tables: tables,
	}
	finishResult(&result)
	return result
}

// readDocumentXML walks word/document.xml tokens, splitting content into
// paragraph text and table grids (rows of cell text).
func readDocumentXML(data []byte) (string, [][][]string, error) {
	if len(data) == 0 {
		return "", nil, errors.New("empty docx data")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, err
	}

	raw, err := readZipFile(zr, "word/document.xml")
	if err != nil {
		return "", nil, errors.New("document.xml file not found")
	}

	decoder := xml.NewDecoder(bytes.NewReader(raw))

	var (
		paragraphs []string
		tables     [][][]string

		tableDepth int
		table      [][]string
		row        []string
		paragraph  strings.Builder
		cell       strings.Builder
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					table = nil
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell.Reset()
				}
			}
		case xml.CharData:
			if tableDepth > 0 {
				cell.Write(t)
			} else {
				paragraph.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				if tableDepth == 1 && len(table) > 0 {
					tables = append(tables, table)
				}
				tableDepth--
			case "tr":
				if tableDepth == 1 {
					table = append(table, row)
				}
			case "tc":
				if tableDepth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "p":
				if tableDepth == 0 {
					if text := strings.TrimSpace(paragraph.String()); text != "" {
						paragraphs = append(paragraphs, text)
					}
					paragraph.Reset()
				}
			}
		}
	}

	return strings.Join(paragraphs, "\n"), tables, nil
}
