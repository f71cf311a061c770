package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"finsight-backend/internal/dataset"
)

// SpreadsheetExtractor parses XLSX workbooks sheet by sheet. The first sheet
// becomes the primary canonical dataset; every sheet is retained in the side
// channel. The legacy binary XLS container cannot be decoded; those files
// degrade to a failed Result rather than failing the run.
type SpreadsheetExtractor struct {
	Legacy bool
}

// Extract parses every sheet of the workbook, applying the shared coercion
// rules per sheet.
func (e *SpreadsheetExtractor) Extract(ctx context.Context, data []byte, source string) Result {
	if err := ctx.Err(); err != nil {
		return failedResult(source, KindSpreadsheet, err.Error())
	}
	if e.Legacy {
		return failedResult(source, KindSpreadsheet,
			"spreadsheet parsing failed: legacy xls binary container is not decodable; convert to xlsx")
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return failedResult(source, KindSpreadsheet, fmt.Sprintf("spreadsheet parsing failed: %v", err))
	}

	wb, err := readWorkbook(zr)
	if err != nil {
		return failedResult(source, KindSpreadsheet, fmt.Sprintf("spreadsheet parsing failed: %v", err))
	}

	shared, err := readSharedStrings(zr)
	if err != nil {
		return failedResult(source, KindSpreadsheet, fmt.Sprintf("spreadsheet parsing failed: %v", err))
	}

	sheets := make(map[string]*dataset.Dataset, len(wb.sheets))
	names := make([]string, 0, len(wb.sheets))
	for i, sheet := range wb.sheets {
		grid, err := readSheetGrid(zr, wb.target(i), shared)
		if err != nil {
			return failedResult(source, KindSpreadsheet,
				fmt.Sprintf("spreadsheet parsing failed: sheet %q: %v", sheet.Name, err))
		}
		var d *dataset.Dataset
		if len(grid) > 0 {
			d, err = buildDataset(grid[0], grid[1:])
			if err != nil {
				return failedResult(source, KindSpreadsheet,
					fmt.Sprintf("spreadsheet parsing failed: sheet %q: %v", sheet.Name, err))
			}
		} else {
			d, _ = dataset.New(nil)
		}
		sheets[sheet.Name] = d
		names = append(names, sheet.Name)
	}

	if len(names) == 0 {
		return failedResult(source, KindSpreadsheet, "spreadsheet parsing failed: workbook has no sheets")
	}

	result := Result{
		Source:     source,
		Kind:       KindSpreadsheet,
		Data:       sheets[names[0]],
		Sheets:     sheets,
		SheetNames: names,
	}
	finishResult(&result)
	return result
}

type workbookSheet struct {
	Name string `xml:"name,attr"`
	RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
}

type workbookInfo struct {
	sheets  []workbookSheet
	targets map[string]string
}

// target resolves the worksheet part path for the i-th sheet, falling back
// to the conventional sheetN.xml naming when the relationship is missing.
func (w *workbookInfo) target(i int) string {
	sheet := w.sheets[i]
	if t, ok := w.targets[sheet.RID]; ok {
		return "xl/" + strings.TrimPrefix(t, "/xl/")
	}
	return fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1)
}

func readWorkbook(zr *zip.Reader) (*workbookInfo, error) {
	raw, err := readZipFile(zr, "xl/workbook.xml")
	if err != nil {
		return nil, err
	}

	var doc struct {
		Sheets []workbookSheet `xml:"sheets>sheet"`
	}
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("workbook.xml: %w", err)
	}

	info := &workbookInfo{sheets: doc.Sheets, targets: map[string]string{}}

	relsRaw, err := readZipFile(zr, "xl/_rels/workbook.xml.rels")
	if err == nil {
		var rels struct {
			Relationships []struct {
				ID     string `xml:"Id,attr"`
				Target string `xml:"Target,attr"`
			} `xml:"Relationship"`
		}
		if err := xml.Unmarshal(relsRaw, &rels); err == nil {
			for _, rel := range rels.Relationships {
				info.targets[rel.ID] = rel.Target
			}
		}
	}
	return info, nil
}

func readSharedStrings(zr *zip.Reader) ([]string, error) {
	raw, err := readZipFile(zr, "xl/sharedStrings.xml")
	if err != nil {
		// Workbooks with no string cells omit the part entirely.
		return nil, nil
	}

	var doc struct {
		Items []struct {
			T    *string `xml:"t"`
			Runs []struct {
				T string `xml:"t"`
			} `xml:"r"`
		} `xml:"si"`
	}
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("sharedStrings.xml: %w", err)
	}

	out := make([]string, len(doc.Items))
	for i, item := range doc.Items {
		if item.T != nil {
			out[i] = *item.T
			continue
		}
		var b strings.Builder
		for _, run := range item.Runs {
			b.WriteString(run.T)
		}
		out[i] = b.String()
	}
	return out, nil
}

type sheetCell struct {
	Ref    string `xml:"r,attr"`
	Type   string `xml:"t,attr"`
	Value  string `xml:"v"`
	Inline string `xml:"is>t"`
}

func readSheetGrid(zr *zip.Reader, path string, shared []string) ([][]string, error) {
	raw, err := readZipFile(zr, path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Rows []struct {
			Cells []sheetCell `xml:"c"`
		} `xml:"sheetData>row"`
	}
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	var grid [][]string
	width := 0
	for _, row := range doc.Rows {
		fields := make(map[int]string, len(row.Cells))
		for pos, cell := range row.Cells {
			col := cellColumn(cell.Ref, pos)
			fields[col] = cellValue(cell, shared)
			if col+1 > width {
				width = col + 1
			}
		}
		line := make([]string, width)
		for col, v := range fields {
			if col < len(line) {
				line[col] = v
			}
		}
		grid = append(grid, line)
	}

	// Rows parsed before the widest row are shorter; pad them out.
	for i, line := range grid {
		if len(line) < width {
			padded := make([]string, width)
			copy(padded, line)
			grid[i] = padded
		}
	}
	return grid, nil
}

// cellColumn converts an A1-style reference to a zero-based column index,
// falling back to the cell's position in the row when the reference is absent.
func cellColumn(ref string, pos int) int {
	col := 0
	found := false
	for _, r := range ref {
		if r >= 'A' && r <= 'Z' {
			col = col*26 + int(r-'A') + 1
			found = true
			continue
		}
		break
	}
	if !found {
		return pos
	}
	return col - 1
}

func cellValue(cell sheetCell, shared []string) string {
	switch cell.Type {
	case "s":
		idx, err := strconv.Atoi(strings.TrimSpace(cell.Value))
		if err != nil || idx < 0 || idx >= len(shared) {
			return ""
		}
		return shared[idx]
	case "inlineStr":
		return cell.Inline
	default:
		return cell.Value
	}
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("%s not found", name)
}
