package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
)

// CSVExtractor parses delimited tables into the canonical dataset.
type CSVExtractor struct{}

// Extract parses the CSV payload. The first record is the header; fully
// empty rows are dropped and columns are coerced per the shared rules.
func (e *CSVExtractor) Extract(ctx context.Context, data []byte, source string) Result {
	if err := ctx.Err(); err != nil {
		return failedResult(source, KindCSV, err.Error())
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return failedResult(source, KindCSV, fmt.Sprintf("csv parsing failed: %v", err))
	}
	if len(records) == 0 {
		return failedResult(source, KindCSV, "csv parsing failed: empty file")
	}

	d, err := buildDataset(records[0], records[1:])
	if err != nil {
		return failedResult(source, KindCSV, fmt.Sprintf("csv parsing failed: %v", err))
	}

	result := Result{Source: source, Kind: KindCSV, Data: d}
	finishResult(&result)
	return result
}
