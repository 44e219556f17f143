package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"tenant-rag-chatbot/internal/logger"
)

// extractXLSX renders every sheet row as "header: value" pairs, the same
// shape the CSV extractor produces, so spreadsheet rows chunk and search the
// same way.
func (e *Extractor) extractXLSX(content []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook: %v", ErrExtraction, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			logger.Warn("Failed to read sheet", "sheet", sheet, "error", err)
			continue
		}
		if len(rows) == 0 {
			continue
		}

		header := rows[0]
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sheet)
		b.WriteString("\n")

		for _, row := range rows[1:] {
			var fields []string
			for i, value := range row {
				value = strings.TrimSpace(value)
				if value == "" {
					continue
				}
				if i < len(header) && strings.TrimSpace(header[i]) != "" {
					fields = append(fields, fmt.Sprintf("%s: %s", strings.TrimSpace(header[i]), value))
				} else {
					fields = append(fields, value)
				}
			}
			if len(fields) > 0 {
				b.WriteString(strings.Join(fields, ", "))
				b.WriteString("\n")
			}
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, fmt.Errorf("%w: workbook contains no data", ErrExtraction)
	}
	return newResult(text, 1), nil
}
