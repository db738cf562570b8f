package ocr

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/archivist/internal/core/domain"
)

// extractSheet flattens workbook cells into text, one page per sheet.
func extractSheet(content []byte) (domain.OcrResult, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return domain.OcrResult{}, domain.WrapError(domain.ErrCorruptInput, "open workbook", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	pages := make([]string, 0, len(sheets))
	confidences := make([]float64, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return domain.OcrResult{}, domain.WrapError(domain.ErrCorruptInput, "read sheet rows", err)
		}
		var lines []string
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " "))
			if line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
		confidences = append(confidences, 1)
	}

	return domain.OcrResult{
		Text:            strings.Join(pages, domain.PageBreak),
		Confidence:      1,
		PageConfidences: confidences,
	}, nil
}
