package ocr

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/archivist/internal/core/domain"
)

// pdfText reads the PDF's embedded text layer page by page. The text
// layer is authoritative when present, so page confidence is 1.
func pdfText(content []byte) (res domain.OcrResult, err error) {
	// The pdf parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			res = domain.OcrResult{}
			err = domain.WrapError(domain.ErrCorruptInput, "parse pdf", fmt.Errorf("parser panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return domain.OcrResult{}, domain.WrapError(domain.ErrCorruptInput, "parse pdf", err)
	}

	pages := make([]string, 0, reader.NumPage())
	confidences := make([]float64, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			confidences = append(confidences, 0)
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.OcrResult{}, domain.WrapError(domain.ErrCorruptInput, "read pdf page", err)
		}
		pages = append(pages, strings.TrimSpace(text))
		confidences = append(confidences, 1)
	}

	joined := strings.Join(pages, domain.PageBreak)
	confidence := 0.0
	if strings.TrimSpace(joined) != "" {
		confidence = 1.0
	}
	return domain.OcrResult{
		Text:            joined,
		Confidence:      confidence,
		PageConfidences: confidences,
	}, nil
}
