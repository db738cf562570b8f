package ocr

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/archivist/internal/core/domain"
)

func extractPlain(content []byte) (domain.OcrResult, error) {
	if !utf8.Valid(content) {
		return domain.OcrResult{}, domain.WrapError(domain.ErrCorruptInput, "read text", errors.New("invalid utf-8"))
	}
	text := strings.TrimSpace(string(content))
	confidence := 0.0
	if text != "" {
		confidence = 1.0
	}
	return domain.OcrResult{
		Text:            text,
		Confidence:      confidence,
		PageConfidences: []float64{confidence},
	}, nil
}
