// Package ocr turns stored blobs into plain text. Extraction is best
// effort: unsupported media degrades to an empty result with a
// warning instead of failing the pipeline.
package ocr

import (
	"context"
	"strings"

	"github.com/kirillkom/archivist/internal/core/domain"
	"github.com/kirillkom/archivist/internal/core/ports"
)

// ImageRecognizer is the external text-recognition engine used for
// raster images and scanned documents without a text layer.
type ImageRecognizer interface {
	Recognize(ctx context.Context, content []byte, mediaType string) (domain.OcrResult, error)
}

type Extractor struct {
	store  ports.ContentStore
	engine ImageRecognizer
}

// NewExtractor builds the media-type dispatcher. engine may be nil,
// in which case image input is reported as unsupported.
func NewExtractor(store ports.ContentStore, engine ImageRecognizer) *Extractor {
	return &Extractor{store: store, engine: engine}
}

func (e *Extractor) Extract(ctx context.Context, ref domain.BlobRef) (domain.OcrResult, error) {
	content, err := e.store.Get(ctx, ref)
	if err != nil {
		return domain.OcrResult{}, err
	}

	switch {
	case ref.MediaType == "application/pdf":
		return e.extractPdf(ctx, content)
	case isSpreadsheet(ref.MediaType):
		return extractSheet(content)
	case isPlainText(ref.MediaType):
		return extractPlain(content)
	case strings.HasPrefix(ref.MediaType, "image/"):
		if e.engine == nil {
			return unsupported(), nil
		}
		return e.engine.Recognize(ctx, content, ref.MediaType)
	default:
		return unsupported(), nil
	}
}

// extractPdf reads the embedded text layer; scanned PDFs without one
// fall through to the recognition engine when configured.
func (e *Extractor) extractPdf(ctx context.Context, content []byte) (domain.OcrResult, error) {
	res, err := pdfText(content)
	if err != nil {
		return domain.OcrResult{}, err
	}
	if strings.TrimSpace(res.Text) == "" && e.engine != nil {
		return e.engine.Recognize(ctx, content, "application/pdf")
	}
	return res, nil
}

func isSpreadsheet(mediaType string) bool {
	switch mediaType {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel":
		return true
	}
	return false
}

func isPlainText(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/json" ||
		mediaType == "application/xml"
}

func unsupported() domain.OcrResult {
	return domain.OcrResult{Warnings: []string{domain.WarningUnsupportedMediaType}}
}
