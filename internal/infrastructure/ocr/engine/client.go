// Package engine is an HTTP client for a tesseract-style OCR service.
package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/archivist/internal/core/domain"
)

// Preprocess toggles the image cleanup steps the engine applies before
// recognition. Disabling them degrades confidence, never fails.
type Preprocess struct {
	Deskew   bool `json:"deskew"`
	Binarize bool `json:"binarize"`
	Denoise  bool `json:"denoise"`
}

type Client struct {
	baseURL    string
	language   string
	preprocess Preprocess
	httpClient *http.Client
}

func New(baseURL, language string, preprocess Preprocess) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   language,
		preprocess: preprocess,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type recognizeRequest struct {
	Content    string     `json:"content"`
	MediaType  string     `json:"media_type"`
	Language   string     `json:"language,omitempty"`
	Preprocess Preprocess `json:"preprocess"`
}

type recognizeResponse struct {
	Pages []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"pages"`
	Language string `json:"language"`
}

// Recognize submits the payload for text recognition. Connection
// failures and 5xx map to domain.ErrEngineUnavailable (transient);
// 4xx means the engine rejected the payload itself.
func (c *Client) Recognize(ctx context.Context, content []byte, mediaType string) (domain.OcrResult, error) {
	payload := recognizeRequest{
		Content:    base64.StdEncoding.EncodeToString(content),
		MediaType:  mediaType,
		Language:   c.language,
		Preprocess: c.preprocess,
	}

	var response recognizeResponse
	if err := c.postJSON(ctx, "/v1/recognize", payload, &response); err != nil {
		return domain.OcrResult{}, err
	}

	texts := make([]string, 0, len(response.Pages))
	confidences := make([]float64, 0, len(response.Pages))
	total := 0.0
	for _, page := range response.Pages {
		texts = append(texts, page.Text)
		confidences = append(confidences, page.Confidence)
		total += page.Confidence
	}
	overall := 0.0
	if len(response.Pages) > 0 {
		overall = total / float64(len(response.Pages))
	}
	return domain.OcrResult{
		Text:            strings.Join(texts, domain.PageBreak),
		Confidence:      overall,
		Language:        response.Language,
		PageConfidences: confidences,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal recognize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrEngineUnavailable, "ocr engine request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return classifyHTTPError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode recognize response: %w", err)
	}
	return nil
}

func classifyHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))
	err := fmt.Errorf("ocr engine status %s: %s", resp.Status, msg)

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return domain.WrapError(domain.ErrEngineUnavailable, "ocr engine", err)
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return domain.WrapError(domain.ErrCorruptInput, "ocr engine", err)
	default:
		return err
	}
}
