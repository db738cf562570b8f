package domain

import "time"

type AccessLevel string

const (
	AccessInternal     AccessLevel = "internal"
	AccessConfidential AccessLevel = "confidential"
	AccessRestricted   AccessLevel = "restricted"
)

func (l AccessLevel) Valid() bool {
	switch l {
	case AccessInternal, AccessConfidential, AccessRestricted:
		return true
	}
	return false
}

type VersionStatus string

const (
	StatusPending    VersionStatus = "pending"
	StatusOcrDone    VersionStatus = "ocr_done"
	StatusClassified VersionStatus = "classified"
	StatusIndexed    VersionStatus = "indexed"
	StatusFailed     VersionStatus = "failed"
)

// BlobRef identifies an encrypted, content-addressed payload.
// The hash is computed over plaintext so identical uploads dedupe
// regardless of encryption nonce.
type BlobRef struct {
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
	MediaType string `json:"media_type"`
}

// Document is the logical archival entity. Its version chain is
// append-only; CurrentVersion points at the highest non-failed
// version and HeadVersion at the highest allocated number.
type Document struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	DocumentType   string      `json:"document_type"`
	Category       string      `json:"category,omitempty"`
	Subcategory    string      `json:"subcategory,omitempty"`
	Description    string      `json:"description,omitempty"`
	AccessLevel    AccessLevel `json:"access_level"`
	CurrentVersion int         `json:"current_version"`
	HeadVersion    int         `json:"head_version"`
	CreatedBy      string      `json:"created_by"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Version is an immutable snapshot. Stages mutate only its status and
// derived fields (OCR text, classification), never identity or blob.
type Version struct {
	DocumentID    string        `json:"document_id"`
	Number        int           `json:"number"`
	BlobHash      string        `json:"blob_hash"`
	Size          int64         `json:"size"`
	MediaType     string        `json:"media_type"`
	SkipOcr       bool          `json:"skip_ocr,omitempty"`
	OcrText       string        `json:"ocr_text,omitempty"`
	OcrConfidence float64       `json:"ocr_confidence,omitempty"`
	OcrWarnings   []string      `json:"ocr_warnings,omitempty"`
	OcrDone       bool          `json:"ocr_done,omitempty"`

	Classification *ClassificationResult `json:"classification,omitempty"`

	Status        VersionStatus `json:"status"`
	StatusDetail  string        `json:"status_detail,omitempty"`
	Note          string        `json:"note,omitempty"`
	CreatedBy     string        `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
}

func (v Version) BlobRef() BlobRef {
	return BlobRef{Hash: v.BlobHash, Size: v.Size, MediaType: v.MediaType}
}

// OcrResult is the best-effort output of text extraction. Unsupported
// media yields an empty result with a warning instead of an error.
type OcrResult struct {
	Text            string    `json:"text"`
	Confidence      float64   `json:"confidence"`
	Language        string    `json:"language,omitempty"`
	PageConfidences []float64 `json:"page_confidences,omitempty"`
	Warnings        []string  `json:"warnings,omitempty"`
}

const WarningUnsupportedMediaType = "unsupported-media-type"

// PageBreak separates concatenated page texts in multi-page OCR output.
const PageBreak = "\f"
