package domain

type UploadRequest struct {
	Content      []byte
	Title        string
	DocumentType string
	Category     string
	Description  string
	AccessLevel  AccessLevel
	MediaType    string
	ProcessOCR   bool
	Actor        string
}

type UploadReceipt struct {
	DocumentID string        `json:"document_id"`
	Version    int           `json:"version"`
	Status     VersionStatus `json:"status"`
}

type NewVersionRequest struct {
	DocumentID string
	Content    []byte
	MediaType  string
	Note       string
	Actor      string
}
