package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is a knowledge-base source file as tracked by the store.
type Document struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Source    string            `json:"source"`
	MimeType  string            `json:"mime_type"`
	Path      string            `json:"-"`
	URL       string            `json:"url,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
	Status    DocumentStatus    `json:"status"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Chunk is one unit of document text produced by the splitter and indexed
// into the search store. IsTOC is decided at ingestion time so the store can
// exclude boilerplate without re-reading content.
type Chunk struct {
	Index      int
	Content    string
	TokenCount int
	Pages      *PageRange
	IsTOC      bool
}

// PageText is extractor output for paginated formats. Page is 1-based; for
// non-paginated formats extractors return a single entry with Page zero.
type PageText struct {
	Page int
	Text string
}
