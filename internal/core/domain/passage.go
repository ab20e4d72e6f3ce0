package domain

import (
	"strconv"
	"strings"
)

// PageRange locates a passage inside a paginated source document (PDF only).
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (p PageRange) Valid() bool {
	return p.Start > 0 && p.End >= p.Start
}

func (p PageRange) Label() string {
	if !p.Valid() {
		return ""
	}
	if p.End == p.Start {
		return "p. " + strconv.Itoa(p.Start)
	}
	return "p. " + strconv.Itoa(p.Start) + "-" + strconv.Itoa(p.End)
}

// Passage is one candidate unit of retrieved text coming back from the
// search store. Similarity is cosine similarity in [0,1]; FusedScore is the
// RRF signal and is zero when the passage came from the vector-only path.
type Passage struct {
	ChunkID     string            `json:"chunk_id"`
	DocumentID  string            `json:"document_id"`
	Title       string            `json:"document_title"`
	Source      string            `json:"document_source"`
	Content     string            `json:"content"`
	Similarity  float64           `json:"similarity"`
	FusedScore  float64           `json:"rrf_score,omitempty"`
	Pages       *PageRange        `json:"pages,omitempty"`
	URL         string            `json:"url,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	Boilerplate bool              `json:"is_toc"`
}

// SourceDescriptor is the outward-facing subset of a Passage returned to the
// calling client alongside the generated answer.
type SourceDescriptor struct {
	Title      string  `json:"title"`
	Source     string  `json:"path"`
	Similarity float64 `json:"similarity"`
	PageLabel  string  `json:"page_range,omitempty"`
	URL        string  `json:"url,omitempty"`
	Content    string  `json:"content,omitempty"`
}

// Describe builds the client-facing view of a passage. Content is inlined
// only when asked for, to keep the sources payload small by default.
func (p Passage) Describe(includeContent bool) SourceDescriptor {
	desc := SourceDescriptor{
		Title:      p.Title,
		Source:     p.Source,
		Similarity: p.Similarity,
		URL:        p.URL,
	}
	if p.Pages != nil {
		desc.PageLabel = p.Pages.Label()
	}
	if includeContent {
		desc.Content = p.Content
	}
	return desc
}

// Query carries one request through the pipeline. Raw is what the user
// typed; Normalized and Expanded are filled by the successive stages.
type Query struct {
	Raw        string
	Normalized string
	Expanded   string
	Limit      int
	Threshold  float64
}

// EffectiveText returns the best available form of the query for retrieval.
func (q Query) EffectiveText() string {
	if strings.TrimSpace(q.Expanded) != "" {
		return q.Expanded
	}
	if strings.TrimSpace(q.Normalized) != "" {
		return q.Normalized
	}
	return q.Raw
}
