package chunking

import (
	"strings"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

// Splitter cuts extracted pages into fixed-size overlapping windows while
// tracking which pages each window spans. Boilerplate detection runs here,
// at ingestion time, so the stored label is available to search-side
// exclusion without re-reading content.
type Splitter struct {
	ChunkSize       int
	Overlap         int
	TOCLineFraction float64
}

func NewSplitter(chunkSize, overlap int, tocLineFraction float64) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	if tocLineFraction <= 0 || tocLineFraction >= 1 {
		tocLineFraction = domain.DefaultTOCLineFraction
	}
	return &Splitter{
		ChunkSize:       chunkSize,
		Overlap:         overlap,
		TOCLineFraction: tocLineFraction,
	}
}

func (s *Splitter) Split(pages []domain.PageText) []domain.Chunk {
	text, offsets := flatten(pages)
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	chunks := make([]domain.Chunk, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunk := domain.Chunk{
				Index:      len(chunks),
				Content:    content,
				TokenCount: estimateTokens(content),
				Pages:      pageSpan(offsets, start, end),
				IsTOC:      domain.LooksLikeTOC(content, s.TOCLineFraction),
			}
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}
	}
	return chunks
}

type pageOffset struct {
	page  int
	start int
	end   int
}

// flatten joins pages into one rune stream, remembering where each page
// starts so chunks can report the span they cover.
func flatten(pages []domain.PageText) (string, []pageOffset) {
	var b strings.Builder
	offsets := make([]pageOffset, 0, len(pages))

	pos := 0
	for _, p := range pages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		if pos > 0 {
			b.WriteString("\n")
			pos++
		}
		n := len([]rune(text))
		offsets = append(offsets, pageOffset{page: p.Page, start: pos, end: pos + n})
		b.WriteString(text)
		pos += n
	}
	return b.String(), offsets
}

// pageSpan returns the page range a rune window overlaps, or nil when the
// source is not paginated.
func pageSpan(offsets []pageOffset, start, end int) *domain.PageRange {
	first, last := 0, 0
	for _, o := range offsets {
		if o.end <= start || o.start >= end {
			continue
		}
		if o.page <= 0 {
			return nil
		}
		if first == 0 {
			first = o.page
		}
		last = o.page
	}
	if first == 0 {
		return nil
	}
	return &domain.PageRange{Start: first, End: last}
}

// estimateTokens approximates the embedding tokenizer closely enough for
// batch sizing: about four characters per token for French prose.
func estimateTokens(content string) int {
	n := len([]rune(content)) / 4
	if n == 0 {
		n = 1
	}
	return n
}
