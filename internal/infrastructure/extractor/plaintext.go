package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

// Plaintext handles .txt and .md sources. Non-paginated, so the single entry
// carries page zero.
type Plaintext struct{}

func (Plaintext) Extract(ctx context.Context, path string) ([]domain.PageText, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("file is not valid UTF-8: %s", path)
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, nil
	}
	return []domain.PageText{{Page: 0, Text: text}}, nil
}
