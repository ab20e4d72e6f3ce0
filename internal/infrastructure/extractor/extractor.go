package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

// Dispatcher routes a stored file to the extractor for its format, by MIME
// type first and file extension as a fallback.
type Dispatcher struct {
	pdf   PDF
	xlsx  XLSX
	plain Plaintext
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) Extract(ctx context.Context, path, mimeType string) ([]domain.PageText, error) {
	switch {
	case isPDF(path, mimeType):
		return d.pdf.Extract(ctx, path)
	case isXLSX(path, mimeType):
		return d.xlsx.Extract(ctx, path)
	case isPlaintext(path, mimeType):
		return d.plain.Extract(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported document format: %s (%s)", filepath.Ext(path), mimeType)
	}
}

func isPDF(path, mimeType string) bool {
	return strings.Contains(mimeType, "application/pdf") || strings.EqualFold(filepath.Ext(path), ".pdf")
}

func isXLSX(path, mimeType string) bool {
	return strings.Contains(mimeType, "spreadsheetml") || strings.EqualFold(filepath.Ext(path), ".xlsx")
}

func isPlaintext(path, mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".md"
}
