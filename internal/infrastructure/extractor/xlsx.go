package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

// XLSX flattens a workbook into text, one entry per sheet. Rows become
// pipe-separated lines prefixed with the sheet name so the chunker keeps
// tabular context together.
type XLSX struct{}

func (XLSX) Extract(ctx context.Context, path string) ([]domain.PageText, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var pages []domain.PageText
	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}

		var b strings.Builder
		b.WriteString("Feuille: " + sheet + "\n")
		empty := true
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if strings.Trim(line, "| ") == "" {
				continue
			}
			b.WriteString(line + "\n")
			empty = false
		}
		if empty {
			continue
		}
		pages = append(pages, domain.PageText{Page: i + 1, Text: strings.TrimSpace(b.String())})
	}
	return pages, nil
}
