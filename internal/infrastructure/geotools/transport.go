package geotools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
)

func (o *OpenMeteo) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "open-meteo request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		cause := fmt.Errorf("status %s", resp.Status)
		if msg := strings.TrimSpace(string(body)); msg != "" {
			cause = fmt.Errorf("status %s: %s", resp.Status, msg)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return domain.WrapError(domain.ErrTemporary, "open-meteo request", cause)
		}
		return fmt.Errorf("open-meteo request: %w", cause)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
