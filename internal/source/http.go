package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pkordes/ride-duration/internal/domain"
)

// HTTP downloads a batch file, such as a monthly TLC trip file, and decodes
// it in memory.
type HTTP struct {
	client *http.Client
	url    string
	format Format
	layout Layout
}

// NewHTTP constructs an HTTP loader.
func NewHTTP(client *http.Client, url string, format Format, layout Layout) *HTTP {
	return &HTTP{client: client, url: url, format: format, layout: layout}
}

// Location returns the URL.
func (h *HTTP) Location() string { return h.url }

// Load fetches the URL. Any non-200 response is ErrSourceUnavailable.
func (h *HTTP) Load(ctx context.Context) ([]domain.TripRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("source.HTTP.Load: %w: %w", domain.ErrSourceUnavailable, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source.HTTP.Load: %w: %w", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source.HTTP.Load: %w: %s returned status %d", domain.ErrSourceUnavailable, h.url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source.HTTP.Load: %w: read body: %w", domain.ErrSourceUnavailable, err)
	}

	records, err := decode(bytes.NewReader(body), int64(len(body)), h.format, h.layout)
	if err != nil {
		return nil, fmt.Errorf("source.HTTP.Load: %w", err)
	}
	return records, nil
}
