package comic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidMessage marks an enrichment payload that can never be processed.
var ErrInvalidMessage = errors.New("invalid enrichment message")

// EnrichmentMessage is the unit of work handed from the crawl stage to enrichment.
type EnrichmentMessage struct {
	ComicID   int64  `json:"comic_id"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	PanelURLs Panels `json:"panel_urls"`
}

// NewEnrichmentMessage builds the message published for a freshly inserted issue.
func NewEnrichmentMessage(issue Issue) EnrichmentMessage {
	return EnrichmentMessage{
		ComicID:   issue.ID,
		Title:     issue.Title,
		URL:       issue.URL,
		PanelURLs: issue.PanelURLs,
	}
}

type wireMessage struct {
	ComicID   int64           `json:"comic_id"`
	Title     string          `json:"title"`
	URL       string          `json:"url"`
	PanelURLs json.RawMessage `json:"panel_urls"`
}

// DecodeEnrichmentMessage parses a queue payload. panel_urls may arrive either as a
// JSON object or as a JSON string holding the encoded object; the structured form is
// tried first. Every failure wraps ErrInvalidMessage.
func DecodeEnrichmentMessage(body []byte) (EnrichmentMessage, error) {
	var wire wireMessage
	if err := json.Unmarshal(body, &wire); err != nil {
		return EnrichmentMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if wire.ComicID <= 0 {
		return EnrichmentMessage{}, fmt.Errorf("%w: comic_id must be positive, got %d", ErrInvalidMessage, wire.ComicID)
	}
	panels, err := decodePanelField(wire.PanelURLs)
	if err != nil {
		return EnrichmentMessage{}, fmt.Errorf("%w: panel_urls: %v", ErrInvalidMessage, err)
	}
	return EnrichmentMessage{
		ComicID:   wire.ComicID,
		Title:     wire.Title,
		URL:       wire.URL,
		PanelURLs: panels,
	}, nil
}

func decodePanelField(raw json.RawMessage) (Panels, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Panels{}, nil
	}

	var panels Panels
	structErr := json.Unmarshal(trimmed, &panels)
	if structErr == nil {
		return panels, nil
	}

	var encoded string
	if err := json.Unmarshal(trimmed, &encoded); err != nil {
		return nil, structErr
	}
	if err := json.Unmarshal([]byte(encoded), &panels); err != nil {
		return nil, fmt.Errorf("decode encoded string: %w", err)
	}
	return panels, nil
}
