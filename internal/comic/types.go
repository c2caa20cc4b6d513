// Package comic defines core types shared across the crawl and enrichment subsystems.
package comic

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no stored issue matches the requested identity.
	ErrNotFound = errors.New("comic not found")
	// ErrFetch marks transient I/O failures (network errors, timeouts, non-2xx responses).
	ErrFetch = errors.New("fetch failed")
	// ErrNoUpdateFields is returned by a Store when an update sets no fields.
	ErrNoUpdateFields = errors.New("no update fields")
)

// Issue is one published comic entry with metadata and, eventually, extracted panel text.
type Issue struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	PanelURLs       Panels     `json:"panel_urls"`
	Text            *Panels    `json:"text,omitempty"`
	Processed       bool       `json:"processed"`
	AddedAt         time.Time  `json:"date_added"`
}

// IssueUpdate lists the fields the enrichment stage is allowed to change.
// Nil fields are left untouched.
type IssueUpdate struct {
	Text      *Panels
	Processed *bool
}

// Empty reports whether the update sets no fields at all.
func (u IssueUpdate) Empty() bool {
	return u.Text == nil && u.Processed == nil
}

// SearchableText concatenates the extracted panel text in index order, skipping empty panels.
func (i Issue) SearchableText() string {
	if i.Text == nil {
		return ""
	}
	return i.Text.Join(" ")
}
