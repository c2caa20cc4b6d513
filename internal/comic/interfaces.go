package comic

import (
	"context"
	"io"
)

// Store persists and retrieves issues.
type Store interface {
	// Insert stores a new issue. A URL that already exists is not an error: created is
	// false and id is zero.
	Insert(ctx context.Context, issue Issue) (id int64, created bool, err error)
	// Update applies the recognized fields of update to the issue with the given id.
	Update(ctx context.Context, id int64, update IssueUpdate) error
	// Latest returns the most recently inserted issue, or nil when the store is empty.
	Latest(ctx context.Context) (*Issue, error)
	// All returns every issue ordered by publication date, newest first.
	All(ctx context.Context) ([]Issue, error)
}

// PageFetcher retrieves HTML documents.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// ImageFetcher retrieves panel images.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Publisher hands enrichment work to the queue.
type Publisher interface {
	Publish(ctx context.Context, msg EnrichmentMessage) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
