// Package cursor decides which issue the crawl should ingest next.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/comic-crawler/internal/comic"
)

// ErrMissingURL is returned when the latest stored issue has no URL to navigate from.
var ErrMissingURL = errors.New("latest issue has no url")

// LinkFinder locates the "newer" navigation link in a page.
type LinkFinder interface {
	NextLink(html []byte) (href string, ok bool, err error)
}

// Config holds the resolver's addressing settings.
type Config struct {
	BaseURL       string
	FirstIssueURL string
}

// Resolver walks the archive forward one issue at a time.
type Resolver struct {
	fetcher comic.PageFetcher
	links   LinkFinder
	base    *url.URL
	first   string
	logger  *zap.Logger
}

// New validates cfg and builds a Resolver.
func New(fetcher comic.PageFetcher, links LinkFinder, cfg Config, logger *zap.Logger) (*Resolver, error) {
	if fetcher == nil || links == nil {
		return nil, fmt.Errorf("fetcher and link finder are required")
	}
	if cfg.FirstIssueURL == "" {
		return nil, fmt.Errorf("first issue url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fetcher: fetcher,
		links:   links,
		base:    base,
		first:   cfg.FirstIssueURL,
		logger:  logger,
	}, nil
}

// Next returns the URL of the issue after latest. A nil latest starts at the first
// issue. ok is false when latest has no newer link, meaning the crawl is caught up.
func (r *Resolver) Next(ctx context.Context, latest *comic.Issue) (string, bool, error) {
	if latest == nil {
		r.logger.Info("store is empty, starting from first issue", zap.String("url", r.first))
		return r.first, true, nil
	}
	if latest.URL == "" {
		return "", false, fmt.Errorf("resolve next after comic %d: %w", latest.ID, ErrMissingURL)
	}

	html, err := r.fetcher.FetchPage(ctx, latest.URL)
	if err != nil {
		return "", false, fmt.Errorf("fetch latest page: %w", err)
	}
	href, ok, err := r.links.NextLink(html)
	if err != nil {
		return "", false, fmt.Errorf("find newer link in %s: %w", latest.URL, err)
	}
	if !ok {
		r.logger.Info("no newer link, crawl is caught up", zap.String("url", latest.URL))
		return "", false, nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false, fmt.Errorf("parse newer link %q: %w", href, err)
	}
	next := r.base.ResolveReference(ref).String()
	r.logger.Debug("resolved next issue", zap.String("from", latest.URL), zap.String("next", next))
	return next, true, nil
}
