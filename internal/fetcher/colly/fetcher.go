// Package collyfetcher retrieves comic pages and panel images using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/comic-crawler/internal/comic"
)

const (
	defaultPageTimeout  = 15 * time.Second
	defaultImageTimeout = 30 * time.Second

	pageAccept  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	imageAccept = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
)

// Waiter delays a request until its host may be contacted.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior. Limiter is optional.
type Config struct {
	UserAgent    string
	PageTimeout  time.Duration
	ImageTimeout time.Duration
	MaxBodyBytes int
	Limiter      Waiter
}

// ErrBodyTooLarge marks a response that reached the configured body limit. colly
// truncates such bodies, so they are rejected rather than handed on partially.
var ErrBodyTooLarge = errors.New("response body reached size limit")

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Unwrap lets callers match any status failure with errors.Is(err, comic.ErrFetch).
func (e *StatusError) Unwrap() error {
	return comic.ErrFetch
}

// Fetcher implements comic.PageFetcher and comic.ImageFetcher. Pages and images use
// separate base collectors because a timeout is bound to the collector's HTTP client.
type Fetcher struct {
	pages   *colly.Collector
	image   *colly.Collector
	limiter Waiter
	maxBody int
}

var (
	_ comic.PageFetcher  = (*Fetcher)(nil)
	_ comic.ImageFetcher = (*Fetcher)(nil)
)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = defaultPageTimeout
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = defaultImageTimeout
	}
	return &Fetcher{
		pages:   newCollector(cfg, cfg.PageTimeout),
		image:   newCollector(cfg, cfg.ImageTimeout),
		limiter: cfg.Limiter,
		maxBody: cfg.MaxBodyBytes,
	}
}

func newCollector(cfg Config, timeout time.Duration) *colly.Collector {
	// The cursor refetches the latest page every cycle, so revisits are expected.
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(timeout)
	return c
}

// FetchPage downloads an HTML document.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	return f.fetch(ctx, f.pages, url, pageAccept)
}

// FetchImage downloads a panel image.
func (f *Fetcher) FetchImage(ctx context.Context, url string) ([]byte, error) {
	return f.fetch(ctx, f.image, url, imageAccept)
}

func (f *Fetcher) fetch(ctx context.Context, base *colly.Collector, url, accept string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
	}
	var result fetchResult
	collector := base.Clone()
	configureCollectorHooks(collector, accept, &result)
	if err := runCollector(ctx, collector, url, &result); err != nil {
		return nil, err
	}
	if result.status < 200 || result.status > 299 {
		return nil, &StatusError{URL: url, StatusCode: result.status}
	}
	if f.maxBody > 0 && len(result.body) >= f.maxBody {
		return nil, fmt.Errorf("fetch %s: %w: %w (%d bytes)", url, comic.ErrFetch, ErrBodyTooLarge, f.maxBody)
	}
	return result.body, nil
}

func configureCollectorHooks(hooks collectorHooks, accept string, result *fetchResult) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", accept)
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, result *fetchResult) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch %s canceled: %w", url, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("fetch %s: %w: %w", url, comic.ErrFetch, err)
		}
		if result.err != nil {
			return fmt.Errorf("fetch %s: %w: %w", url, comic.ErrFetch, result.err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
