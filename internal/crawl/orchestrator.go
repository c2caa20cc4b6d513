// Package crawl drives the ingestion cycle: resolve the next issue, fetch it, extract
// its metadata, store it and hand it to enrichment.
package crawl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/comic-crawler/internal/comic"
	"github.com/JakeFAU/comic-crawler/internal/metrics"
)

const (
	defaultBatchLimit = 2
	defaultInterval   = 600 * time.Second
)

// ErrCycleRunning is returned when RunCycle is called while another cycle is active.
var ErrCycleRunning = errors.New("crawl cycle already running")

// State is the orchestrator's lifecycle state.
type State int32

const (
	// Idle means no cycle is in progress.
	Idle State = iota
	// Running means a cycle is draining new issues.
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Cursor picks the URL to ingest after the latest stored issue.
type Cursor interface {
	Next(ctx context.Context, latest *comic.Issue) (string, bool, error)
}

// Extractor parses an issue page.
type Extractor interface {
	Extract(html []byte, url string) (comic.Issue, error)
}

// Clock abstracts time for reports.
type Clock interface {
	Now() time.Time
}

// IDGenerator names cycles in logs and reports.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls cycle pacing and size.
type Config struct {
	BatchLimit    int
	Interval      time.Duration
	ArchivePrefix string
}

// Deps groups the collaborators of an Orchestrator. Archive is optional.
type Deps struct {
	Store     comic.Store
	Cursor    Cursor
	Pages     comic.PageFetcher
	Extractor Extractor
	Publisher comic.Publisher
	Archive   comic.BlobStore
	Clock     Clock
	IDs       IDGenerator
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	IssueIDs   []int64
	CaughtUp   bool
	Duplicate  bool
}

// Ingested is the number of new issues stored and published.
func (r CycleReport) Ingested() int {
	return len(r.IssueIDs)
}

// Orchestrator runs crawl cycles one at a time.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	state  atomic.Int32
	logger *zap.Logger
}

// New validates deps and builds an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Store == nil || deps.Cursor == nil || deps.Pages == nil || deps.Extractor == nil || deps.Publisher == nil {
		return nil, fmt.Errorf("store, cursor, pages, extractor and publisher are required")
	}
	if deps.Clock == nil || deps.IDs == nil {
		return nil, fmt.Errorf("clock and id generator are required")
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultBatchLimit
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger}, nil
}

// State reports whether a cycle is in progress.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Run executes a cycle immediately and then one every interval until ctx is done.
// Cycle failures are logged and never stop the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("crawler started",
		zap.Int("batch_limit", o.cfg.BatchLimit),
		zap.Duration("interval", o.cfg.Interval),
	)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("crawler stopped")
			return nil
		case <-timer.C:
		}
		if _, err := o.RunCycle(ctx); err != nil && ctx.Err() == nil {
			o.logger.Error("crawl cycle aborted", zap.Error(err))
		}
		timer.Reset(o.cfg.Interval)
	}
}

// RunCycle ingests up to the batch limit of new issues. It stops early when the
// archive is caught up or when the next issue is already stored.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	if !o.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return CycleReport{}, ErrCycleRunning
	}
	metrics.SetCrawlerRunning(true)
	defer func() {
		o.state.Store(int32(Idle))
		metrics.SetCrawlerRunning(false)
	}()

	id, err := o.deps.IDs.NewID()
	if err != nil {
		metrics.ObserveCycle(metrics.CycleFailed)
		return CycleReport{}, fmt.Errorf("new cycle id: %w", err)
	}
	report := CycleReport{ID: id, StartedAt: o.deps.Clock.Now()}
	logger := o.logger.With(zap.String("cycle_id", id))
	logger.Info("crawl cycle started")

	for report.Ingested() < o.cfg.BatchLimit {
		issueID, done, err := o.step(ctx, logger, &report)
		if err != nil {
			report.FinishedAt = o.deps.Clock.Now()
			metrics.ObserveCycle(metrics.CycleFailed)
			return report, fmt.Errorf("cycle %s: %w", id, err)
		}
		if done {
			break
		}
		report.IssueIDs = append(report.IssueIDs, issueID)
	}

	report.FinishedAt = o.deps.Clock.Now()
	outcome := metrics.CycleCompleted
	if report.CaughtUp {
		outcome = metrics.CycleCaughtUp
	}
	metrics.ObserveCycle(outcome)
	logger.Info("crawl cycle finished",
		zap.Int("ingested", report.Ingested()),
		zap.Bool("caught_up", report.CaughtUp),
		zap.Bool("duplicate", report.Duplicate),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// step ingests a single issue. done is true when the cycle should end without error.
func (o *Orchestrator) step(ctx context.Context, logger *zap.Logger, report *CycleReport) (int64, bool, error) {
	latest, err := o.deps.Store.Latest(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("load latest issue: %w", err)
	}
	next, ok, err := o.deps.Cursor.Next(ctx, latest)
	if err != nil {
		return 0, false, fmt.Errorf("resolve next issue: %w", err)
	}
	if !ok {
		logger.Info("no newer issue; caught up")
		report.CaughtUp = true
		return 0, true, nil
	}
	logger = logger.With(zap.String("url", next))

	html, err := o.deps.Pages.FetchPage(ctx, next)
	if err != nil {
		return 0, false, fmt.Errorf("fetch issue page: %w", err)
	}
	issue, err := o.deps.Extractor.Extract(html, next)
	if err != nil {
		return 0, false, fmt.Errorf("extract %s: %w", next, err)
	}

	id, created, err := o.deps.Store.Insert(ctx, issue)
	if err != nil {
		metrics.ObserveIssue(metrics.IssueFailed)
		return 0, false, fmt.Errorf("insert %s: %w", next, err)
	}
	if !created {
		// The cursor would resolve to the same URL again.
		metrics.ObserveIssue(metrics.IssueDuplicate)
		logger.Warn("issue already stored; ending cycle")
		report.Duplicate = true
		return 0, true, nil
	}
	metrics.ObserveIssue(metrics.IssueCreated)
	issue.ID = id
	logger = logger.With(zap.Int64("comic_id", id))
	logger.Info("issue stored", zap.String("title", issue.Title), zap.Int("num_panels", issue.PanelURLs.Len()))

	if err := o.deps.Publisher.Publish(ctx, comic.NewEnrichmentMessage(issue)); err != nil {
		return 0, false, fmt.Errorf("publish comic %d: %w", id, err)
	}
	o.archive(ctx, logger, id, html)
	return id, false, nil
}

func (o *Orchestrator) archive(ctx context.Context, logger *zap.Logger, id int64, html []byte) {
	if o.deps.Archive == nil {
		return
	}
	name := strconv.FormatInt(id, 10) + ".html"
	if prefix := strings.Trim(o.cfg.ArchivePrefix, "/"); prefix != "" {
		name = path.Join(prefix, name)
	}
	uri, err := o.deps.Archive.PutObject(ctx, name, "text/html; charset=utf-8", bytes.NewReader(html))
	if err != nil {
		logger.Warn("archive page failed", zap.String("path", name), zap.Error(err))
		return
	}
	logger.Debug("page archived", zap.String("uri", uri))
}
