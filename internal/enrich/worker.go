// Package enrich turns queued enrichment messages into per-panel OCR text.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/comic-crawler/internal/comic"
	"github.com/JakeFAU/comic-crawler/internal/metrics"
	"github.com/JakeFAU/comic-crawler/internal/ocr"
	"github.com/JakeFAU/comic-crawler/internal/queue"
	"github.com/JakeFAU/comic-crawler/internal/textfilter"
)

// Worker enriches one issue at a time.
type Worker struct {
	images comic.ImageFetcher
	engine ocr.Engine
	store  comic.Store
	logger *zap.Logger
}

// New constructs a Worker.
func New(images comic.ImageFetcher, engine ocr.Engine, store comic.Store, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		images: images,
		engine: engine,
		store:  store,
		logger: logger,
	}
}

// Handle settles a single delivery. Undecodable payloads are dropped, enrichment
// failures go back on the queue.
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) queue.Disposition {
	logger := w.logger.With(
		zap.String("delivery_id", d.ID),
		zap.Bool("redelivered", d.Redelivered),
		zap.Int("attempt", d.Attempt),
	)

	msg, err := comic.DecodeEnrichmentMessage(d.Body)
	if err != nil {
		logger.Error("dropping undecodable message", zap.Error(err), zap.ByteString("body", d.Body))
		metrics.ObserveEnrichment(queue.Ack.String())
		return queue.Ack
	}
	logger = logger.With(zap.Int64("comic_id", msg.ComicID), zap.String("title", msg.Title))
	if d.Redelivered {
		logger.Info("processing redelivered message")
	}

	if err := w.Enrich(ctx, msg); err != nil {
		logger.Error("enrichment failed; requeueing", zap.Error(err))
		metrics.ObserveEnrichment(queue.Requeue.String())
		return queue.Requeue
	}
	logger.Info("comic enriched", zap.Int("num_panels", msg.PanelURLs.Len()))
	metrics.ObserveEnrichment(queue.Ack.String())
	return queue.Ack
}

// Enrich extracts text for every panel and writes it back with processed set.
// A panel that cannot be fetched, decoded or recognized yields an empty string.
func (w *Worker) Enrich(ctx context.Context, msg comic.EnrichmentMessage) error {
	text := make(comic.Panels, msg.PanelURLs.Len())
	for i := 1; i <= msg.PanelURLs.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("enrich comic %d: %w", msg.ComicID, err)
		}
		text[i-1] = w.panelText(ctx, msg.ComicID, i, msg.PanelURLs.At(i))
	}

	processed := true
	if err := w.store.Update(ctx, msg.ComicID, comic.IssueUpdate{Text: &text, Processed: &processed}); err != nil {
		return fmt.Errorf("store text for comic %d: %w", msg.ComicID, err)
	}
	return nil
}

func (w *Worker) panelText(ctx context.Context, comicID int64, index int, url string) string {
	logger := w.logger.With(zap.Int64("comic_id", comicID), zap.String("panel", comic.Key(index)))
	if url == "" {
		metrics.ObservePanel(metrics.PanelSkipped)
		return ""
	}
	logger = logger.With(zap.String("url", url))

	data, err := w.images.FetchImage(ctx, url)
	if err != nil {
		logger.Warn("panel image fetch failed", zap.Error(err))
		metrics.ObservePanel(metrics.PanelFailed)
		return ""
	}
	gray, err := ocr.Grayscale(data)
	if err != nil {
		logger.Warn("panel image decode failed", zap.Error(err))
		metrics.ObservePanel(metrics.PanelFailed)
		return ""
	}
	raw, err := w.engine.Text(ctx, gray)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("ocr interrupted", zap.Error(err))
		} else {
			logger.Warn("ocr failed", zap.Error(err))
		}
		metrics.ObservePanel(metrics.PanelFailed)
		return ""
	}
	metrics.ObservePanel(metrics.PanelRecognized)
	return textfilter.Clean(raw)
}
