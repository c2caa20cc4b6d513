package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/comic-crawler/internal/app"
	"github.com/JakeFAU/comic-crawler/internal/enrich"
	"github.com/JakeFAU/comic-crawler/internal/ocr"
)

func newEnrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich",
		Short: "Consume enrichment messages and OCR comic panels",
		Long: `Starts enrich.workers consumers. Each holds at most one unacknowledged
message and writes the recognized panel text back to the store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runEnrichers(cmd.Context(), a)
		},
	}
}

func runEnrichers(ctx context.Context, a *app.App) error {
	cfg := a.Config()
	logger := a.Logger().Named("enrich")

	store, err := a.Store(ctx)
	if err != nil {
		return err
	}
	worker := enrich.New(a.Fetcher(), ocr.NewTesseract(cfg.Enrich.OCRLanguage), store, logger)

	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.Enrich.Workers {
		consumer, err := a.Consumer(ctx)
		if err != nil {
			return fmt.Errorf("open consumer %d: %w", i, err)
		}
		g.Go(func() error {
			logger.Info("enrichment consumer started", zap.Int("index", i))
			if err := consumer.Consume(gctx, worker.Handle); err != nil {
				return fmt.Errorf("consumer %d: %w", i, err)
			}
			logger.Info("enrichment consumer stopped", zap.Int("index", i))
			return nil
		})
	}
	return g.Wait()
}
