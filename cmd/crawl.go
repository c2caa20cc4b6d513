package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-crawler/internal/app"
	"github.com/JakeFAU/comic-crawler/internal/clock/system"
	"github.com/JakeFAU/comic-crawler/internal/crawl"
	"github.com/JakeFAU/comic-crawler/internal/cursor"
	"github.com/JakeFAU/comic-crawler/internal/extract"
	"github.com/JakeFAU/comic-crawler/internal/id/uuid"
)

func newCrawlCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Ingest new issues and publish them for enrichment",
		Long: `Runs a crawl cycle immediately and then one every crawl.interval_seconds.
Each cycle ingests at most crawl.batch_limit new issues.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			orch, err := buildOrchestrator(cmd.Context(), a)
			if err != nil {
				return err
			}
			if once {
				report, err := orch.RunCycle(cmd.Context())
				if err != nil {
					return fmt.Errorf("crawl cycle: %w", err)
				}
				a.Logger().Info("single cycle finished", zap.Int("ingested", report.Ingested()))
				return nil
			}
			return orch.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}

func buildOrchestrator(ctx context.Context, a *app.App) (*crawl.Orchestrator, error) {
	cfg := a.Config()
	logger := a.Logger()

	store, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.Publisher(ctx)
	if err != nil {
		return nil, err
	}
	archive, err := a.Archive(ctx)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}

	fetcher := a.Fetcher()
	extractor := extract.New(logger.Named("extract"))
	resolver, err := cursor.New(fetcher, extractor, cursor.Config{
		BaseURL:       cfg.Crawl.BaseURL,
		FirstIssueURL: cfg.Crawl.FirstIssueURL,
	}, logger.Named("cursor"))
	if err != nil {
		return nil, fmt.Errorf("init cursor: %w", err)
	}

	orch, err := crawl.New(crawl.Deps{
		Store:     store,
		Cursor:    resolver,
		Pages:     fetcher,
		Extractor: extractor,
		Publisher: publisher,
		Archive:   archive,
		Clock:     system.New(),
		IDs:       uuid.New(),
	}, crawl.Config{
		BatchLimit:    cfg.Crawl.BatchLimit,
		Interval:      cfg.CrawlInterval(),
		ArchivePrefix: cfg.Archive.Prefix,
	}, logger.Named("crawl"))
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}
	return orch, nil
}
