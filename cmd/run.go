package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/comic-crawler/internal/config"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run crawler, enrichment workers and API in one process",
		Long: `Runs every stage in a single process connected by an in-memory queue.
Messages still queued at shutdown are lost; they are re-published only if the
issue is crawled again, so use separate crawl and enrich processes in production.`,
		Annotations: map[string]string{queueDriverAnnotation: config.QueueDriverMemory},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			orch, err := buildOrchestrator(cmd.Context(), a)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return orch.Run(ctx) })
			g.Go(func() error { return runEnrichers(ctx, a) })
			g.Go(func() error { return serveHTTP(ctx, a) })
			return g.Wait()
		},
	}
}
