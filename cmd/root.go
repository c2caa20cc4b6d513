// Package cmd defines the comic-crawler CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-crawler/internal/app"
	"github.com/JakeFAU/comic-crawler/internal/config"
	"github.com/JakeFAU/comic-crawler/internal/logging"
	"github.com/JakeFAU/comic-crawler/internal/metrics"
)

// queueDriverAnnotation pins a command to a queue driver regardless of configuration.
const queueDriverAnnotation = "comics/queue-driver"

type appKeyType string

const appKey appKeyType = "app"

// newApp builds the service container. It is a variable so tests can swap it.
var newApp = func(cfg config.Config, logger *zap.Logger) *app.App {
	return app.New(cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "comic-crawler",
		Short: "Incrementally crawls Penny Arcade and extracts panel text with OCR.",
		Long: `comic-crawler walks the Penny Arcade archive forward one issue at a time,
stores each issue's metadata and hands its panels to OCR workers over a queue.
The serve command exposes the stored text as a search feed.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if driver, ok := cmd.Annotations[queueDriverAnnotation]; ok {
				cfg.Queue.Driver = driver
			}
			logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			metrics.Init()

			a := newApp(cfg, logger)
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (yaml, toml or json)")

	cmd.AddCommand(
		newCrawlCmd(),
		newEnrichCmd(),
		newServeCmd(),
		newRunCmd(),
		newMigrateCmd(),
	)
	return cmd
}

// Execute runs the CLI until it finishes or the process receives SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := executeRoot(ctx, newRootCmd()); err != nil {
		fmt.Fprintf(os.Stderr, "comic-crawler: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// executeRoot runs root and closes the services built for the executed command.
// Post-run hooks are skipped when RunE fails, so the close happens here instead.
func executeRoot(ctx context.Context, root *cobra.Command) error {
	executed, err := root.ExecuteContextC(ctx)
	if executed != nil && executed.Context() != nil {
		if a, ok := executed.Context().Value(appKey).(*app.App); ok && a != nil {
			a.Close()
			_ = a.Logger().Sync()
		}
	}
	return err
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}
