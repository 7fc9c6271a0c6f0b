package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benlen10/esrb-tool-v2/internal/fetcher"
	"github.com/benlen10/esrb-tool-v2/internal/ingest"
)

// newScrapeCmd creates the 'scrape' subcommand, which runs the ingestion
// pipeline once and exits.
func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs one incremental scrape of the ratings registry",
		Long: `Fetches the latest-ratings search pages from the registry in order,
inserting new rating records and stopping at the first already-known one.
With scraper.full_resync enabled, known records are skipped instead and
the scan continues to exhaustion.`,

		RunE: runScrapeCommand,
	}
	return cmd
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.cfg
	logger := appInstance.logger

	pageClient := fetcher.New(fetcher.Config{
		BaseURL:   cfg.Scraper.BaseURL,
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	var archive ingest.PageArchive
	if cfg.Scraper.ArchiveDir != "" {
		fsArchive, err := ingest.NewFileSystemArchive(cfg.Scraper.ArchiveDir, logger)
		if err != nil {
			return fmt.Errorf("init page archive: %w", err)
		}
		archive = fsArchive
	}

	policy := ingest.StopOnKnown()
	if cfg.Scraper.FullResync {
		policy = ingest.ScanAll()
	}

	pipeline := ingest.New(
		pageClient,
		appInstance.store,
		policy,
		archive,
		ingest.Config{
			MaxPages:  cfg.Scraper.MaxPages,
			PageDelay: cfg.PageDelay(),
		},
		logger.Named("ingest"),
	)

	summary, err := pipeline.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("scrape run (%d added, %d skipped before failure): %w",
			summary.Added, summary.Skipped, err)
	}
	logger.Info("scrape complete",
		zap.Int("new_games", summary.Added),
		zap.Int("skipped_games", summary.Skipped))
	return nil
}
