// Package ingest implements the incremental scrape-and-deduplicate
// pipeline that fills the rating store from the registry.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/benlen10/esrb-tool-v2/internal/metrics"
	"github.com/benlen10/esrb-tool-v2/internal/ratings"
	"github.com/benlen10/esrb-tool-v2/internal/store"
)

// PageFetcher retrieves one search-results page from the registry.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) ([]byte, error)
}

// PageArchive persists raw page snapshots. Optional; archiving failures
// never affect the run.
type PageArchive interface {
	SavePage(page int, body []byte) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config controls pipeline behavior.
type Config struct {
	// MaxPages is the hard safety cap on page count.
	MaxPages int
	// PageDelay is the politeness delay between fully-consumed pages.
	PageDelay time.Duration
}

// Pipeline orchestrates fetch, parse, dedupe, and insert across successive
// registry pages. It holds every collaborator explicitly; there is no
// package-level state.
type Pipeline struct {
	fetcher PageFetcher
	records store.RecordStore
	policy  TerminationPolicy
	archive PageArchive
	clock   Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Pipeline. The archive may be nil.
func New(
	fetcher PageFetcher,
	records store.RecordStore,
	policy TerminationPolicy,
	archive PageArchive,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if policy == nil {
		policy = StopOnKnown()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher: fetcher,
		records: records,
		policy:  policy,
		archive: archive,
		clock:   systemClock{},
		cfg:     cfg,
		logger:  logger,
	}
}

// WithClock swaps the time source; used by tests.
func (p *Pipeline) WithClock(clock Clock) *Pipeline {
	p.clock = clock
	return p
}

// Run executes one scrape run. Exactly one run-log entry is written with
// the cumulative counters on every exit path, including zero-progress and
// aborted runs.
func (p *Pipeline) Run(ctx context.Context) (ratings.RunSummary, error) {
	start := p.clock.Now()
	summary, runErr := p.scan(ctx)

	metrics.ObserveRunFinished(string(summary.Outcome))
	if logErr := p.records.AppendRunLog(ctx, summary.Added, summary.Skipped); logErr != nil {
		runErr = errors.Join(runErr, fmt.Errorf("append run log: %w", logErr))
	}

	p.logger.Info("scrape run finished",
		zap.String("outcome", string(summary.Outcome)),
		zap.String("policy", p.policy.Name()),
		zap.Int("added", summary.Added),
		zap.Int("skipped", summary.Skipped),
		zap.Int("pages", summary.Pages),
		zap.Duration("elapsed", p.clock.Now().Sub(start)),
	)
	return summary, runErr
}

// scan drives the per-page loop and returns the accumulated counters.
func (p *Pipeline) scan(ctx context.Context) (ratings.RunSummary, error) {
	summary := ratings.RunSummary{Outcome: ratings.RunDone}

	for page := 1; page <= p.cfg.MaxPages; page++ {
		body, err := p.fetcher.FetchPage(ctx, page)
		if err != nil {
			// No retry and no partial-page salvage: the run ends here,
			// keeping everything inserted so far.
			summary.Outcome = ratings.RunAborted
			p.logger.Warn("page fetch failed, aborting run",
				zap.Int("page", page), zap.Error(err))
			return summary, err
		}
		summary.Pages++
		metrics.ObservePageFetched()
		p.archivePage(page, body)

		items, discarded, err := ratings.ParseItems(body)
		if err != nil {
			summary.Outcome = ratings.RunAborted
			return summary, fmt.Errorf("parse page %d: %w", page, err)
		}
		if discarded > 0 {
			for i := 0; i < discarded; i++ {
				metrics.ObserveItemDiscarded()
			}
			p.logger.Debug("discarded unparseable items",
				zap.Int("page", page), zap.Int("count", discarded))
		}
		if len(items) == 0 && discarded == 0 {
			p.logger.Info("registry exhausted", zap.Int("page", page))
			return summary, nil
		}

		stop, err := p.ingestItems(ctx, page, items, &summary)
		if err != nil {
			summary.Outcome = ratings.RunAborted
			return summary, err
		}
		if stop {
			return summary, nil
		}

		if page < p.cfg.MaxPages && p.cfg.PageDelay > 0 {
			if err := sleep(ctx, p.cfg.PageDelay); err != nil {
				summary.Outcome = ratings.RunAborted
				return summary, err
			}
		}
	}

	p.logger.Warn("page cap reached", zap.Int("max_pages", p.cfg.MaxPages))
	return summary, nil
}

// ingestItems walks one page's records in document order. It returns true
// when the termination policy ends the run on a known record.
func (p *Pipeline) ingestItems(
	ctx context.Context,
	page int,
	items []ratings.Record,
	summary *ratings.RunSummary,
) (bool, error) {
	for _, rec := range items {
		exists, err := p.records.Exists(ctx, rec.GameID)
		if err != nil {
			return false, fmt.Errorf("dedupe check game %d: %w", rec.GameID, err)
		}
		if exists {
			summary.Skipped++
			metrics.ObserveRecordSkipped()
			if !p.policy.ContinuePastKnown() {
				p.logger.Info("known record reached, stopping run",
					zap.Int64("game_id", rec.GameID),
					zap.String("title", rec.Title),
					zap.Int("page", page))
				return true, nil
			}
			continue
		}

		// Exists returned false just above, so a duplicate-id error here
		// is a store-level race and must surface as a defect.
		if err := p.records.Insert(ctx, rec); err != nil {
			return false, fmt.Errorf("insert game %d: %w", rec.GameID, err)
		}
		summary.Added++
		metrics.ObserveRecordAdded()
		p.logger.Debug("record added",
			zap.Int64("game_id", rec.GameID),
			zap.String("title", rec.Title),
			zap.String("platform", rec.Platform),
			zap.String("rating", rec.Rating))
	}
	return false, nil
}

func (p *Pipeline) archivePage(page int, body []byte) {
	if p.archive == nil {
		return
	}
	if _, err := p.archive.SavePage(page, body); err != nil {
		p.logger.Warn("page snapshot failed", zap.Int("page", page), zap.Error(err))
	}
}

// sleep waits for d or until ctx is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("run canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
