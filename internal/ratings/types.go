// Package ratings defines core types shared across subsystems and the
// parser that turns registry markup into rating records.
package ratings

import "time"

// Record is one game's content-rating entry as stored.
type Record struct {
	GameID      int64     `json:"game_id"`
	Title       string    `json:"game_title"`
	Platform    string    `json:"platform"`
	Rating      string    `json:"rating"`
	Descriptors string    `json:"descriptors"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunOutcome describes how a scrape run ended.
type RunOutcome string

// Run outcome values written to the run log and reported by the CLI.
const (
	// RunDone means the run finished normally: the registry was exhausted,
	// a known record ended the incremental scan, or the page cap was hit.
	RunDone RunOutcome = "done"
	// RunAborted means a page fetch failed mid-run. Records inserted before
	// the failure remain committed.
	RunAborted RunOutcome = "aborted"
)

// RunSummary is the cumulative result of one scrape run.
type RunSummary struct {
	Added   int        `json:"games_added"`
	Skipped int        `json:"games_skipped"`
	Pages   int        `json:"pages_fetched"`
	Outcome RunOutcome `json:"outcome"`
}
