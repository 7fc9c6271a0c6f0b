package ingest

// TerminationPolicy decides what happens when the pipeline encounters a
// record that is already stored. The registry serves results newest-first,
// so the default incremental mode stops the whole run on the first known
// record; full-resync mode scans to true exhaustion instead.
type TerminationPolicy interface {
	// Name identifies the policy in logs and run summaries.
	Name() string
	// ContinuePastKnown reports whether the run keeps going after a
	// known record was skipped.
	ContinuePastKnown() bool
}

type stopOnKnown struct{}

func (stopOnKnown) Name() string            { return "stop-on-known" }
func (stopOnKnown) ContinuePastKnown() bool { return false }

// StopOnKnown returns the incremental policy: the first already-known record
// proves everything after it is known too, so the run ends immediately.
func StopOnKnown() TerminationPolicy { return stopOnKnown{} }

type scanAll struct{}

func (scanAll) Name() string            { return "scan-all" }
func (scanAll) ContinuePastKnown() bool { return true }

// ScanAll returns the full-resync policy: known records are skipped but the
// run continues until the registry is exhausted or the page cap is reached.
func ScanAll() TerminationPolicy { return scanAll{} }
