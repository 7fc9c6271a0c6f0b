package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/benlen10/esrb-tool-v2/internal/ratings"
	"github.com/benlen10/esrb-tool-v2/internal/store"
)

// gameItem renders one registry item block for fixtures.
func gameItem(id int64, title string) string {
	return fmt.Sprintf(
		`<div class="game"><h2><a href="/ratings/%d/%s/">%s</a></h2>`+
			`<div class="platforms">Windows PC</div><img src="/e.svg" alt="Everyone"></div>`,
		id, strings.ToLower(strings.ReplaceAll(title, " ", "-")), title)
}

func resultsPage(items ...string) []byte {
	return []byte("<html><body>" + strings.Join(items, "\n") + "</body></html>")
}

var emptyPage = []byte(`<html><body><p>No more results.</p></body></html>`)

// fakeFetcher serves canned pages in order; pages beyond the fixture are
// empty. failAt triggers a fetch error for that page number.
type fakeFetcher struct {
	pages  [][]byte
	failAt int
	calls  []int
}

func (f *fakeFetcher) FetchPage(_ context.Context, page int) ([]byte, error) {
	f.calls = append(f.calls, page)
	if f.failAt != 0 && page == f.failAt {
		return nil, errors.New("connection refused")
	}
	if page > len(f.pages) {
		return emptyPage, nil
	}
	return f.pages[page-1], nil
}

// memStore is an in-memory RecordStore.
type memStore struct {
	mu        sync.Mutex
	records   map[int64]ratings.Record
	runLogs   [][2]int
	insertErr error
	logErr    error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]ratings.Record)}
}

func (m *memStore) Exists(_ context.Context, gameID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[gameID]
	return ok, nil
}

func (m *memStore) Insert(_ context.Context, rec ratings.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.records[rec.GameID]; ok {
		return store.ErrDuplicateID
	}
	m.records[rec.GameID] = rec
	return nil
}

func (m *memStore) AppendRunLog(_ context.Context, added, skipped int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logErr != nil {
		return m.logErr
	}
	m.runLogs = append(m.runLogs, [2]int{added, skipped})
	return nil
}

func newTestPipeline(f PageFetcher, s store.RecordStore, policy TerminationPolicy, maxPages int) *Pipeline {
	return New(f, s, policy, nil, Config{MaxPages: maxPages, PageDelay: 0}, nil)
}

func TestRunIngestsUntilRegistryExhausted(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: [][]byte{
		resultsPage(gameItem(3, "Gamma"), gameItem(2, "Beta")),
		resultsPage(gameItem(1, "Alpha")),
	}}
	records := newMemStore()

	summary, err := newTestPipeline(fetcher, records, StopOnKnown(), 50).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ratings.RunDone, summary.Outcome)
	require.Equal(t, 3, summary.Added)
	require.Zero(t, summary.Skipped)
	require.Equal(t, []int{1, 2, 3}, fetcher.calls)
	require.Len(t, records.records, 3)
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	pages := [][]byte{
		resultsPage(gameItem(3, "Gamma"), gameItem(2, "Beta")),
		resultsPage(gameItem(1, "Alpha")),
	}
	records := newMemStore()

	first, err := newTestPipeline(&fakeFetcher{pages: pages}, records, StopOnKnown(), 50).
		Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, first.Added)

	second, err := newTestPipeline(&fakeFetcher{pages: pages}, records, StopOnKnown(), 50).
		Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, second.Added)
	require.Equal(t, 1, second.Skipped)
	require.Equal(t, ratings.RunDone, second.Outcome)
}

func TestRunStopsAtFirstKnownRecord(t *testing.T) {
	t.Parallel()

	// Page 2's first item is already stored; page 1 must be processed in
	// full and page 3 never fetched.
	fetcher := &fakeFetcher{pages: [][]byte{
		resultsPage(gameItem(6, "Six"), gameItem(5, "Five")),
		resultsPage(gameItem(4, "Four"), gameItem(3, "Three")),
		resultsPage(gameItem(2, "Two")),
	}}
	records := newMemStore()
	records.records[4] = ratings.Record{GameID: 4, Title: "Four"}

	summary, err := newTestPipeline(fetcher, records, StopOnKnown(), 50).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ratings.RunDone, summary.Outcome)
	require.Equal(t, 2, summary.Added)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, []int{1, 2}, fetcher.calls)
	require.NotContains(t, records.records, int64(3), "items after the known record must not be ingested")
}

func TestRunEndToEndCounts(t *testing.T) {
	t.Parallel()

	// 3 new items on page 1; 2 new then the first known record on page 2.
	fetcher := &fakeFetcher{pages: [][]byte{
		resultsPage(gameItem(10, "Ten"), gameItem(9, "Nine"), gameItem(8, "Eight")),
		resultsPage(gameItem(7, "Seven"), gameItem(6, "Six"), gameItem(5, "Five")),
		resultsPage(gameItem(4, "Four")),
	}}
	records := newMemStore()
	records.records[5] = ratings.Record{GameID: 5, Title: "Five"}

	summary, err := newTestPipeline(fetcher, records, StopOnKnown(), 50).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, summary.Added)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 2, summary.Pages)
	require.Equal(t, []int{1, 2}, fetcher.calls)
	require.Equal(t, [][2]int{{5, 1}}, records.runLogs)
}

func TestRunAbortsOnFetchError(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages:  [][]byte{resultsPage(gameItem(2, "Beta"), gameItem(1, "Alpha"))},
		failAt: 2,
	}
	records := newMemStore()

	summary, err := newTestPipeline(fetcher, records, StopOnKnown(), 50).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, ratings.RunAborted, summary.Outcome)
	require.Equal(t, 2, summary.Added)
	require.Len(t, records.records, 2, "records inserted before the failure stay committed")
	require.Equal(t, [][2]int{{2, 0}}, records.runLogs, "run log is written even for aborted runs")
}

func TestRunWritesRunLogOnZeroProgress(t *testing.T) {
	t.Parallel()

	records := newMemStore()
	summary, err := newTestPipeline(&fakeFetcher{}, records, StopOnKnown(), 50).
		Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ratings.RunDone, summary.Outcome)
	require.Equal(t, [][2]int{{0, 0}}, records.runLogs)
}

func TestRunEnforcesPageCap(t *testing.T) {
	t.Parallel()

	pages := make([][]byte, 10)
	for i := range pages {
		pages[i] = resultsPage(gameItem(int64(1000+i), fmt.Sprintf("Game %d", i)))
	}
	fetcher := &fakeFetcher{pages: pages}
	records := newMemStore()

	summary, err := newTestPipeline(fetcher, records, StopOnKnown(), 3).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ratings.RunDone, summary.Outcome)
	require.Equal(t, 3, summary.Pages)
	require.Equal(t, []int{1, 2, 3}, fetcher.calls)
}

func TestRunScanAllContinuesPastKnownRecords(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: [][]byte{
		resultsPage(gameItem(3, "Gamma"), gameItem(2, "Beta"), gameItem(1, "Alpha")),
	}}
	records := newMemStore()
	records.records[2] = ratings.Record{GameID: 2, Title: "Beta"}

	summary, err := newTestPipeline(fetcher, records, ScanAll(), 50).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ratings.RunDone, summary.Outcome)
	require.Equal(t, 2, summary.Added)
	require.Equal(t, 1, summary.Skipped)
	require.Contains(t, records.records, int64(1), "full resync ingests records past the duplicate")
	require.Equal(t, []int{1, 2}, fetcher.calls)
}

func TestRunPropagatesDuplicateInsertAsDefect(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: [][]byte{resultsPage(gameItem(1, "Alpha"))}}
	records := newMemStore()
	records.insertErr = store.ErrDuplicateID

	summary, err := newTestPipeline(fetcher, records, StopOnKnown(), 50).Run(context.Background())
	require.ErrorIs(t, err, store.ErrDuplicateID)
	require.Equal(t, ratings.RunAborted, summary.Outcome)
}

func TestRunDiscardsUnparseableItemsSilently(t *testing.T) {
	t.Parallel()

	broken := `<div class="game"><h2>No Link Here</h2></div>`
	fetcher := &fakeFetcher{pages: [][]byte{
		resultsPage(broken, gameItem(1, "Alpha")),
	}}
	records := newMemStore()

	summary, err := newTestPipeline(fetcher, records, StopOnKnown(), 50).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Added)
	require.Zero(t, summary.Skipped)
	require.Contains(t, records.records, int64(1))
}

func TestRunSurfacesRunLogFailure(t *testing.T) {
	t.Parallel()

	records := newMemStore()
	records.logErr = errors.New("log table missing")

	_, err := newTestPipeline(&fakeFetcher{}, records, StopOnKnown(), 50).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "append run log")
}
