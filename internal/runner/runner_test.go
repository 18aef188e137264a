package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fundwatch/internal/scrape"
	"fundwatch/internal/store"
)

type fakeFetcher struct {
	mu      sync.Mutex
	resp    scrape.FetchResponse
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (scrape.FetchResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.resp, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []scrape.ProjectRecord
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, rec scrape.ProjectRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, rec)
	return nil
}

func (n *fakeNotifier) sentIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, len(n.sent))
	for i, rec := range n.sent {
		ids[i] = rec.ID
	}
	return ids
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func listingHTML(blocks ...string) []byte {
	html := `<html><body><div class="startpaginaprojects">`
	for _, b := range blocks {
		html += b
	}
	return []byte(html + `</div></body></html>`)
}

func projectBlock(id, rating, interest string) string {
	return fmt.Sprintf(`<div class="projectInfo">
	  <span id="ProjectNaamLabel_%[1]s">Project %[1]s</span>
	  <span id="ClassificatieLabel_%[1]s">Zakelijke lening</span>
	  <span id="GraydonRatingLabel_%[1]s">%[2]s</span>
	  <span id="RenteLabel_%[1]s">%[3]s</span>
	  <span id="LooptijdLabel_%[1]s">36 maanden</span>
	  <a class="button" href="project.aspx?id=%[1]s">Bekijk</a>
	</div>`, id, rating, interest)
}

func newTestRunner(t *testing.T, fetcher scrape.Fetcher, notifier scrape.Notifier) (*Runner, *store.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "results.json")
	st, err := store.Load(path, zap.NewNop())
	require.NoError(t, err)

	clock := &fakeClock{now: time.Unix(1000, 0).UTC()}
	r := New(
		fetcher,
		scrape.NewExtractor(zap.NewNop()),
		scrape.NewFilter(scrape.FilterConfig{CostOffset: 2.9, MinYield: 2.5}, clock),
		st,
		notifier,
		clock,
		Config{SourceURL: "https://example.test/listing", Interval: time.Minute},
		zap.NewNop(),
	)
	return r, st, path
}

func TestRunOnce_AcceptsStoresAndNotifies(t *testing.T) {
	t.Parallel()

	// Rating AAA, interest 6,50%: 6.50 - 2.9 - 0.15 = 3.45 >= 2.5.
	fetcher := &fakeFetcher{resp: scrape.FetchResponse{
		StatusCode: http.StatusOK,
		Body:       listingHTML(projectBlock("4711", "AAA", "6,50%")),
	}}
	notifier := &fakeNotifier{}
	r, st, path := newTestRunner(t, fetcher, notifier)

	r.RunOnce(context.Background())

	require.True(t, st.Contains("4711"))
	rec := st.Snapshot()["4711"]
	require.InDelta(t, 3.45, rec.AdjustedYield, 1e-9)
	require.Equal(t, []string{"4711"}, notifier.sentIDs())

	reloaded, err := store.Load(path, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
}

func TestRunOnce_IneligibleRatingRejected(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{resp: scrape.FetchResponse{
		StatusCode: http.StatusOK,
		Body:       listingHTML(projectBlock("4711", "CCC", "6,50%")),
	}}
	notifier := &fakeNotifier{}
	r, st, _ := newTestRunner(t, fetcher, notifier)

	r.RunOnce(context.Background())

	require.Equal(t, 0, st.Len())
	require.Empty(t, notifier.sentIDs())
}

func TestRunOnce_KnownIDSkippedBeforeFilter(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{resp: scrape.FetchResponse{
		StatusCode: http.StatusOK,
		Body:       listingHTML(projectBlock("123", "AAA", "6,50%")),
	}}
	notifier := &fakeNotifier{}
	r, st, _ := newTestRunner(t, fetcher, notifier)

	// Pre-seed a record the filter would otherwise accept and re-notify.
	st.Upsert(scrape.ProjectRecord{ID: "123", Title: "Bestaand project"})
	before := st.Snapshot()

	r.RunOnce(context.Background())

	require.Equal(t, before, st.Snapshot())
	require.Empty(t, notifier.sentIDs())
}

func TestRunOnce_RerunProducesNoDuplicates(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{resp: scrape.FetchResponse{
		StatusCode: http.StatusOK,
		Body:       listingHTML(projectBlock("4711", "AAA", "6,50%")),
	}}
	notifier := &fakeNotifier{}
	r, st, _ := newTestRunner(t, fetcher, notifier)

	r.RunOnce(context.Background())
	r.RunOnce(context.Background())

	require.Equal(t, 1, st.Len())
	require.Equal(t, []string{"4711"}, notifier.sentIDs())
}

func TestRunOnce_FetchErrorLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	notifier := &fakeNotifier{}
	r, st, path := newTestRunner(t, fetcher, notifier)

	r.RunOnce(context.Background())

	require.Equal(t, 0, st.Len())
	require.Empty(t, notifier.sentIDs())
	// Persist is never reached, so no file appears.
	_, err := os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRunOnce_NonSuccessStatusAbortsRun(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{resp: scrape.FetchResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       []byte("maintenance"),
	}}
	notifier := &fakeNotifier{}
	r, st, path := newTestRunner(t, fetcher, notifier)

	r.RunOnce(context.Background())

	require.Equal(t, 0, st.Len())
	require.Empty(t, notifier.sentIDs())
	_, err := os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRunOnce_MalformedBlockIsolated(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{resp: scrape.FetchResponse{
		StatusCode: http.StatusOK,
		Body: listingHTML(
			projectBlock("1", "AAA", "n.v.t."),
			projectBlock("2", "AAA", "6,50%"),
		),
	}}
	notifier := &fakeNotifier{}
	r, st, _ := newTestRunner(t, fetcher, notifier)

	r.RunOnce(context.Background())

	// The unparseable block is skipped; the rest of the batch proceeds.
	require.False(t, st.Contains("1"))
	require.True(t, st.Contains("2"))
	require.Equal(t, []string{"2"}, notifier.sentIDs())
}

func TestRunOnce_NotificationFailureDoesNotAffectStore(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{resp: scrape.FetchResponse{
		StatusCode: http.StatusOK,
		Body:       listingHTML(projectBlock("4711", "AAA", "6,50%")),
	}}
	notifier := &fakeNotifier{err: errors.New("smtp unavailable")}
	r, st, path := newTestRunner(t, fetcher, notifier)

	r.RunOnce(context.Background())

	require.True(t, st.Contains("4711"))
	reloaded, err := store.Load(path, zap.NewNop())
	require.NoError(t, err)
	require.True(t, reloaded.Contains("4711"))
}

func TestRunOnce_OverlappingRunIsDropped(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		resp:    scrape.FetchResponse{StatusCode: http.StatusOK, Body: listingHTML()},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	notifier := &fakeNotifier{}
	r, _, _ := newTestRunner(t, fetcher, notifier)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunOnce(context.Background())
	}()
	<-fetcher.started

	// A second call while the first is mid-fetch must not fetch again.
	r.RunOnce(context.Background())
	require.Equal(t, 1, fetcher.callCount())

	close(fetcher.release)
	<-done
	require.Equal(t, 1, fetcher.callCount())
}

func TestStart_RunsEagerlyThenOnTicks(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{resp: scrape.FetchResponse{
		StatusCode: http.StatusOK,
		Body:       listingHTML(),
	}}
	notifier := &fakeNotifier{}
	path := filepath.Join(t.TempDir(), "results.json")
	st, err := store.Load(path, zap.NewNop())
	require.NoError(t, err)

	clock := &fakeClock{now: time.Unix(1000, 0).UTC()}
	r := New(
		fetcher,
		scrape.NewExtractor(zap.NewNop()),
		scrape.NewFilter(scrape.FilterConfig{CostOffset: 2.9, MinYield: 2.5}, clock),
		st,
		notifier,
		clock,
		Config{SourceURL: "https://example.test/listing", Interval: 20 * time.Millisecond},
		zap.NewNop(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	require.Eventually(t, func() bool {
		return fetcher.callCount() >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
}
