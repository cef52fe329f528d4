package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/bookwatch/config"
	"github.com/aluiziolira/bookwatch/models"
	"github.com/aluiziolira/bookwatch/scraper"
	"github.com/aluiziolira/bookwatch/store"
	"github.com/aluiziolira/bookwatch/tracker"
)

type jobHarness struct {
	job       *Job
	store     *store.Store
	transport *httpmock.MockTransport
	jsonPath  string
}

func newJobHarness(t *testing.T) *jobHarness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"
	cfg.CataloguePath = "catalogue"
	cfg.Parallelism = 2
	cfg.MaxRetries = 0
	cfg.RetryDelay = time.Millisecond

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "report.json")
	reports := tracker.NewReportWriter(jsonPath, filepath.Join(dir, "report.csv"))

	metrics := scraper.NewMetrics()
	crawler := scraper.NewCrawler(cfg, metrics)
	transport := httpmock.NewMockTransport()
	crawler.Fetcher().SetTransport(transport)

	return &jobHarness{
		job:       NewJob(crawler, tracker.NewDetector(st), reports, metrics),
		store:     st,
		transport: transport,
		jsonPath:  jsonPath,
	}
}

func readReport(t *testing.T, path string) []models.ReportRow {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var rows []models.ReportRow
	require.NoError(t, json.Unmarshal(data, &rows))
	return rows
}

func listingPage(slugs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	for _, slug := range slugs {
		fmt.Fprintf(&b, `<article class="product_pod"><h3><a href="%s/index.html">%s</a></h3></article>`, slug, slug)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func detailPage(title, price string) string {
	return fmt.Sprintf(`<html><body>
<ul class="breadcrumb">
<li><a href="/">Home</a></li>
<li><a href="/books">Books</a></li>
<li><a href="/poetry">Poetry</a></li>
<li class="active">%s</li>
</ul>
<div class="carousel-inner"><img src="../../media/cache/cover.jpg"/></div>
<div class="col-sm-6 product_main">
<h1>%s</h1>
<p class="star-rating Three"></p>
</div>
<div id="product_description"><h2>Product Description</h2></div>
<p>A very fine item indeed.</p>
<table class="table table-striped">
<tr><th>Price (excl. tax)</th><td>£%s</td></tr>
<tr><th>Price (incl. tax)</th><td>£%s</td></tr>
<tr><th>Availability</th><td>In stock (22 available)</td></tr>
<tr><th>Number of reviews</th><td>0</td></tr>
</table>
</body></html>`, title, title, price, price)
}

func (h *jobHarness) serveCatalog(prices map[string]string) {
	h.transport.Reset()
	slugs := make([]string, 0, len(prices))
	for slug := range prices {
		slugs = append(slugs, slug)
	}
	// Stable listing order keeps report rows comparable across runs.
	for i := 0; i < len(slugs); i++ {
		for j := i + 1; j < len(slugs); j++ {
			if slugs[j] < slugs[i] {
				slugs[i], slugs[j] = slugs[j], slugs[i]
			}
		}
	}

	h.transport.RegisterResponder("GET", "http://example.test/catalogue/page-1.html",
		httpmock.NewStringResponder(http.StatusOK, listingPage(slugs...)))
	h.transport.RegisterResponder("GET", "http://example.test/catalogue/page-2.html",
		httpmock.NewStringResponder(http.StatusNotFound, ""))
	for slug, price := range prices {
		h.transport.RegisterResponder("GET",
			fmt.Sprintf("http://example.test/catalogue/%s/index.html", slug),
			httpmock.NewStringResponder(http.StatusOK, detailPage(slug, price)))
	}
}

func TestRunOnceFirstCycleIsAllNew(t *testing.T) {
	h := newJobHarness(t)
	h.serveCatalog(map[string]string{"item-a": "10.00", "item-b": "15.00"})

	summary, err := h.job.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, &models.RunSummary{New: 2}, summary)

	entries, err := h.store.RecentChanges(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, models.EventNewBook, e.Event)
	}
}

func TestRunOnceSecondIdenticalCycleIsAllUnchanged(t *testing.T) {
	h := newJobHarness(t)
	h.serveCatalog(map[string]string{"item-a": "10.00", "item-b": "15.00"})

	_, err := h.job.RunOnce(context.Background())
	require.NoError(t, err)

	summary, err := h.job.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, &models.RunSummary{Unchanged: 2}, summary)

	// Report stays at the first run's two rows.
	rows := readReport(t, h.jsonPath)
	require.Len(t, rows, 2)

	entries, err := h.store.RecentChanges(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRunOnceDetectsPriceChange(t *testing.T) {
	h := newJobHarness(t)
	h.serveCatalog(map[string]string{"item-a": "10.00", "item-b": "15.00"})

	_, err := h.job.RunOnce(context.Background())
	require.NoError(t, err)

	h.serveCatalog(map[string]string{"item-a": "9.00", "item-b": "15.00"})
	summary, err := h.job.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, &models.RunSummary{Updated: 1, Unchanged: 1}, summary)

	rows := readReport(t, h.jsonPath)
	require.Len(t, rows, 3)
	require.Equal(t, "item-a", rows[2].Name)
	require.Equal(t, "updated", rows[2].Status)

	entries, err := h.store.RecentChanges(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, models.EventUpdate, entries[0].Event)
	require.Contains(t, entries[0].Changes, "price_excl_tax")
}

func TestRunOnceCountsFailureShellsAsSkipped(t *testing.T) {
	h := newJobHarness(t)
	h.serveCatalog(map[string]string{"item-a": "10.00"})
	h.transport.RegisterResponder("GET", "http://example.test/catalogue/item-a/index.html",
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	summary, err := h.job.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, &models.RunSummary{Skipped: 1}, summary)

	// Nothing to report, so the artifact is never created.
	rows := readReport(t, h.jsonPath)
	require.Empty(t, rows)
}

func TestWatcherStopEndsStart(t *testing.T) {
	h := newJobHarness(t)
	h.serveCatalog(map[string]string{"item-a": "10.00"})

	w := NewWatcher(h.job, time.Hour)
	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	// The first cycle runs immediately; give it room to finish.
	require.Eventually(t, func() bool {
		rows := readReport(t, h.jsonPath)
		return len(rows) == 1
	}, 5*time.Second, 10*time.Millisecond)

	w.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestWatcherCancelledContext(t *testing.T) {
	h := newJobHarness(t)
	h.serveCatalog(map[string]string{"item-a": "10.00"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWatcher(h.job, time.Hour)
	err := w.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWatcherRestartsAfterContextCancel(t *testing.T) {
	h := newJobHarness(t)
	h.serveCatalog(map[string]string{"item-a": "10.00"})

	w := NewWatcher(h.job, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, w.Start(ctx), context.Canceled)

	// A cancelled exit must not leave the watcher wedged.
	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(readReport(t, h.jsonPath)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	w.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
