package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/bookwatch/models"
	"github.com/aluiziolira/bookwatch/store"
)

func testDetector(t *testing.T) (*Detector, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewDetector(st), st
}

func scrapedBook(name string) *models.Book {
	b := &models.Book{
		Name:         name,
		Description:  "About " + name,
		Category:     "Poetry",
		PriceExclTax: 10.00,
		PriceInclTax: 12.00,
		Availability: 22,
		NumReviews:   0,
		ImageURL:     "http://example.test/media/" + name + ".jpg",
		Rating:       3.0,
		RawHTML:      "<html>v1</html>",
		Meta: models.Meta{
			FetchedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			Status:    models.StatusSuccess,
			SourceURL: "http://example.test/catalogue/" + name + "/index.html",
		},
	}
	b.Hash = b.ContentHash()
	return b
}

func TestClassifyNewBook(t *testing.T) {
	d, st := testDetector(t)
	ctx := context.Background()

	book := scrapedBook("Item A")
	outcome, err := d.Classify(ctx, book)
	require.NoError(t, err)
	require.Equal(t, models.ClassNew, outcome.Class)
	require.Empty(t, outcome.Changes)

	persisted, err := st.FindByName(ctx, "Item A")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	require.Equal(t, book.Hash, persisted.Hash)

	entries, err := st.RecentChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, models.EventNewBook, entries[0].Event)
	require.Empty(t, entries[0].Changes)
	// No store identifier existed yet, so the entry points at the hash.
	require.Equal(t, book.Hash, entries[0].BookID)
}

func TestClassifyUnchanged(t *testing.T) {
	d, st := testDetector(t)
	ctx := context.Background()

	_, err := d.Classify(ctx, scrapedBook("Item A"))
	require.NoError(t, err)

	// Same content fields, different raw page and fetch time.
	rescrape := scrapedBook("Item A")
	rescrape.RawHTML = "<html>v2 same content</html>"
	rescrape.Meta.FetchedAt = rescrape.Meta.FetchedAt.Add(24 * time.Hour)
	rescrape.Hash = rescrape.ContentHash()

	outcome, err := d.Classify(ctx, rescrape)
	require.NoError(t, err)
	require.Equal(t, models.ClassUnchanged, outcome.Class)

	entries, err := st.RecentChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1, "unchanged must not grow the changelog")
}

func TestClassifyUpdated(t *testing.T) {
	d, st := testDetector(t)
	ctx := context.Background()

	_, err := d.Classify(ctx, scrapedBook("Item A"))
	require.NoError(t, err)
	before, err := st.FindByName(ctx, "Item A")
	require.NoError(t, err)

	changed := scrapedBook("Item A")
	changed.PriceExclTax = 9.00
	changed.Hash = changed.ContentHash()

	outcome, err := d.Classify(ctx, changed)
	require.NoError(t, err)
	require.Equal(t, models.ClassUpdated, outcome.Class)
	require.Len(t, outcome.Changes, 1)
	require.Equal(t, 10.00, outcome.Changes["price_excl_tax"].Old)
	require.Equal(t, 9.00, outcome.Changes["price_excl_tax"].New)

	after, err := st.FindByName(ctx, "Item A")
	require.NoError(t, err)
	require.Equal(t, before.ID, after.ID, "update must preserve the identifier")
	require.Equal(t, changed.Hash, after.Hash)
	require.Equal(t, 9.00, after.PriceExclTax)

	entries, err := st.RecentChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, models.EventUpdate, entries[0].Event)
	require.Equal(t, before.ID, entries[0].BookID)
}

func TestDiffCompleteness(t *testing.T) {
	d, _ := testDetector(t)
	ctx := context.Background()

	_, err := d.Classify(ctx, scrapedBook("Item A"))
	require.NoError(t, err)

	changed := scrapedBook("Item A")
	changed.PriceExclTax = 9.00
	changed.Rating = 5.0
	changed.Description = "Rewritten blurb"
	changed.RawHTML = "<html>different page</html>"
	changed.Hash = changed.ContentHash()

	outcome, err := d.Classify(ctx, changed)
	require.NoError(t, err)
	require.Equal(t, models.ClassUpdated, outcome.Class)

	// Every listed field actually moved, and every moved content field
	// is listed. raw_html is not content and must never appear.
	require.Len(t, outcome.Changes, 3)
	for field, change := range outcome.Changes {
		require.NotEqual(t, change.Old, change.New, "field %s listed without a change", field)
	}
	require.Contains(t, outcome.Changes, "price_excl_tax")
	require.Contains(t, outcome.Changes, "rating")
	require.Contains(t, outcome.Changes, "description")
	require.NotContains(t, outcome.Changes, "raw_html")
}

func TestIdempotence(t *testing.T) {
	d, st := testDetector(t)
	ctx := context.Background()

	batch := []*models.Book{
		scrapedBook("Item A"),
		scrapedBook("Item B"),
		scrapedBook("Item C"),
	}

	for _, book := range batch {
		outcome, err := d.Classify(ctx, book)
		require.NoError(t, err)
		require.Equal(t, models.ClassNew, outcome.Class)
	}

	for _, book := range batch {
		outcome, err := d.Classify(ctx, book)
		require.NoError(t, err)
		require.Equal(t, models.ClassUnchanged, outcome.Class)
	}

	entries, err := st.RecentChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3, "second pass must produce zero changelog entries")
}

func TestClassifySkipsNamelessShells(t *testing.T) {
	d, st := testDetector(t)
	ctx := context.Background()

	shell := models.FailureShell("http://example.test/catalogue/broken/index.html", time.Now())
	outcome, err := d.Classify(ctx, shell)
	require.NoError(t, err)
	require.Equal(t, models.ClassSkipped, outcome.Class)

	entries, err := st.RecentChanges(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}
