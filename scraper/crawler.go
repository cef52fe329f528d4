// Package scraper implements the crawl side of the pipeline: resilient
// fetching, listing traversal, detail extraction, and the page-by-page
// orchestration that ties them together.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/bookwatch/config"
	"github.com/aluiziolira/bookwatch/models"
)

// dedupeCacheSize bounds the per-run seen-URL cache. The demo catalog
// is three orders of magnitude smaller, so evictions never happen in
// practice.
const dedupeCacheSize = 1 << 16

// Crawler walks the catalog page by page and fans detail extraction out
// over a bounded worker pool.
type Crawler struct {
	cfg       *config.Config
	fetcher   *Fetcher
	walker    *ListingWalker
	extractor *DetailExtractor
	metrics   *Metrics
}

// NewCrawler wires a crawler and its private fetcher from cfg.
func NewCrawler(cfg *config.Config, metrics *Metrics) *Crawler {
	fetcher := NewFetcher(cfg, metrics)
	return &Crawler{
		cfg:       cfg,
		fetcher:   fetcher,
		walker:    NewListingWalker(cfg, fetcher),
		extractor: NewDetailExtractor(fetcher, metrics),
		metrics:   metrics,
	}
}

// Fetcher exposes the underlying fetcher so tests can swap transports.
func (c *Crawler) Fetcher() *Fetcher {
	return c.fetcher
}

// Run crawls the catalog from page 1 until it is exhausted and returns
// every record, failure shells included. Pages are strictly sequential;
// within a page, results land in completion order. The returned error
// is non-nil only when the context was cancelled.
func (c *Crawler) Run(ctx context.Context) ([]*models.Book, error) {
	seen, err := lru.New[string, struct{}](dedupeCacheSize)
	if err != nil {
		return nil, err
	}

	var books []*models.Book
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return books, err
		}
		if c.cfg.MaxPages > 0 && page > c.cfg.MaxPages {
			slog.Info("page limit reached", slog.Int("pages", page-1))
			break
		}

		links, err := c.walker.ListPage(ctx, page)
		if errors.Is(err, ErrCatalogEnd) {
			slog.Info("catalog exhausted", slog.Int("pages", page-1))
			break
		}
		if err != nil {
			// A retried-and-exhausted transient failure. The run ends
			// degraded instead of pretending the catalog finished.
			slog.Warn("listing unavailable, ending run early",
				slog.Int("page", page),
				slog.Any("error", err),
			)
			break
		}
		if len(links) == 0 {
			slog.Info("empty listing page, stopping", slog.Int("page", page))
			break
		}

		c.metrics.IncPages()
		books = append(books, c.fanOut(ctx, dedupe(seen, links))...)
	}
	return books, nil
}

// fanOut extracts every link concurrently, bounded by cfg.Parallelism
// rather than by however many items the page happens to hold.
func (c *Crawler) fanOut(ctx context.Context, links []string) []*models.Book {
	results := make([]*models.Book, 0, len(links))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, c.cfg.Parallelism)
	)
	for _, link := range links {
		wg.Add(1)
		sem <- struct{}{}
		go func(link string) {
			defer wg.Done()
			defer func() { <-sem }()

			book := c.extractor.ExtractDetail(ctx, link)
			mu.Lock()
			results = append(results, book)
			mu.Unlock()
		}(link)
	}
	wg.Wait()
	return results
}

// dedupe drops links already visited in this run. Listing pages
// occasionally repeat an item; refetching it would double-classify the
// same record downstream.
func dedupe(seen *lru.Cache[string, struct{}], links []string) []string {
	fresh := links[:0]
	for _, link := range links {
		if _, ok := seen.Get(link); ok {
			continue
		}
		seen.Add(link, struct{}{})
		fresh = append(fresh, link)
	}
	return fresh
}
