package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/bookwatch/config"
)

// ErrCatalogEnd reports that a listing page does not exist. The catalog
// publishes no explicit last-page marker; a 404 on page N+1 is how it
// says page N was the last one.
var ErrCatalogEnd = errors.New("scraper: catalog end")

// ListingWalker turns a page index into the detail links found on that
// listing page.
type ListingWalker struct {
	fetcher *Fetcher
	base    string
}

// NewListingWalker builds a walker rooted at cfg's catalogue path.
func NewListingWalker(cfg *config.Config, fetcher *Fetcher) *ListingWalker {
	base := strings.TrimSuffix(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.CataloguePath, "/")
	return &ListingWalker{fetcher: fetcher, base: base}
}

// PageURL returns the deterministic listing URL for a page index.
func (w *ListingWalker) PageURL(page int) string {
	return fmt.Sprintf("%s/page-%d.html", w.base, page)
}

// ListPage fetches one listing page and returns its detail links in
// document order. A missing page comes back as ErrCatalogEnd; an
// exhausted transient failure comes back as the underlying fetch error
// so the orchestrator can tell the two apart.
func (w *ListingWalker) ListPage(ctx context.Context, page int) ([]string, error) {
	pageURL := w.PageURL(page)
	body, err := w.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrCatalogEnd
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page %d: %w", page, err)
	}

	var links []string
	doc.Find("article.product_pod h3 a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		links = append(links, resolveURL(pageURL, href))
	})
	return links, nil
}

// resolveURL makes href absolute against the page it appeared on.
// Unparseable inputs fall back to the raw href.
func resolveURL(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
