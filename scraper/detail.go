package scraper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/bookwatch/models"
	"github.com/aluiziolira/bookwatch/parser"
)

// Table row labels on the product page.
const (
	labelPriceExclTax = "Price (excl. tax)"
	labelPriceInclTax = "Price (incl. tax)"
	labelAvailability = "Availability"
	labelNumReviews   = "Number of reviews"
)

// DetailExtractor parses one product page into a Book.
type DetailExtractor struct {
	fetcher *Fetcher
	metrics *Metrics
}

// NewDetailExtractor builds an extractor on top of fetcher.
func NewDetailExtractor(fetcher *Fetcher, metrics *Metrics) *DetailExtractor {
	return &DetailExtractor{fetcher: fetcher, metrics: metrics}
}

// ExtractDetail fetches and parses one detail page. It never fails
// outward: fetch and parse failures both yield a failure shell so the
// crawl output keeps one slot per discovered link.
func (e *DetailExtractor) ExtractDetail(ctx context.Context, pageURL string) *models.Book {
	fetchedAt := time.Now().UTC()

	body, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return models.FailureShell(pageURL, fetchedAt)
	}

	book, err := e.parse(body, pageURL)
	if err != nil {
		e.metrics.IncError("parse")
		slog.Warn("detail parse failed",
			slog.String("url", pageURL),
			slog.Any("error", err),
		)
		return models.FailureShell(pageURL, fetchedAt)
	}

	book.RawHTML = string(body)
	book.Meta = models.Meta{
		FetchedAt: fetchedAt,
		Status:    models.StatusSuccess,
		SourceURL: pageURL,
	}
	book.Hash = book.ContentHash()

	if err := parser.ValidateBook(book); err != nil {
		e.metrics.IncError("validation")
		slog.Warn("detail record rejected",
			slog.String("url", pageURL),
			slog.Any("error", err),
		)
		return models.FailureShell(pageURL, fetchedAt)
	}

	e.metrics.IncItems()
	return book
}

func (e *DetailExtractor) parse(body []byte, pageURL string) (*models.Book, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	name := parser.CleanText(doc.Find("div.product_main h1").First().Text())
	if name == "" {
		return nil, errors.New("missing product title")
	}

	book := &models.Book{
		Name:        name,
		Rating:      parser.RatingScore(ratingToken(doc)),
		Description: description(doc),
		Category:    category(doc),
	}

	rows := tableRows(doc)
	book.PriceExclTax = priceField(rows, labelPriceExclTax, pageURL)
	book.PriceInclTax = priceField(rows, labelPriceInclTax, pageURL)
	book.Availability = countField(rows, labelAvailability, pageURL)
	book.NumReviews = countField(rows, labelNumReviews, pageURL)

	if src, ok := doc.Find("div.carousel-inner img").First().Attr("src"); ok {
		book.ImageURL = resolveURL(pageURL, src)
	} else if src, ok := doc.Find("div.item.active img").First().Attr("src"); ok {
		book.ImageURL = resolveURL(pageURL, src)
	}

	return book, nil
}

// ratingToken pulls the score word out of the star-rating class list,
// e.g. class="star-rating Three" yields "Three".
func ratingToken(doc *goquery.Document) string {
	class, ok := doc.Find("p.star-rating").First().Attr("class")
	if !ok {
		return ""
	}
	for _, field := range strings.Fields(class) {
		if field != "star-rating" {
			return field
		}
	}
	return ""
}

// description returns the paragraph following the product description
// header, empty when the book has none.
func description(doc *goquery.Document) string {
	header := doc.Find("#product_description")
	if header.Length() == 0 {
		return ""
	}
	return parser.CleanText(header.NextAllFiltered("p").First().Text())
}

// category takes the second-to-last breadcrumb segment.
func category(doc *goquery.Document) string {
	crumbs := doc.Find("ul.breadcrumb li")
	if crumbs.Length() < 2 {
		return ""
	}
	return parser.CleanText(crumbs.Eq(crumbs.Length() - 2).Text())
}

// tableRows flattens the product information table into label -> text.
func tableRows(doc *goquery.Document) map[string]string {
	rows := make(map[string]string)
	doc.Find("table.table-striped tr").Each(func(_ int, sel *goquery.Selection) {
		label := parser.CleanText(sel.Find("th").First().Text())
		if label == "" {
			return
		}
		rows[label] = parser.CleanText(sel.Find("td").First().Text())
	})
	return rows
}

func priceField(rows map[string]string, label, pageURL string) float64 {
	value, err := parser.ParsePrice(rows[label])
	if err != nil {
		slog.Debug("unparseable price cell",
			slog.String("url", pageURL),
			slog.String("field", label),
			slog.Any("error", err),
		)
		return 0
	}
	return value
}

func countField(rows map[string]string, label, pageURL string) int {
	value, err := parser.ParseCount(rows[label])
	if err != nil {
		slog.Debug("unparseable count cell",
			slog.String("url", pageURL),
			slog.String("field", label),
			slog.Any("error", err),
		)
		return 0
	}
	return value
}
