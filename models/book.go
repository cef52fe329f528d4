// Package models defines the data structures shared by the crawler,
// the change tracker, the store, and the API.
package models

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Fetch outcome recorded in Meta.Status.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Meta records the provenance of a scraped book.
type Meta struct {
	FetchedAt time.Time `json:"fetched_at"`
	Status    string    `json:"status"`
	SourceURL string    `json:"source_url"`
}

// Book is one catalog item as scraped in the current run.
type Book struct {
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Category     string  `json:"category"`
	PriceExclTax float64 `json:"price_excl_tax"`
	PriceInclTax float64 `json:"price_incl_tax"`
	Availability int     `json:"availability"`
	NumReviews   int     `json:"num_reviews"`
	ImageURL     string  `json:"image_url"`
	Rating       float64 `json:"rating"`
	RawHTML      string  `json:"raw_html,omitempty"`
	Hash         string  `json:"hash,omitempty"`
	Meta         Meta    `json:"meta"`
}

// hashSep keeps adjacent fields from bleeding into each other in the
// hash input.
const hashSep = "\x1f"

// ContentHash digests the ordered content field tuple. It is a pure
// function of those fields: two books with the same content fields hash
// the same no matter what their raw HTML or meta look like.
func (b *Book) ContentHash() string {
	parts := []string{
		b.Name,
		b.Description,
		b.Category,
		strconv.FormatFloat(b.PriceExclTax, 'f', 2, 64),
		strconv.FormatFloat(b.PriceInclTax, 'f', 2, 64),
		strconv.Itoa(b.Availability),
		strconv.Itoa(b.NumReviews),
		b.ImageURL,
		strconv.FormatFloat(b.Rating, 'f', 1, 64),
	}
	sum := md5.Sum([]byte(strings.Join(parts, hashSep)))
	return hex.EncodeToString(sum[:])
}

// ContentFields returns the diffable content fields keyed by wire name.
// Name is the match key and raw HTML is not content, so neither is
// included; the key set matches the hash input minus the name.
func (b *Book) ContentFields() map[string]any {
	return map[string]any{
		"description":    b.Description,
		"category":       b.Category,
		"price_excl_tax": b.PriceExclTax,
		"price_incl_tax": b.PriceInclTax,
		"availability":   b.Availability,
		"num_reviews":    b.NumReviews,
		"image_url":      b.ImageURL,
		"rating":         b.Rating,
	}
}

// FailureShell returns the placeholder book emitted when a detail page
// could not be fetched or parsed. The crawl keeps one slot per
// discovered link, so failures travel downstream as empty records
// instead of disappearing.
func FailureShell(sourceURL string, at time.Time) *Book {
	return &Book{
		Meta: Meta{
			FetchedAt: at,
			Status:    StatusFailed,
			SourceURL: sourceURL,
		},
	}
}
