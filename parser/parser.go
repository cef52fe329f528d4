// Package parser converts raw page text into typed record fields.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/bookwatch/models"
)

var (
	decimalToken = regexp.MustCompile(`\d+(?:\.\d+)?`)
	integerToken = regexp.MustCompile(`\d+`)
)

// ratingScores maps the lexical rating token from the star-rating class
// to its numeric score. Unmapped tokens score zero.
var ratingScores = map[string]float64{
	"one":   1.0,
	"two":   2.0,
	"three": 3.0,
	"four":  4.0,
	"five":  5.0,
}

// RatingScore converts a textual rating token to the 0-5 scale.
func RatingScore(token string) float64 {
	return ratingScores[strings.ToLower(strings.TrimSpace(token))]
}

// ParsePrice extracts a decimal price from currency-formatted text such
// as "£51.77". It fails rather than guessing when no numeric token is
// present.
func ParsePrice(text string) (float64, error) {
	token := decimalToken.FindString(text)
	if token == "" {
		return 0, fmt.Errorf("no price in %q", text)
	}
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", token, err)
	}
	return value, nil
}

// ParseCount extracts the first integer from free text such as
// "In stock (22 available)".
func ParseCount(text string) (int, error) {
	token := integerToken.FindString(text)
	if token == "" {
		return 0, fmt.Errorf("no count in %q", text)
	}
	value, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", token, err)
	}
	return value, nil
}

// CleanText collapses surrounding whitespace.
func CleanText(s string) string {
	return strings.TrimSpace(s)
}

// ValidateBook ensures the extractor captured the fields every
// successful record must carry.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("book missing name")
	}
	if strings.TrimSpace(b.Category) == "" {
		return fmt.Errorf("book missing category for %s", b.Name)
	}
	if b.Hash == "" {
		return fmt.Errorf("book missing content hash for %s", b.Name)
	}
	return nil
}
