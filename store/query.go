package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/aluiziolira/bookwatch/models"
)

// Sort columns accepted by QueryBooks.
var sortColumns = map[string]string{
	"rating":         "rating",
	"price_excl_tax": "price_excl_tax",
	"num_reviews":    "num_reviews",
}

// BookQuery filters and paginates the book listing. Nil pointer fields
// mean "no bound".
type BookQuery struct {
	Category  string
	MinPrice  *float64
	MaxPrice  *float64
	MinRating *float64
	SortBy    string // rating | price_excl_tax | num_reviews
	Page      int
	Limit     int
}

// ValidSort reports whether name is an accepted sort column. The empty
// string is valid and falls back to rating.
func ValidSort(name string) bool {
	if name == "" {
		return true
	}
	_, ok := sortColumns[name]
	return ok
}

// QueryBooks returns a filtered, sorted, paginated slice of books.
// Sorting is always descending, matching the read API contract.
func (s *Store) QueryBooks(ctx context.Context, q BookQuery) ([]*models.PersistedBook, error) {
	var (
		clauses []string
		args    []any
	)
	if q.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, q.Category)
	}
	if q.MinPrice != nil {
		clauses = append(clauses, "price_excl_tax >= ?")
		args = append(args, *q.MinPrice)
	}
	if q.MaxPrice != nil {
		clauses = append(clauses, "price_excl_tax <= ?")
		args = append(args, *q.MaxPrice)
	}
	if q.MinRating != nil {
		clauses = append(clauses, "rating >= ?")
		args = append(args, *q.MinRating)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	order, ok := sortColumns[q.SortBy]
	if !ok {
		order = "rating"
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books`+where+
			` ORDER BY `+order+` DESC, name ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	var books []*models.PersistedBook
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}
