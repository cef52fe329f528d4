// Package store persists books and their change history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aluiziolira/bookwatch/models"
)

var (
	// ErrDuplicateName reports an insert racing an existing row with the
	// same natural key.
	ErrDuplicateName = errors.New("store: duplicate book name")
	// ErrNotFound reports a lookup by unknown identifier.
	ErrNotFound = errors.New("store: book not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	description    TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	price_excl_tax REAL NOT NULL DEFAULT 0,
	price_incl_tax REAL NOT NULL DEFAULT 0,
	availability   INTEGER NOT NULL DEFAULT 0,
	num_reviews    INTEGER NOT NULL DEFAULT 0,
	image_url      TEXT NOT NULL DEFAULT '',
	rating         REAL NOT NULL DEFAULT 0,
	raw_html       TEXT NOT NULL DEFAULT '',
	hash           TEXT NOT NULL DEFAULT '',
	fetched_at     TEXT NOT NULL DEFAULT '',
	source_url     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_books_category ON books(category);
CREATE INDEX IF NOT EXISTS idx_books_rating ON books(rating);

CREATE TABLE IF NOT EXISTS changes (
	id        TEXT PRIMARY KEY,
	book_id   TEXT NOT NULL,
	event     TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	changes   TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_changes_timestamp ON changes(timestamp);
`

// Store is the SQLite-backed document store for books and changelog
// entries. Identifier assignment happens here, not in the callers.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path. Pass
// ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory %q: %w", dir, err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const bookColumns = `id, name, description, category, price_excl_tax, price_incl_tax,
	availability, num_reviews, image_url, rating, raw_html, hash, fetched_at, source_url`

// FindByName resolves the natural key. A missing row is (nil, nil), not
// an error.
func (s *Store) FindByName(ctx context.Context, name string) (*models.PersistedBook, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE name = ?`, name)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}
	return book, nil
}

// Insert stores a new book and returns its assigned identifier. A
// natural-key collision surfaces as ErrDuplicateName.
func (s *Store) Insert(ctx context.Context, b *models.Book) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO books (`+bookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, b.Name, b.Description, b.Category, b.PriceExclTax, b.PriceInclTax,
		b.Availability, b.NumReviews, b.ImageURL, b.Rating, b.RawHTML, b.Hash,
		b.Meta.FetchedAt.UTC().Format(time.RFC3339Nano), b.Meta.SourceURL)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateName, b.Name)
		}
		return "", fmt.Errorf("insert book: %w", err)
	}
	return id, nil
}

// UpdateByID overwrites every stored field of an existing book,
// preserving its identifier.
func (s *Store) UpdateByID(ctx context.Context, id string, b *models.Book) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET name = ?, description = ?, category = ?, price_excl_tax = ?,
			price_incl_tax = ?, availability = ?, num_reviews = ?, image_url = ?,
			rating = ?, raw_html = ?, hash = ?, fetched_at = ?, source_url = ?
		 WHERE id = ?`,
		b.Name, b.Description, b.Category, b.PriceExclTax, b.PriceInclTax,
		b.Availability, b.NumReviews, b.ImageURL, b.Rating, b.RawHTML, b.Hash,
		b.Meta.FetchedAt.UTC().Format(time.RFC3339Nano), b.Meta.SourceURL, id)
	if err != nil {
		return fmt.Errorf("update book %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update book %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// GetBook resolves a book by its store identifier.
func (s *Store) GetBook(ctx context.Context, id string) (*models.PersistedBook, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// AppendChange records one changelog entry. The entry ID is assigned
// here when the caller left it empty.
func (s *Store) AppendChange(ctx context.Context, e *models.ChangeLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	changes := e.Changes
	if changes == nil {
		changes = map[string]models.FieldChange{}
	}
	encoded, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO changes (id, book_id, event, timestamp, changes) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.BookID, e.Event, e.Timestamp.UTC().Format(time.RFC3339Nano), string(encoded))
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	return nil
}

// RecentChanges returns changelog entries newest first.
func (s *Store) RecentChanges(ctx context.Context, limit int) ([]*models.ChangeLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, event, timestamp, changes
		 FROM changes ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent changes: %w", err)
	}
	defer rows.Close()

	var entries []*models.ChangeLogEntry
	for rows.Next() {
		var (
			entry   models.ChangeLogEntry
			stamp   string
			changes string
		)
		if err := rows.Scan(&entry.ID, &entry.BookID, &entry.Event, &stamp, &changes); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		entry.Timestamp, err = time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			return nil, fmt.Errorf("decode timestamp for %s: %w", entry.ID, err)
		}
		if err := json.Unmarshal([]byte(changes), &entry.Changes); err != nil {
			return nil, fmt.Errorf("decode changes for %s: %w", entry.ID, err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*models.PersistedBook, error) {
	var (
		book    models.PersistedBook
		fetched string
	)
	err := row.Scan(
		&book.ID, &book.Name, &book.Description, &book.Category,
		&book.PriceExclTax, &book.PriceInclTax, &book.Availability,
		&book.NumReviews, &book.ImageURL, &book.Rating, &book.RawHTML,
		&book.Hash, &fetched, &book.Meta.SourceURL)
	if err != nil {
		return nil, err
	}
	if fetched != "" {
		book.Meta.FetchedAt, err = time.Parse(time.RFC3339Nano, fetched)
		if err != nil {
			return nil, fmt.Errorf("decode fetched_at for %s: %w", book.ID, err)
		}
	}
	book.Meta.Status = models.StatusSuccess
	return &book, nil
}
