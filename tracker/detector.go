// Package tracker classifies scraped books against persisted state and
// maintains the append-only change report.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/bookwatch/models"
	"github.com/aluiziolira/bookwatch/store"
)

// Outcome is the result of classifying one record.
type Outcome struct {
	Class   string
	Changes map[string]models.FieldChange
}

// Detector compares incoming books against the store and applies the
// resulting writes. Callers must feed it records sequentially:
// persistence order is part of the correctness contract.
type Detector struct {
	store *store.Store
	now   func() time.Time
}

// NewDetector builds a detector over st.
func NewDetector(st *store.Store) *Detector {
	return &Detector{store: st, now: time.Now}
}

// Classify looks the record up by its natural key, decides
// new/updated/unchanged, writes the new state, and appends a changelog
// entry for anything that changed. Unchanged records touch nothing.
func (d *Detector) Classify(ctx context.Context, book *models.Book) (*Outcome, error) {
	if book.Name == "" {
		// Failure shells carry no natural key; persisting one would mint
		// a phantom book addressed by the empty string.
		slog.Warn("skipping record without a name",
			slog.String("source_url", book.Meta.SourceURL),
			slog.String("status", book.Meta.Status),
		)
		return &Outcome{Class: models.ClassSkipped}, nil
	}

	existing, err := d.store.FindByName(ctx, book.Name)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", book.Name, err)
	}

	switch {
	case existing == nil:
		return d.classifyNew(ctx, book)
	case existing.Hash == book.Hash:
		slog.Debug("unchanged", slog.String("name", book.Name))
		return &Outcome{Class: models.ClassUnchanged}, nil
	default:
		return d.classifyUpdated(ctx, existing, book)
	}
}

func (d *Detector) classifyNew(ctx context.Context, book *models.Book) (*Outcome, error) {
	if _, err := d.store.Insert(ctx, book); err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			// Insert conflict: caught, logged, and not retried. Data for
			// this record is simply not persisted this run.
			slog.Warn("duplicate insert skipped", slog.String("name", book.Name))
			return &Outcome{Class: models.ClassSkipped}, nil
		}
		return nil, fmt.Errorf("insert %q: %w", book.Name, err)
	}

	entry := &models.ChangeLogEntry{
		// No store identifier existed before this run, so the content
		// hash stands in as the reference.
		BookID:    book.Hash,
		Event:     models.EventNewBook,
		Timestamp: d.now().UTC(),
		Changes:   map[string]models.FieldChange{},
	}
	if err := d.store.AppendChange(ctx, entry); err != nil {
		return nil, fmt.Errorf("changelog for %q: %w", book.Name, err)
	}

	slog.Info("new book", slog.String("name", book.Name))
	return &Outcome{Class: models.ClassNew, Changes: entry.Changes}, nil
}

func (d *Detector) classifyUpdated(ctx context.Context, existing *models.PersistedBook, book *models.Book) (*Outcome, error) {
	changes := diffContent(&existing.Book, book)

	if err := d.store.UpdateByID(ctx, existing.ID, book); err != nil {
		return nil, fmt.Errorf("update %q: %w", book.Name, err)
	}

	entry := &models.ChangeLogEntry{
		BookID:    existing.ID,
		Event:     models.EventUpdate,
		Timestamp: d.now().UTC(),
		Changes:   changes,
	}
	if err := d.store.AppendChange(ctx, entry); err != nil {
		return nil, fmt.Errorf("changelog for %q: %w", book.Name, err)
	}

	slog.Info("updated book",
		slog.String("name", book.Name),
		slog.Int("fields", len(changes)),
	)
	return &Outcome{Class: models.ClassUpdated, Changes: changes}, nil
}

// diffContent compares the content fields of two books one by one, so
// callers see exactly which attributes moved rather than just "the
// hash differs".
func diffContent(stored, incoming *models.Book) map[string]models.FieldChange {
	oldFields := stored.ContentFields()
	changes := make(map[string]models.FieldChange)
	for field, newValue := range incoming.ContentFields() {
		if oldValue := oldFields[field]; oldValue != newValue {
			changes[field] = models.FieldChange{Old: oldValue, New: newValue}
		}
	}
	return changes
}
