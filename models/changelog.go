package models

import "time"

// Changelog event types.
const (
	EventNewBook = "new_book"
	EventUpdate  = "update"
)

// Classification outcomes produced by the change detector. Skipped
// covers records the detector could not persist: nameless failure
// shells and duplicate-key insert conflicts.
const (
	ClassNew       = "new"
	ClassUpdated   = "updated"
	ClassUnchanged = "unchanged"
	ClassSkipped   = "skipped"
)

// FieldChange captures one field's transition in an update event.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// ChangeLogEntry is an immutable audit record of a detected change.
// For new_book events BookID carries the record's content hash because
// no store identifier existed before the insert.
type ChangeLogEntry struct {
	ID        string                 `json:"id"`
	BookID    string                 `json:"book_id"`
	Event     string                 `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Changes   map[string]FieldChange `json:"changes"`
}

// PersistedBook is the durable counterpart of Book, keyed by a
// store-assigned identifier plus the natural key name.
type PersistedBook struct {
	ID string `json:"id"`
	Book
}

// ReportRow is the denormalized projection of a change written to the
// cumulative report artifacts.
type ReportRow struct {
	Name      string `json:"name" csv:"name"`
	Status    string `json:"status" csv:"status"`
	Hash      string `json:"hash" csv:"hash"`
	Timestamp string `json:"timestamp" csv:"timestamp"`
}

// RunSummary counts classifications for one crawl-and-diff cycle.
type RunSummary struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped,omitempty"`
}
