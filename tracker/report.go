package tracker

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/bookwatch/models"
)

// ReportWriter appends change rows to the cumulative JSON and CSV
// artifacts. Both grow append-only across runs and carry the same rows
// in the same relative order. Single writer assumed: the JSON side is a
// load-append-rewrite and is not safe against concurrent writers.
type ReportWriter struct {
	jsonPath string
	csvPath  string
	mu       sync.Mutex
}

var csvHeader = []string{"name", "status", "hash", "timestamp"}

// NewReportWriter targets the two artifact paths. Files are created
// lazily on the first non-empty append.
func NewReportWriter(jsonPath, csvPath string) *ReportWriter {
	return &ReportWriter{jsonPath: jsonPath, csvPath: csvPath}
}

// Append records rows in both artifacts. Appending nothing is a no-op.
// Failures are returned, not swallowed: a failure after the JSON
// artifact was rewritten but before the CSV rows landed leaves the two
// detectably out of sync, which the caller must surface.
func (w *ReportWriter) Append(rows []models.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.appendJSON(rows); err != nil {
		return fmt.Errorf("json report: %w", err)
	}
	if err := w.appendCSV(rows); err != nil {
		return fmt.Errorf("csv report: %w", err)
	}
	return nil
}

// appendJSON loads the cumulative array, appends, and rewrites the
// whole artifact through a rename so a crash mid-write cannot truncate
// history.
func (w *ReportWriter) appendJSON(rows []models.ReportRow) error {
	if err := ensureDir(w.jsonPath); err != nil {
		return err
	}

	var all []models.ReportRow
	data, err := os.ReadFile(w.jsonPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &all); err != nil {
			return fmt.Errorf("decode existing report: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("read existing report: %w", err)
	}

	all = append(all, rows...)
	encoded, err := json.MarshalIndent(all, "", "    ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tmp := w.jsonPath + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, w.jsonPath); err != nil {
		return fmt.Errorf("replace report: %w", err)
	}
	return nil
}

// appendCSV appends rows to the tabular artifact, writing the header
// only when the file is created.
func (w *ReportWriter) appendCSV(rows []models.ReportRow) error {
	if err := ensureDir(w.csvPath); err != nil {
		return err
	}

	f, err := os.OpenFile(w.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv report: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat csv report: %w", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(csvHeader); err != nil {
			f.Close()
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	for _, row := range rows {
		record := []string{row.Name, row.Status, row.Hash, row.Timestamp}
		if err := cw.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush csv report: %w", err)
	}
	return f.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
