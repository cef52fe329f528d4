// Package scheduler drives complete crawl-and-diff cycles, either once
// or on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/bookwatch/models"
	"github.com/aluiziolira/bookwatch/scraper"
	"github.com/aluiziolira/bookwatch/tracker"
)

// Job executes one full crawl-and-diff cycle: crawl the catalog,
// classify every record sequentially, append the change report.
type Job struct {
	crawler  *scraper.Crawler
	detector *tracker.Detector
	reports  *tracker.ReportWriter
	metrics  *scraper.Metrics
}

// NewJob wires the cycle's collaborators.
func NewJob(crawler *scraper.Crawler, detector *tracker.Detector, reports *tracker.ReportWriter, metrics *scraper.Metrics) *Job {
	return &Job{
		crawler:  crawler,
		detector: detector,
		reports:  reports,
		metrics:  metrics,
	}
}

// RunOnce performs exactly one cycle and returns the classification
// counts. The summary is logged even when nothing changed; a report
// write failure aborts the cycle with an error rather than silently
// losing audit rows.
func (j *Job) RunOnce(ctx context.Context) (*models.RunSummary, error) {
	started := time.Now()
	slog.Info("starting crawl cycle")

	books, err := j.crawler.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("crawl: %w", err)
	}

	summary := &models.RunSummary{}
	var rows []models.ReportRow
	for _, book := range books {
		outcome, err := j.detector.Classify(ctx, book)
		if err != nil {
			return nil, fmt.Errorf("classify %q: %w", book.Name, err)
		}
		j.metrics.IncChange(outcome.Class)

		switch outcome.Class {
		case models.ClassNew:
			summary.New++
		case models.ClassUpdated:
			summary.Updated++
		case models.ClassSkipped:
			summary.Skipped++
		default:
			summary.Unchanged++
		}

		if outcome.Class == models.ClassNew || outcome.Class == models.ClassUpdated {
			rows = append(rows, models.ReportRow{
				Name:      book.Name,
				Status:    outcome.Class,
				Hash:      book.Hash,
				Timestamp: book.Meta.FetchedAt.UTC().Format(time.RFC3339),
			})
		}
	}

	if err := j.reports.Append(rows); err != nil {
		return nil, fmt.Errorf("append report: %w", err)
	}

	slog.Info("crawl cycle complete",
		slog.Int("records", len(books)),
		slog.Int("new", summary.New),
		slog.Int("updated", summary.Updated),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("skipped", summary.Skipped),
		slog.Duration("duration", time.Since(started)),
	)
	return summary, nil
}
