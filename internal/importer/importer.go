// Package importer drives bulk contact imports: it splits a parsed contact
// list into 25-item batches, submits them sequentially to an upsert backend,
// accumulates counts, and reports progress after every batch. Cancellation is
// observed at batch boundaries; an in-flight batch always completes and
// acknowledged batches are never rolled back.
package importer

import (
	"context"

	"github.com/ignite/campaign-sender/internal/domain"
	"github.com/ignite/campaign-sender/internal/pkg/logger"
)

// BatchUpserter submits one batch of contacts to the contact store. The
// direct implementation is contacts.Store; HTTPUpserter posts to the remote
// batch endpoint.
type BatchUpserter interface {
	BatchUpsert(ctx context.Context, batch []domain.Contact) (domain.BatchResult, error)
}

// ProgressFunc receives a snapshot after each completed batch. Nil is
// allowed; clients that poll instead pass nil.
type ProgressFunc func(domain.ImportProgress)

// Job is the state of one import run. Counters live here rather than in
// package state so concurrent or repeated imports don't interfere.
type Job struct {
	upserter BatchUpserter
	contacts []domain.Contact
	progress ProgressFunc

	report domain.ImportReport
}

// NewJob prepares an import of the given contacts.
func NewJob(upserter BatchUpserter, contacts []domain.Contact, progress ProgressFunc) *Job {
	batches := (len(contacts) + domain.BatchSize - 1) / domain.BatchSize
	return &Job{
		upserter: upserter,
		contacts: contacts,
		progress: progress,
		report: domain.ImportReport{
			TotalContacts: len(contacts),
			BatchesTotal:  batches,
		},
	}
}

// Run executes the import: one upsert call per batch, strictly sequential,
// waiting for each result before issuing the next. A batch that fails in
// transport counts all its contacts as errors and the job continues with
// the next batch. Cancel the context to stop; the final report then carries
// Cancelled=true with counts as of the last completed batch.
func (j *Job) Run(ctx context.Context) domain.ImportReport {
	for start := 0; start < len(j.contacts); start += domain.BatchSize {
		select {
		case <-ctx.Done():
			j.report.Cancelled = true
			logger.Info("import cancelled",
				"batches_completed", j.report.BatchesCompleted,
				"imported", j.report.TotalImported,
				"errors", j.report.TotalErrors)
			return j.report
		default:
		}

		end := start + domain.BatchSize
		if end > len(j.contacts) {
			end = len(j.contacts)
		}
		batch := j.contacts[start:end]

		result, err := j.upserter.BatchUpsert(ctx, batch)
		if err != nil {
			// Transport failure: the whole batch is counted as errors.
			j.report.TotalErrors += len(batch)
			logger.Warn("import batch failed",
				"batch_index", j.report.BatchesCompleted+1,
				"batch_size", len(batch),
				"error", err.Error())
		} else {
			j.report.TotalImported += result.Imported
			j.report.TotalErrors += result.Unprocessed
		}

		j.report.TotalProcessed += len(batch)
		j.report.BatchesCompleted++

		if j.progress != nil {
			j.progress(domain.ImportProgress{
				BatchIndex:    j.report.BatchesCompleted,
				BatchTotal:    j.report.BatchesTotal,
				ImportedSoFar: j.report.TotalImported,
				ErrorsSoFar:   j.report.TotalErrors,
			})
		}
	}

	logger.Info("import complete",
		"total", j.report.TotalContacts,
		"imported", j.report.TotalImported,
		"errors", j.report.TotalErrors,
		"batches", j.report.BatchesCompleted)
	return j.report
}

// Report returns the job's current counts. Valid during and after Run.
func (j *Job) Report() domain.ImportReport {
	return j.report
}
