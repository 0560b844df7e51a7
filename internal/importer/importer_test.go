package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-sender/internal/domain"
)

type mockUpserter struct {
	batches [][]domain.Contact
	// failOn marks 1-based batch indexes that return a transport error.
	failOn map[int]bool
	// unprocessedOn maps 1-based batch index to an unprocessed count.
	unprocessedOn map[int]int
	// cancelAfter cancels this context after the given batch completes.
	cancelAfter int
	cancel      context.CancelFunc
}

func (m *mockUpserter) BatchUpsert(ctx context.Context, batch []domain.Contact) (domain.BatchResult, error) {
	m.batches = append(m.batches, batch)
	idx := len(m.batches)

	if m.cancelAfter > 0 && idx == m.cancelAfter {
		m.cancel()
	}
	if m.failOn[idx] {
		return domain.BatchResult{}, errors.New("connection reset")
	}

	unprocessed := m.unprocessedOn[idx]
	return domain.BatchResult{
		Success:     true,
		Imported:    len(batch) - unprocessed,
		Unprocessed: unprocessed,
	}, nil
}

func makeContacts(n int) []domain.Contact {
	out := make([]domain.Contact, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Contact{Email: fmt.Sprintf("user%d@example.com", i)})
	}
	return out
}

func TestJobIssuesCeilNOverBatchSizeBatches(t *testing.T) {
	cases := []struct {
		contacts int
		batches  int
	}{
		{contacts: 1, batches: 1},
		{contacts: 25, batches: 1},
		{contacts: 26, batches: 2},
		{contacts: 60, batches: 3},
		{contacts: 100, batches: 4},
	}

	for _, tc := range cases {
		mock := &mockUpserter{}
		job := NewJob(mock, makeContacts(tc.contacts), nil)

		report := job.Run(context.Background())

		assert.Len(t, mock.batches, tc.batches, "%d contacts", tc.contacts)
		assert.Equal(t, tc.batches, report.BatchesCompleted)
		assert.Equal(t, tc.contacts, report.TotalImported+report.TotalErrors)
		assert.Equal(t, tc.contacts, report.TotalProcessed)
		assert.False(t, report.Cancelled)
	}
}

func TestJobBatchesPreserveOrder(t *testing.T) {
	contacts := makeContacts(30)
	mock := &mockUpserter{}
	job := NewJob(mock, contacts, nil)

	job.Run(context.Background())

	require.Len(t, mock.batches, 2)
	assert.Equal(t, contacts[:25], mock.batches[0])
	assert.Equal(t, contacts[25:], mock.batches[1])
}

func TestJobCountsUnprocessedAsErrors(t *testing.T) {
	mock := &mockUpserter{unprocessedOn: map[int]int{2: 3}}
	job := NewJob(mock, makeContacts(50), nil)

	report := job.Run(context.Background())

	assert.Equal(t, 47, report.TotalImported)
	assert.Equal(t, 3, report.TotalErrors)
	assert.Equal(t, 50, report.TotalProcessed)
}

func TestJobTransportFailureFailsBatchNotJob(t *testing.T) {
	mock := &mockUpserter{failOn: map[int]bool{1: true}}
	job := NewJob(mock, makeContacts(60), nil)

	report := job.Run(context.Background())

	// First batch's 25 contacts count as errors; the job keeps going.
	assert.Len(t, mock.batches, 3)
	assert.Equal(t, 25, report.TotalErrors)
	assert.Equal(t, 35, report.TotalImported)
	assert.Equal(t, 3, report.BatchesCompleted)
	assert.False(t, report.Cancelled)
}

func TestJobCancellationStopsAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &mockUpserter{cancelAfter: 2, cancel: cancel}
	job := NewJob(mock, makeContacts(100), nil)

	report := job.Run(ctx)

	assert.Len(t, mock.batches, 2)
	assert.True(t, report.Cancelled)
	assert.Equal(t, 2, report.BatchesCompleted)
	assert.Equal(t, 50, report.TotalImported)
}

func TestJobReportsProgressAfterEveryBatch(t *testing.T) {
	var updates []domain.ImportProgress
	mock := &mockUpserter{unprocessedOn: map[int]int{1: 2}}
	job := NewJob(mock, makeContacts(55), func(p domain.ImportProgress) {
		updates = append(updates, p)
	})

	job.Run(context.Background())

	require.Len(t, updates, 3)
	assert.Equal(t, 1, updates[0].BatchIndex)
	assert.Equal(t, 3, updates[0].BatchTotal)
	assert.Equal(t, 23, updates[0].ImportedSoFar)
	assert.Equal(t, 2, updates[0].ErrorsSoFar)
	assert.Equal(t, 3, updates[2].BatchIndex)
	assert.Equal(t, 53, updates[2].ImportedSoFar)
}

func TestJobEmptyContactList(t *testing.T) {
	mock := &mockUpserter{}
	job := NewJob(mock, nil, nil)

	report := job.Run(context.Background())

	assert.Empty(t, mock.batches)
	assert.Zero(t, report.TotalProcessed)
	assert.Zero(t, report.BatchesTotal)
}
