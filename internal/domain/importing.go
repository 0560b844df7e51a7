package domain

// BatchSize is the maximum number of contacts submitted in one upsert call,
// dictated by DynamoDB's 25-item BatchWriteItem limit.
const BatchSize = 25

// BatchResult is the outcome of one batch upsert round trip.
type BatchResult struct {
	Success     bool `json:"success"`
	Imported    int  `json:"imported"`
	Unprocessed int  `json:"unprocessed"`
}

// ImportProgress is emitted after each completed batch.
type ImportProgress struct {
	BatchIndex    int `json:"batch_index"` // 1-based index of the batch just finished
	BatchTotal    int `json:"batch_total"`
	ImportedSoFar int `json:"imported_so_far"`
	ErrorsSoFar   int `json:"errors_so_far"`
}

// ImportReport is the final accounting for an import job. Cancellation is
// not an error: counts reflect the work completed before it was observed,
// and batches already acknowledged are never rolled back.
type ImportReport struct {
	TotalContacts    int  `json:"total_contacts"`
	TotalProcessed   int  `json:"total_processed"`
	TotalImported    int  `json:"total_imported"`
	TotalErrors      int  `json:"total_errors"`
	BatchesTotal     int  `json:"batches_total"`
	BatchesCompleted int  `json:"batches_completed"`
	Cancelled        bool `json:"cancelled"`
}
