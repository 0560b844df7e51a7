package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/campaign-sender/internal/domain"
)

// DefaultBatchTimeout matches the API Gateway integration ceiling; a call
// running longer than this is lost regardless of what the Lambda does.
const DefaultBatchTimeout = 29 * time.Second

// HTTPUpserter submits batches to the remote POST /contacts/batch endpoint.
// A timeout or non-2xx response is a batch failure, not a job failure.
type HTTPUpserter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPUpserter creates a client for the batch endpoint. A zero timeout
// uses DefaultBatchTimeout.
func NewHTTPUpserter(endpoint string, timeout time.Duration) *HTTPUpserter {
	if timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	return &HTTPUpserter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type batchRequest struct {
	Contacts []domain.Contact `json:"contacts"`
}

// BatchUpsert implements BatchUpserter over HTTP.
func (u *HTTPUpserter) BatchUpsert(ctx context.Context, batch []domain.Contact) (domain.BatchResult, error) {
	body, err := json.Marshal(batchRequest{Contacts: batch})
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("marshaling batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("building batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("posting batch: %w", err)
	}
	defer resp.Body.Close()

	// Partial failure is a 200 with unprocessed > 0; only transport and
	// server faults arrive as non-2xx.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.BatchResult{}, fmt.Errorf("batch endpoint returned %s", resp.Status)
	}

	var result domain.BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.BatchResult{}, fmt.Errorf("decoding batch response: %w", err)
	}
	return result, nil
}
