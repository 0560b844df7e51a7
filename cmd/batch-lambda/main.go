// The batch-lambda binary serves the contact batch-upsert endpoint behind
// API Gateway, so large imports can run serverless while the client drives
// one chunk at a time.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	appconfig "github.com/ignite/campaign-sender/internal/config"
	"github.com/ignite/campaign-sender/internal/contacts"
	"github.com/ignite/campaign-sender/internal/domain"
	"github.com/ignite/campaign-sender/internal/pkg/logger"
)

// Upserter is the store surface the handler needs.
type Upserter interface {
	BatchUpsert(ctx context.Context, batch []domain.Contact) (domain.BatchResult, error)
}

type handler struct {
	store Upserter
}

type batchRequest struct {
	Contacts []domain.Contact `json:"contacts"`
}

type batchResponse struct {
	Success     bool `json:"success"`
	Imported    int  `json:"imported"`
	Unprocessed int  `json:"unprocessed"`
}

func (h *handler) handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var body batchRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorResponse(http.StatusBadRequest, "invalid JSON body"), nil
	}
	if len(body.Contacts) == 0 {
		return errorResponse(http.StatusBadRequest, "contacts list is empty"), nil
	}
	if len(body.Contacts) > domain.BatchSize {
		return errorResponse(http.StatusBadRequest, fmt.Sprintf("batch exceeds %d contacts", domain.BatchSize)), nil
	}

	result, err := h.store.BatchUpsert(ctx, body.Contacts)
	if err != nil {
		logger.Error("batch upsert failed", "batch_size", len(body.Contacts), "error", err.Error())
		return errorResponse(http.StatusInternalServerError, "internal server error"), nil
	}

	return jsonResponse(http.StatusOK, batchResponse{
		Success:     result.Success,
		Imported:    result.Imported,
		Unprocessed: result.Unprocessed,
	}), nil
}

func jsonResponse(status int, data any) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(data)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func errorResponse(status int, message string) events.APIGatewayProxyResponse {
	return jsonResponse(status, map[string]string{"error": message})
}

func main() {
	logger.SetRedactPII(true)

	cfg := appconfig.StorageConfig{
		ContactTable: os.Getenv("CONTACT_TABLE"),
		AWSRegion:    os.Getenv("AWS_REGION"),
	}
	if cfg.ContactTable == "" {
		logger.Error("CONTACT_TABLE is not set")
		os.Exit(1)
	}

	store, err := contacts.New(context.Background(), cfg)
	if err != nil {
		logger.Error("creating contact store", "error", err.Error())
		os.Exit(1)
	}

	h := &handler{store: store}
	lambda.Start(h.handle)
}
