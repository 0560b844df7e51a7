// Package audit archives recipient resolution traces to S3 so each
// campaign's exclusion decisions can be reviewed after the fact.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/ignite/campaign-sender/internal/config"
	"github.com/ignite/campaign-sender/internal/pkg/logger"
	"github.com/ignite/campaign-sender/internal/recipients"
)

// S3API is the subset of the S3 client the writer uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Writer stores one JSON trace object per campaign dispatch.
type Writer struct {
	client S3API
	bucket string
}

type traceRecord struct {
	CampaignID string           `json:"campaign_id"`
	RecordedAt time.Time        `json:"recorded_at"`
	Trace      recipients.Trace `json:"trace"`
}

// NewWriter creates a writer for the configured audit bucket. Returns nil
// when no bucket is configured; callers treat a nil writer as disabled.
func NewWriter(ctx context.Context, cfg appconfig.StorageConfig) (*Writer, error) {
	if cfg.AuditBucket == "" {
		return nil, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if profile := cfg.GetAWSProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return NewWriterWithClient(s3.NewFromConfig(awsCfg), cfg.AuditBucket), nil
}

// NewWriterWithClient creates a writer around an existing client.
func NewWriterWithClient(client S3API, bucket string) *Writer {
	return &Writer{client: client, bucket: bucket}
}

// WriteTrace stores the resolution trace for a campaign under
// traces/<campaign-id>/<timestamp>.json.
func (w *Writer) WriteTrace(ctx context.Context, campaignID string, trace recipients.Trace) error {
	if w == nil {
		return nil
	}

	record := traceRecord{
		CampaignID: campaignID,
		RecordedAt: time.Now().UTC(),
		Trace:      trace,
	}
	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling trace for campaign %s: %w", campaignID, err)
	}

	key := fmt.Sprintf("traces/%s/%s.json", campaignID, record.RecordedAt.Format("20060102T150405Z"))
	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("writing trace to s3://%s/%s: %w", w.bucket, key, err)
	}

	logger.Info("resolution trace archived", "campaign_id", campaignID, "key", key)
	return nil
}
