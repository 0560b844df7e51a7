package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-sender/internal/domain"
)

// ErrProgressNotFound is returned when no progress record exists for the
// campaign, either because it never ran or the record expired.
var ErrProgressNotFound = errors.New("campaign progress not found")

const progressTTL = 24 * time.Hour

// Progress is the live dispatch state of a campaign, published to Redis
// after every send so the API can report it while the campaign runs.
type Progress struct {
	CampaignID string                `json:"campaign_id"`
	Status     domain.CampaignStatus `json:"status"`
	Total      int                   `json:"total"`
	Sent       int                   `json:"sent"`
	Failed     int                   `json:"failed"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// ProgressTracker stores per-campaign dispatch progress in Redis.
type ProgressTracker struct {
	client *redis.Client
}

// NewProgressTracker creates a tracker on the given Redis client.
func NewProgressTracker(client *redis.Client) *ProgressTracker {
	return &ProgressTracker{client: client}
}

func progressKey(campaignID string) string {
	return fmt.Sprintf("campaign:progress:%s", campaignID)
}

// Set publishes the current progress, overwriting any previous record.
func (t *ProgressTracker) Set(ctx context.Context, p Progress) error {
	p.UpdatedAt = time.Now()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling progress for %s: %w", p.CampaignID, err)
	}
	if err := t.client.Set(ctx, progressKey(p.CampaignID), data, progressTTL).Err(); err != nil {
		return fmt.Errorf("storing progress for %s: %w", p.CampaignID, err)
	}
	return nil
}

// Get fetches the latest progress for a campaign.
func (t *ProgressTracker) Get(ctx context.Context, campaignID string) (Progress, error) {
	data, err := t.client.Get(ctx, progressKey(campaignID)).Bytes()
	if err == redis.Nil {
		return Progress{}, ErrProgressNotFound
	}
	if err != nil {
		return Progress{}, fmt.Errorf("fetching progress for %s: %w", campaignID, err)
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return Progress{}, fmt.Errorf("decoding progress for %s: %w", campaignID, err)
	}
	return p, nil
}
