package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Campaign represents one send of a template to a target group, with the
// optional To/CC/BCC override lists from the campaign configuration.
type Campaign struct {
	ID          string         `json:"id" dynamodbav:"ID"`
	Name        string         `json:"name" dynamodbav:"Name"`
	Subject     string         `json:"subject" dynamodbav:"Subject"`
	FromName    string         `json:"from_name" dynamodbav:"FromName"`
	FromEmail   string         `json:"from_email" dynamodbav:"FromEmail"`
	ReplyTo     string         `json:"reply_to,omitempty" dynamodbav:"ReplyTo,omitempty"`
	Template    string         `json:"template" dynamodbav:"Template"`
	TargetGroup string         `json:"target_group" dynamodbav:"TargetGroup"`
	CC          []string       `json:"cc,omitempty" dynamodbav:"CC,omitempty"`
	BCC         []string       `json:"bcc,omitempty" dynamodbav:"BCC,omitempty"`
	To          []string       `json:"to,omitempty" dynamodbav:"To,omitempty"`
	RateLimit   float64        `json:"rate_limit" dynamodbav:"RateLimit"` // emails per second
	Status      CampaignStatus `json:"status" dynamodbav:"Status"`

	TotalRecipients int `json:"total_recipients" dynamodbav:"TotalRecipients"`
	SentCount       int `json:"sent_count" dynamodbav:"SentCount"`
	FailureCount    int `json:"failure_count" dynamodbav:"FailureCount"`

	StartedAt   *time.Time `json:"started_at,omitempty" dynamodbav:"StartedAt,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" dynamodbav:"CompletedAt,omitempty"`
	CreatedAt   time.Time  `json:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt   time.Time  `json:"updated_at" dynamodbav:"UpdatedAt"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignFailed || c.Status == CampaignCancelled
}
