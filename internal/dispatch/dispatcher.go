// Package dispatch sends resolved campaigns through SES at a bounded rate,
// persisting campaign state and publishing live progress.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	appconfig "github.com/ignite/campaign-sender/internal/config"
	"github.com/ignite/campaign-sender/internal/domain"
	"github.com/ignite/campaign-sender/internal/mailing"
	"github.com/ignite/campaign-sender/internal/pkg/logger"
	"github.com/ignite/campaign-sender/internal/recipients"
	"github.com/ignite/campaign-sender/internal/ses"
)

// ErrQuotaExceeded is returned when the campaign would push the SES account
// past its 24-hour send allowance.
var ErrQuotaExceeded = errors.New("send would exceed SES 24-hour quota")

// MailSender delivers individual messages and reports account limits.
type MailSender interface {
	Send(ctx context.Context, msg *ses.Message) *ses.Result
	GetQuota(ctx context.Context) (ses.Quota, error)
}

// CampaignStore persists campaign state transitions.
type CampaignStore interface {
	Put(ctx context.Context, c *domain.Campaign) error
}

// TraceWriter archives the recipient resolution trace for auditing.
type TraceWriter interface {
	WriteTrace(ctx context.Context, campaignID string, trace recipients.Trace) error
}

// Limiter gates sends to a per-second ceiling.
type Limiter interface {
	Wait(ctx context.Context, perSecond int) error
}

// ProgressSink receives progress updates during a dispatch run.
type ProgressSink interface {
	Set(ctx context.Context, p Progress) error
}

// Dispatcher runs campaign sends end to end: quota check, per-contact
// template rendering, rate-limited delivery, state persistence.
type Dispatcher struct {
	sender    MailSender
	store     CampaignStore
	templates *mailing.TemplateService
	limiter   Limiter
	progress  ProgressSink
	trace     TraceWriter
	cfg       appconfig.DispatchConfig
}

// NewDispatcher wires a dispatcher. trace and progress may be nil when the
// audit bucket or Redis is not configured.
func NewDispatcher(sender MailSender, store CampaignStore, templates *mailing.TemplateService, limiter Limiter, progress ProgressSink, trace TraceWriter, cfg appconfig.DispatchConfig) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		store:     store,
		templates: templates,
		limiter:   limiter,
		progress:  progress,
		trace:     trace,
		cfg:       cfg,
	}
}

// Run sends the campaign to every resolved recipient. Individual send
// failures are counted and the run continues; context cancellation stops
// between sends and marks the campaign cancelled.
func (d *Dispatcher) Run(ctx context.Context, campaign *domain.Campaign, res *recipients.Resolution) error {
	total := res.TotalSends()
	campaign.TotalRecipients = total

	rate, err := d.effectiveRate(ctx, campaign.RateLimit, total)
	if err != nil {
		campaign.Status = domain.CampaignFailed
		if putErr := d.store.Put(ctx, campaign); putErr != nil {
			logger.Error("persisting failed campaign", "campaign_id", campaign.ID, "error", putErr.Error())
		}
		return err
	}

	now := time.Now()
	campaign.Status = domain.CampaignSending
	campaign.StartedAt = &now
	if err := d.store.Put(ctx, campaign); err != nil {
		return fmt.Errorf("persisting campaign %s: %w", campaign.ID, err)
	}

	if d.trace != nil {
		if err := d.trace.WriteTrace(ctx, campaign.ID, res.Trace); err != nil {
			logger.Warn("archiving resolution trace failed", "campaign_id", campaign.ID, "error", err.Error())
		}
	}

	logger.Info("campaign dispatch started",
		"campaign_id", campaign.ID,
		"total_recipients", total,
		"rate_per_second", rate)

	sent, failed := 0, 0
	publish := func(status domain.CampaignStatus) {
		if d.progress == nil {
			return
		}
		p := Progress{CampaignID: campaign.ID, Status: status, Total: total, Sent: sent, Failed: failed}
		if err := d.progress.Set(ctx, p); err != nil {
			logger.Warn("publishing progress failed", "campaign_id", campaign.ID, "error", err.Error())
		}
	}
	publish(domain.CampaignSending)

	deliver := func(msg *ses.Message) error {
		if err := d.limiter.Wait(ctx, rate); err != nil {
			return err
		}
		result := d.sender.Send(ctx, msg)
		if result.Success {
			sent++
		} else {
			failed++
		}
		publish(domain.CampaignSending)
		return nil
	}

	runErr := func() error {
		for _, contact := range res.Regular {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			msg, err := d.renderMessage(campaign, contact)
			if err != nil {
				failed++
				logger.Warn("rendering message failed", "campaign_id", campaign.ID, "email", contact.Email, "error", err.Error())
				continue
			}
			msg.To = []string{contact.Email}
			msg.DisplayCC = res.CC
			if err := deliver(msg); err != nil {
				return err
			}
		}

		for _, hr := range res.HeaderOnly {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			msg, err := d.renderMessage(campaign, domain.Contact{Email: hr.Email})
			if err != nil {
				failed++
				logger.Warn("rendering message failed", "campaign_id", campaign.ID, "email", hr.Email, "error", err.Error())
				continue
			}
			switch hr.Header {
			case recipients.HeaderCC:
				msg.CC = []string{hr.Email}
			case recipients.HeaderBCC:
				msg.BCC = []string{hr.Email}
			default:
				msg.To = []string{hr.Email}
			}
			if err := deliver(msg); err != nil {
				return err
			}
		}
		return nil
	}()

	campaign.SentCount = sent
	campaign.FailureCount = failed

	switch {
	case runErr != nil:
		campaign.Status = domain.CampaignCancelled
	case total > 0 && sent == 0:
		campaign.Status = domain.CampaignFailed
	default:
		campaign.Status = domain.CampaignSent
	}
	done := time.Now()
	campaign.CompletedAt = &done

	// Persist the final state even when the run's context is gone.
	putCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.store.Put(putCtx, campaign); err != nil {
		logger.Error("persisting completed campaign", "campaign_id", campaign.ID, "error", err.Error())
	}
	if d.progress != nil {
		p := Progress{CampaignID: campaign.ID, Status: campaign.Status, Total: total, Sent: sent, Failed: failed}
		if err := d.progress.Set(putCtx, p); err != nil {
			logger.Warn("publishing final progress failed", "campaign_id", campaign.ID, "error", err.Error())
		}
	}

	logger.Info("campaign dispatch finished",
		"campaign_id", campaign.ID,
		"status", string(campaign.Status),
		"sent", sent,
		"failed", failed)

	return runErr
}

// effectiveRate clamps the requested rate to the configured ceiling and the
// SES account's maximum send rate, and rejects runs that would blow the
// 24-hour quota.
func (d *Dispatcher) effectiveRate(ctx context.Context, requested float64, total int) (int, error) {
	rate := requested
	if rate <= 0 {
		rate = d.cfg.RatePerSecond
	}
	if d.cfg.MaxRate > 0 && rate > d.cfg.MaxRate {
		rate = d.cfg.MaxRate
	}

	quota, err := d.sender.GetQuota(ctx)
	if err != nil {
		logger.Warn("SES quota lookup failed, using configured rate", "error", err.Error())
	} else {
		if quota.MaxSendRate > 0 && rate > quota.MaxSendRate {
			logger.Info("clamping send rate to SES maximum", "requested", rate, "max_send_rate", quota.MaxSendRate)
			rate = quota.MaxSendRate
		}
		if quota.Max24HourSend > 0 && quota.SentLast24Hours+float64(total) > quota.Max24HourSend {
			return 0, fmt.Errorf("%w: sent %.0f of %.0f in last 24h, need %d more",
				ErrQuotaExceeded, quota.SentLast24Hours, quota.Max24HourSend, total)
		}
	}

	perSecond := int(rate)
	if perSecond < 1 {
		perSecond = 1
	}
	return perSecond, nil
}

func (d *Dispatcher) renderMessage(campaign *domain.Campaign, contact domain.Contact) (*ses.Message, error) {
	bindings := mailing.Bindings(contact)

	html, err := d.templates.Render(campaign.Template, bindings, mailing.RenderModeLax)
	if err != nil {
		return nil, fmt.Errorf("rendering body: %w", err)
	}
	subject, err := d.templates.Render(campaign.Subject, bindings, mailing.RenderModeLax)
	if err != nil {
		return nil, fmt.Errorf("rendering subject: %w", err)
	}

	return &ses.Message{
		FromName:    campaign.FromName,
		FromEmail:   campaign.FromEmail,
		Subject:     subject,
		HTMLContent: html,
		ReplyTo:     campaign.ReplyTo,
		CampaignID:  campaign.ID,
	}, nil
}
