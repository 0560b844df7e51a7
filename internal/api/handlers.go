package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/campaign-sender/internal/campaigns"
	"github.com/ignite/campaign-sender/internal/contacts"
	"github.com/ignite/campaign-sender/internal/dispatch"
	"github.com/ignite/campaign-sender/internal/domain"
	"github.com/ignite/campaign-sender/internal/importer"
	"github.com/ignite/campaign-sender/internal/pkg/httputil"
	"github.com/ignite/campaign-sender/internal/pkg/logger"
	"github.com/ignite/campaign-sender/internal/recipients"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

type batchUpsertRequest struct {
	Contacts []domain.Contact `json:"contacts"`
}

type batchUpsertResponse struct {
	Success     bool `json:"success"`
	Imported    int  `json:"imported"`
	Unprocessed int  `json:"unprocessed"`
}

// handleBatchUpsert is the endpoint the batch importer drives, one chunk of
// up to 25 contacts per call. Partial failure is still a 200 with
// unprocessed > 0; only transport-level problems produce non-2xx.
func (s *Server) handleBatchUpsert(w http.ResponseWriter, r *http.Request) {
	var req batchUpsertRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Contacts) == 0 {
		httputil.BadRequest(w, "contacts list is empty")
		return
	}
	if len(req.Contacts) > domain.BatchSize {
		httputil.BadRequest(w, fmt.Sprintf("batch exceeds %d contacts", domain.BatchSize))
		return
	}

	result, err := s.contacts.BatchUpsert(r.Context(), req.Contacts)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, batchUpsertResponse{
		Success:     result.Success,
		Imported:    result.Imported,
		Unprocessed: result.Unprocessed,
	})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")

	var (
		list []domain.Contact
		err  error
	)
	if group != "" {
		list, err = s.contacts.ListByGroup(r.Context(), group)
	} else {
		list, err = s.contacts.ListAll(r.Context())
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, map[string]any{"contacts": list, "count": len(list)})
}

func (s *Server) handleUpsertContact(w http.ResponseWriter, r *http.Request) {
	var contact domain.Contact
	if !httputil.Decode(w, r, &contact) {
		return
	}

	if err := s.contacts.Upsert(r.Context(), contact); err != nil {
		if errors.Is(err, contacts.ErrInvalidEmail) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"email": domain.NormalizeEmail(contact.Email)})
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		httputil.BadRequest(w, "invalid email parameter")
		return
	}

	contact, err := s.contacts.Get(r.Context(), email)
	if err != nil {
		if errors.Is(err, contacts.ErrNotFound) {
			httputil.NotFound(w, "contact not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, contact)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		httputil.BadRequest(w, "invalid email parameter")
		return
	}

	if err := s.contacts.Delete(r.Context(), email); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

type importResponse struct {
	Report  domain.ImportReport `json:"report"`
	Skipped []contacts.RowError `json:"skipped,omitempty"`
}

// handleImportCSV parses a CSV body and runs the chunked batch import.
// With import.endpoint_url configured the chunks go to the remote batch
// endpoint (the Lambda path); otherwise they hit the local store directly.
func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	parsed, err := contacts.ParseCSV(r.Body)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var upserter importer.BatchUpserter = s.contacts
	if s.cfg.Import.EndpointURL != "" {
		upserter = importer.NewHTTPUpserter(s.cfg.Import.EndpointURL, s.cfg.Import.Timeout())
	}

	job := importer.NewJob(upserter, parsed.Contacts, nil)
	report := job.Run(r.Context())
	report.TotalErrors += len(parsed.Skipped)

	httputil.OK(w, importResponse{Report: report, Skipped: parsed.Skipped})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")

	var (
		list []domain.Contact
		err  error
	)
	if group != "" {
		list, err = s.contacts.ListByGroup(r.Context(), group)
	} else {
		list, err = s.contacts.ListAll(r.Context())
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := contacts.WriteCSV(&buf, list); err != nil {
		httputil.InternalError(w, err)
		return
	}

	filename := fmt.Sprintf("contacts-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type sendCampaignRequest struct {
	Name           string           `json:"name"`
	Subject        string           `json:"subject"`
	Template       string           `json:"template"`
	FromName       string           `json:"from_name"`
	FromEmail      string           `json:"from_email"`
	ReplyTo        string           `json:"reply_to"`
	TargetGroup    string           `json:"target_group"`
	TargetContacts []domain.Contact `json:"target_contacts"`
	CC             []string         `json:"cc"`
	BCC            []string         `json:"bcc"`
	To             []string         `json:"to"`
	RateLimit      float64          `json:"rate_limit"`
}

type sendCampaignResponse struct {
	CampaignID      string `json:"campaign_id"`
	TotalRecipients int    `json:"total_recipients"`
	ExcludedCount   int    `json:"excluded_count"`
}

// handleSendCampaign resolves recipients and starts the dispatch in the
// background, answering immediately with the campaign ID for progress polls.
func (s *Server) handleSendCampaign(w http.ResponseWriter, r *http.Request) {
	var req sendCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Subject == "" || req.Template == "" {
		httputil.BadRequest(w, "subject and template are required")
		return
	}

	targets := req.TargetContacts
	if len(targets) == 0 && req.TargetGroup != "" {
		var err error
		targets, err = s.contacts.ListByGroup(r.Context(), req.TargetGroup)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
	}
	if len(targets) == 0 && len(req.CC) == 0 && len(req.BCC) == 0 && len(req.To) == 0 {
		httputil.BadRequest(w, "no recipients: provide target_contacts, target_group, or override lists")
		return
	}

	res := recipients.Resolve(targets, req.CC, req.BCC, req.To)

	campaign := &domain.Campaign{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Subject:     req.Subject,
		FromName:    req.FromName,
		FromEmail:   req.FromEmail,
		ReplyTo:     req.ReplyTo,
		Template:    req.Template,
		TargetGroup: req.TargetGroup,
		CC:          req.CC,
		BCC:         req.BCC,
		To:          req.To,
		RateLimit:   req.RateLimit,
		Status:      domain.CampaignDraft,
	}
	if err := s.campaigns.Put(r.Context(), campaign); err != nil {
		httputil.InternalError(w, err)
		return
	}

	go func() {
		if err := s.runner.Run(context.Background(), campaign, res); err != nil {
			logger.Error("campaign dispatch ended with error", "campaign_id", campaign.ID, "error", err.Error())
		}
	}()

	httputil.JSON(w, http.StatusAccepted, sendCampaignResponse{
		CampaignID:      campaign.ID,
		TotalRecipients: res.TotalSends(),
		ExcludedCount:   res.ExcludedCount,
	})
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := s.campaigns.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaigns": list, "count": len(list)})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := s.campaigns.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, campaigns.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, campaign)
}

// handleCampaignProgress prefers the live Redis record and falls back to the
// persisted campaign when the record expired or Redis is unavailable.
func (s *Server) handleCampaignProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.progress != nil {
		p, err := s.progress.Get(r.Context(), id)
		if err == nil {
			httputil.OK(w, p)
			return
		}
		if !errors.Is(err, dispatch.ErrProgressNotFound) {
			logger.Warn("progress lookup failed", "campaign_id", id, "error", err.Error())
		}
	}

	campaign, err := s.campaigns.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, campaigns.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, dispatch.Progress{
		CampaignID: campaign.ID,
		Status:     campaign.Status,
		Total:      campaign.TotalRecipients,
		Sent:       campaign.SentCount,
		Failed:     campaign.FailureCount,
		UpdatedAt:  campaign.UpdatedAt,
	})
}
