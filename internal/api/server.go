// Package api exposes the HTTP surface: the contact batch-upsert endpoint
// consumed by the importer, contact CRUD with CSV import/export, and the
// campaign send and progress endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appconfig "github.com/ignite/campaign-sender/internal/config"
	"github.com/ignite/campaign-sender/internal/dispatch"
	"github.com/ignite/campaign-sender/internal/domain"
	"github.com/ignite/campaign-sender/internal/pkg/logger"
	"github.com/ignite/campaign-sender/internal/recipients"
)

// ContactStore is the contact persistence surface the handlers use.
type ContactStore interface {
	Upsert(ctx context.Context, contact domain.Contact) error
	BatchUpsert(ctx context.Context, batch []domain.Contact) (domain.BatchResult, error)
	Get(ctx context.Context, email string) (domain.Contact, error)
	Delete(ctx context.Context, email string) error
	ListAll(ctx context.Context) ([]domain.Contact, error)
	ListByGroup(ctx context.Context, group string) ([]domain.Contact, error)
}

// CampaignStore is the campaign persistence surface the handlers use.
type CampaignStore interface {
	Put(ctx context.Context, c *domain.Campaign) error
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context) ([]domain.Campaign, error)
}

// CampaignRunner executes a resolved campaign send.
type CampaignRunner interface {
	Run(ctx context.Context, campaign *domain.Campaign, res *recipients.Resolution) error
}

// ProgressReader fetches live dispatch progress.
type ProgressReader interface {
	Get(ctx context.Context, campaignID string) (dispatch.Progress, error)
}

// Server is the HTTP API server.
type Server struct {
	router    chi.Router
	cfg       *appconfig.Config
	contacts  ContactStore
	campaigns CampaignStore
	runner    CampaignRunner
	progress  ProgressReader
}

// NewServer wires the router. progress may be nil when Redis is not
// configured; the progress endpoint then falls back to the stored record.
func NewServer(cfg *appconfig.Config, contacts ContactStore, campaigns CampaignStore, runner CampaignRunner, progress ProgressReader) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		cfg:       cfg,
		contacts:  contacts,
		campaigns: campaigns,
		runner:    runner,
		progress:  progress,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/contacts", func(r chi.Router) {
		r.Get("/", s.handleListContacts)
		r.Post("/", s.handleUpsertContact)
		r.Post("/batch", s.handleBatchUpsert)
		r.Post("/import", s.handleImportCSV)
		r.Get("/export", s.handleExportCSV)
		r.Get("/{email}", s.handleGetContact)
		r.Delete("/{email}", s.handleDeleteContact)
	})

	s.router.Route("/campaigns", func(r chi.Router) {
		r.Get("/", s.handleListCampaigns)
		r.Post("/send", s.handleSendCampaign)
		r.Get("/{id}", s.handleGetCampaign)
		r.Get("/{id}/progress", s.handleCampaignProgress)
	})
}

// Handler returns the root http.Handler, for tests and Lambda adapters.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.GetHost(), s.cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
