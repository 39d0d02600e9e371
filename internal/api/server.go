// Package api exposes the CRM over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/lead-crm/internal/borrower"
	"github.com/sells-group/lead-crm/internal/lead"
	"github.com/sells-group/lead-crm/internal/model"
	"github.com/sells-group/lead-crm/internal/store"
)

// Checker produces eligibility verdicts.
type Checker interface {
	Check(ctx context.Context, raw string) model.EligibilityResult
}

// Submitter stores new leads.
type Submitter interface {
	Submit(ctx context.Context, input lead.Input) (*lead.Result, error)
}

// Syncer applies borrower payloads.
type Syncer interface {
	Sync(ctx context.Context, borrowerID string, raw []byte) (*borrower.SyncResult, error)
}

// Store is the read side the handlers need.
type Store interface {
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter store.LeadFilter) ([]model.Lead, error)
	UpdateLeadStatus(ctx context.Context, id string, status model.LeadStatus, notes string) error
	GetBorrower(ctx context.Context, id string) (*model.Borrower, error)
	ListLoanPlans(ctx context.Context, borrowerID string) ([]model.LoanPlan, error)
	Ping(ctx context.Context) error
}

// Deps holds everything the router serves.
type Deps struct {
	Checker     Checker
	Intake      Submitter
	Syncer      Syncer
	Store       Store
	APIToken    string
	CORSOrigins []string
}

// Server holds the handler dependencies.
type Server struct {
	checker Checker
	intake  Submitter
	syncer  Syncer
	store   Store
}

// NewRouter builds the HTTP handler. /health and /metrics are public; the
// /api routes require the bearer token when one is configured.
func NewRouter(d Deps) http.Handler {
	s := &Server{checker: d.Checker, intake: d.Intake, syncer: d.Syncer, store: d.Store}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(d.APIToken))
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/eligibility", s.handleEligibility)

		r.Route("/leads", func(r chi.Router) {
			r.Post("/", s.handleCreateLead)
			r.Get("/", s.handleListLeads)
			r.Get("/{id}", s.handleGetLead)
			r.Patch("/{id}/status", s.handleUpdateLeadStatus)
		})

		r.Route("/borrowers/{id}", func(r chi.Router) {
			r.Post("/sync", s.handleSyncBorrower)
			r.Get("/loans", s.handleListLoans)
		})
	})

	return r
}
