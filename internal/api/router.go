package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harborview/posrecon/internal/ingestion"
	"github.com/harborview/posrecon/internal/recon"
	"github.com/harborview/posrecon/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	positionRepo *repository.PositionRepo,
	runRepo *repository.RunRepo,
	ingestionSvc *ingestion.Service,
	reconSvc *recon.Service,
) http.Handler {
	h := &Handlers{
		positionRepo: positionRepo,
		runRepo:      runRepo,
		ingestionSvc: ingestionSvc,
		reconSvc:     reconSvc,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Ingestion.
		r.Post("/positions/ingest", h.IngestPositions)

		// Reconciliation.
		r.Post("/reconcile", h.RunReconciliation)

		// Runs.
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)
		r.Get("/runs/{id}/breaks", h.GetRunBreaks)
		r.Get("/runs/{id}/report.csv", h.GetRunReportCSV)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
