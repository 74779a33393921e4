package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/motswedi/deductions/internal/deduction"
	"github.com/motswedi/deductions/internal/interchange"
	"github.com/motswedi/deductions/internal/reconciliation"
	"github.com/motswedi/deductions/internal/repository"
	"github.com/motswedi/deductions/internal/suspense"
)

// NewRouter creates the Chi router with all API routes mounted. The layout
// describes the authority's remittance file shape for this deployment.
func NewRouter(
	deductionSvc *deduction.Service,
	reconSvc *reconciliation.Service,
	suspenseSvc *suspense.Service,
	requestRepo *repository.DeductionRepo,
	reconRepo *repository.ReconciliationRepo,
	suspenseRepo *repository.SuspenseRepo,
	tenantRepo *repository.TenantRepo,
	layout interchange.RemittanceLayout,
) http.Handler {
	h := &Handlers{
		deductionSvc: deductionSvc,
		reconSvc:     reconSvc,
		suspenseSvc:  suspenseSvc,
		requestRepo:  requestRepo,
		reconRepo:    reconRepo,
		suspenseRepo: suspenseRepo,
		tenantRepo:   tenantRepo,
		layout:       layout,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Deduction batches.
		r.Post("/deductions/generate", h.GenerateBatch)
		r.Get("/deductions", h.ListRequests)
		r.Get("/deductions/{id}", h.GetRequest)
		r.Get("/deductions/{id}/export", h.ExportRequest)
		r.Post("/deductions/{id}/submit", h.SubmitRequest)
		r.Post("/deductions/{id}/status", h.UpdateRequestStatus)

		// Reconciliation.
		r.Post("/reconciliations", h.Reconcile)
		r.Get("/reconciliations/{id}", h.GetReconciliation)
		r.Post("/reconciliations/{id}/post-journals", h.PostJournals)

		// Suspense ledger.
		r.Get("/suspense", h.ListSuspense)
		r.Post("/suspense/{id}/allocate", h.AllocateSuspense)
		r.Post("/suspense/{id}/refund", h.RefundSuspense)
		r.Post("/suspense/{id}/write-off", h.WriteOffSuspense)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
