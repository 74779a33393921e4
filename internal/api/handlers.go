package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/motswedi/deductions/internal/deduction"
	"github.com/motswedi/deductions/internal/domain"
	"github.com/motswedi/deductions/internal/interchange"
	"github.com/motswedi/deductions/internal/metrics"
	"github.com/motswedi/deductions/internal/reconciliation"
	"github.com/motswedi/deductions/internal/repository"
	"github.com/motswedi/deductions/internal/suspense"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	deductionSvc *deduction.Service
	reconSvc     *reconciliation.Service
	suspenseSvc  *suspense.Service
	requestRepo  *repository.DeductionRepo
	reconRepo    *repository.ReconciliationRepo
	suspenseRepo *repository.SuspenseRepo
	tenantRepo   *repository.TenantRepo
	layout       interchange.RemittanceLayout
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoSubmittedBatch):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicatePeriod), errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRegulatorCapExceeded):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

type periodRequest struct {
	TenantID string `json:"tenant_id"`
	Month    int    `json:"month"`
	Year     int    `json:"year"`
}

func (p *periodRequest) validate() error {
	if p.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("month must be 1-12")
	}
	if p.Year < 2000 || p.Year > 2100 {
		return fmt.Errorf("year out of range")
	}
	return nil
}

// --- deduction batches ---

func (h *Handlers) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	var body periodRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := h.deductionSvc.GenerateBatch(body.TenantID, body.Month, body.Year)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.RequestFilter{
		TenantID: q.Get("tenant_id"),
		Status:   q.Get("status"),
		Year:     parseIntDefault(q.Get("year"), 0),
		Page:     parseIntDefault(q.Get("page"), 1),
		Limit:    parseIntDefault(q.Get("limit"), 50),
	}

	reqs, total, err := h.requestRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": reqs,
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})
}

func (h *Handlers) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := h.requestRepo.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req == nil {
		writeError(w, http.StatusNotFound, "deduction request not found")
		return
	}

	items, err := h.requestRepo.ItemsForRequest(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request": req,
		"items":   items,
	})
}

func (h *Handlers) ExportRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, name, err := h.deductionSvc.ExportFile(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handlers) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		SubmittedBy string `json:"submitted_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.SubmittedBy == "" {
		writeError(w, http.StatusBadRequest, "submitted_by is required")
		return
	}

	if err := h.deductionSvc.Submit(id, body.SubmittedBy); err != nil {
		writeDomainError(w, err)
		return
	}

	req, err := h.requestRepo.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// UpdateRequestStatus records the authority's acknowledgement of a submitted
// batch: processing once received, then completed or failed. Drafts are out
// of scope; they go through submit.
func (h *Handlers) UpdateRequestStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	status := domain.RequestStatus(body.Status)
	switch status {
	case domain.RequestProcessing, domain.RequestCompleted, domain.RequestFailed:
	default:
		writeError(w, http.StatusBadRequest, "status must be processing, completed or failed")
		return
	}

	if err := h.requestRepo.UpdateStatus(id, status); err != nil {
		writeDomainError(w, err)
		return
	}
	log.Printf("[api] Request %s moved to %s", id, status)

	req, err := h.requestRepo.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// --- reconciliation ---

// Reconcile accepts the authority's remittance file as multipart form data
// next to the period fields. Unparsable rows come back as warnings beside
// the created batch.
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	period := periodRequest{
		TenantID: r.FormValue("tenant_id"),
		Month:    parseIntDefault(r.FormValue("month"), 0),
		Year:     parseIntDefault(r.FormValue("year"), 0),
	}
	if err := period.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	records, rowErrs, err := interchange.ParseRemittance(data, h.layout)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	metrics.RemittanceRowErrors.Add(float64(len(rowErrs)))

	batch, err := h.reconSvc.Reconcile(period.TenantID, period.Month, period.Year, records)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"batch":    batch,
		"warnings": rowErrs,
	})
}

func (h *Handlers) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	batch, err := h.reconRepo.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if batch == nil {
		writeError(w, http.StatusNotFound, "reconciliation batch not found")
		return
	}

	items, err := h.reconRepo.ItemsForBatch(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batch": batch,
		"items": items,
	})
}

func (h *Handlers) PostJournals(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		PostedBy string `json:"posted_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.PostedBy == "" {
		writeError(w, http.StatusBadRequest, "posted_by is required")
		return
	}

	if err := h.reconSvc.PostJournals(id, body.PostedBy); err != nil {
		writeDomainError(w, err)
		return
	}

	batch, err := h.reconRepo.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// --- suspense ledger ---

func (h *Handlers) ListSuspense(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.SuspenseFilter{
		TenantID: q.Get("tenant_id"),
		Status:   q.Get("status"),
		Year:     parseIntDefault(q.Get("year"), 0),
		Month:    parseIntDefault(q.Get("month"), 0),
		Page:     parseIntDefault(q.Get("page"), 1),
		Limit:    parseIntDefault(q.Get("limit"), 50),
	}

	entries, total, err := h.suspenseRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"page":    filter.Page,
		"limit":   filter.Limit,
	})
}

func (h *Handlers) AllocateSuspense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		MemberID    string `json:"member_id"`
		AllocatedBy string `json:"allocated_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.MemberID == "" || body.AllocatedBy == "" {
		writeError(w, http.StatusBadRequest, "member_id and allocated_by are required")
		return
	}

	if err := h.suspenseSvc.Allocate(id, body.MemberID, body.AllocatedBy); err != nil {
		writeDomainError(w, err)
		return
	}
	h.respondSuspense(w, id)
}

func (h *Handlers) RefundSuspense(w http.ResponseWriter, r *http.Request) {
	h.resolveSuspense(w, r, h.suspenseSvc.Refund)
}

func (h *Handlers) WriteOffSuspense(w http.ResponseWriter, r *http.Request) {
	h.resolveSuspense(w, r, h.suspenseSvc.WriteOff)
}

func (h *Handlers) resolveSuspense(w http.ResponseWriter, r *http.Request, action func(id, by, notes string) error) {
	id := chi.URLParam(r, "id")

	var body struct {
		ResolvedBy string `json:"resolved_by"`
		Notes      string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.ResolvedBy == "" {
		writeError(w, http.StatusBadRequest, "resolved_by is required")
		return
	}

	if err := action(id, body.ResolvedBy, body.Notes); err != nil {
		writeDomainError(w, err)
		return
	}
	h.respondSuspense(w, id)
}

func (h *Handlers) respondSuspense(w http.ResponseWriter, id string) {
	entry, err := h.suspenseRepo.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// --- dashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenantRepo.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type tenantSummary struct {
		Tenant       domain.Tenant                 `json:"tenant"`
		LatestBatch  *domain.DeductionRequest      `json:"latest_batch,omitempty"`
		Suspense     *repository.SuspenseSummary   `json:"suspense"`
		RecentRecons []domain.ReconciliationBatch  `json:"recent_reconciliations,omitempty"`
	}

	var summaries []tenantSummary
	for _, t := range tenants {
		reqs, _, err := h.requestRepo.List(repository.RequestFilter{TenantID: t.ID, Limit: 1})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		var latest *domain.DeductionRequest
		if len(reqs) > 0 {
			latest = &reqs[0]
		}

		susp, err := h.suspenseRepo.Summary(t.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		recons, err := h.reconRepo.ListForTenant(t.ID, 3)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		summaries = append(summaries, tenantSummary{
			Tenant:       t,
			LatestBatch:  latest,
			Suspense:     susp,
			RecentRecons: recons,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"tenants": summaries})
}
