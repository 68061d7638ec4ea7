package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/harborview/posrecon/internal/config"
	"github.com/harborview/posrecon/internal/domain"
	"github.com/harborview/posrecon/internal/ingestion"
	"github.com/harborview/posrecon/internal/recon"
	"github.com/harborview/posrecon/internal/report"
	"github.com/harborview/posrecon/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	positionRepo *repository.PositionRepo
	runRepo      *repository.RunRepo
	ingestionSvc *ingestion.Service
	reconSvc     *recon.Service
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
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

// --- IngestPositions ---

func (h *Handlers) IngestPositions(w http.ResponseWriter, r *http.Request) {
	// Accept multipart form.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	source := r.FormValue("source")
	format := r.FormValue("format")
	if source == "" || format == "" {
		writeError(w, http.StatusBadRequest, "source and format are required")
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

	result, err := h.ingestionSvc.IngestFile(data, domain.SourceID(source), format)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- RunReconciliation ---

type reconcileRequest struct {
	TradeDate string              `json:"trade_date"`
	Pairs     []domain.SourcePair `json:"source_pairs,omitempty"`
}

func (h *Handlers) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TradeDate == "" {
		writeError(w, http.StatusBadRequest, "trade_date is required")
		return
	}

	run, err := h.reconSvc.Run(req.TradeDate, req.Pairs)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, config.ErrConfiguration) || errors.Is(err, recon.ErrInvariant) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// --- Runs ---

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), 50)
	page := parseIntDefault(q.Get("page"), 1)

	runs, total, err := h.runRepo.List(limit, (page-1)*limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) GetRunBreaks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	filter := repository.BreakFilter{
		MinSeverity: domain.Severity(q.Get("severity")),
		Type:        domain.BreakType(q.Get("type")),
	}
	if filter.MinSeverity != "" && filter.MinSeverity.Rank() < 0 {
		writeError(w, http.StatusBadRequest, "unknown severity: "+string(filter.MinSeverity))
		return
	}

	breaks, err := h.runRepo.GetBreaks(id, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": id,
		"breaks": breaks,
		"count":  len(breaks),
	})
}

func (h *Handlers) GetRunReportCSV(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=recon_breaks_%s.csv", run.RunDate))
	if err := report.WriteCSV(w, run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("write csv report")
	}
}

// --- Dashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	latest, err := h.runRepo.Latest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	totalImpact, err := h.runRepo.TotalImpact()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	positions, err := h.positionRepo.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{
		"positions_staged": positions,
		"total_impact_usd": totalImpact,
	}
	if latest != nil {
		resp["latest_run_id"] = latest.ID
		resp["latest_run_date"] = latest.RunDate
		resp["latest_breaks"] = len(latest.Breaks)
		resp["latest_by_severity"] = latest.Metrics.BySeverity
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) loadRun(w http.ResponseWriter, r *http.Request) (*domain.ReconciliationRun, bool) {
	id := chi.URLParam(r, "id")
	run, err := h.runRepo.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found: "+id)
		return nil, false
	}
	return run, true
}
