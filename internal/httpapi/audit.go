package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bronn-dev/dentalbridge/internal/compliance"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

type auditQuerier interface {
	Query(ctx context.Context, filter compliance.Filter) ([]model.AuditEvent, error)
}

type auditExporter interface {
	Enabled() bool
	ExportDay(ctx context.Context, tenantID string, day time.Time) (int, error)
}

// AuditHandler serves the tenant audit trail and its archive export.
type AuditHandler struct {
	audit    auditQuerier
	exporter auditExporter
	logger   *logging.Logger
}

// NewAuditHandler wires the audit review surface. A nil exporter disables the
// export endpoint.
func NewAuditHandler(audit auditQuerier, exporter auditExporter, logger *logging.Logger) *AuditHandler {
	if audit == nil {
		panic("httpapi: audit service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AuditHandler{audit: audit, exporter: exporter, logger: logger}
}

// Query lists audit events, newest first.
// GET /v1/admin/clinics/{clinicID}/audit
func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := compliance.Filter{
		TenantID:  chi.URLParam(r, "clinicID"),
		Action:    q.Get("action"),
		PatientID: q.Get("patient_id"),
		Limit:     100,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			writeError(w, http.StatusBadRequest, "invalid limit; must be 1-1000")
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since time, use RFC3339 format")
			return
		}
		filter.Since = since
	}
	if raw := q.Get("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until time, use RFC3339 format")
			return
		}
		filter.Until = until
	}

	events, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit query failed", "error", err, "tenant_id", filter.TenantID)
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	if events == nil {
		events = []model.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// Export archives one day of audit events to object storage.
// POST /v1/admin/clinics/{clinicID}/audit/export?day=YYYY-MM-DD
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil || !h.exporter.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "audit archive not configured")
		return
	}
	day, err := time.Parse("2006-01-02", r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	tenantID := chi.URLParam(r, "clinicID")
	count, err := h.exporter.ExportDay(r.Context(), tenantID, day)
	if err != nil {
		h.logger.Error("audit export failed", "error", err, "tenant_id", tenantID)
		writeError(w, http.StatusInternalServerError, "audit export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"day":       day.Format("2006-01-02"),
		"exported":  count,
	})
}
