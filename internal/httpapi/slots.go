package httpapi

import (
	"context"
	"net/http"

	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/internal/schedule"
	"github.com/bronn-dev/dentalbridge/internal/tenancy"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

type slotRouter interface {
	RouteWithFallback(ctx context.Context, tenantID string, proc model.Procedure, needsSedation bool, prefs schedule.Preferences) (*schedule.TierResult, error)
}

type procedureCatalog interface {
	ResolveProcedure(ctx context.Context, conditionKey, tenantID string) (*model.Procedure, error)
	ProcedureByName(ctx context.Context, tenantID, name string) (*model.Procedure, error)
	ListProcedures(ctx context.Context, tenantID string) ([]model.Procedure, error)
}

// SlotsHandler serves slot search and the procedure catalog reads.
type SlotsHandler struct {
	router  slotRouter
	catalog procedureCatalog
	logger  *logging.Logger
}

// NewSlotsHandler wires a slot search surface.
func NewSlotsHandler(router slotRouter, catalog procedureCatalog, logger *logging.Logger) *SlotsHandler {
	if router == nil {
		panic("httpapi: slot router required")
	}
	if catalog == nil {
		panic("httpapi: procedure catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotsHandler{router: router, catalog: catalog, logger: logger}
}

type slotSearchRequest struct {
	TenantID          string `json:"tenant_id"`
	Condition         string `json:"condition"`
	ProcedureName     string `json:"procedure_name"`
	NeedsSedation     bool   `json:"needs_sedation"`
	PreferredClinicID string `json:"preferred_clinic_id"`
	PreferredDoctorID string `json:"preferred_doctor_id"`
}

// Search resolves the procedure and runs the tiered slot search.
// POST /v1/slots/search
func (h *SlotsHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req slotSearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		req.TenantID, _ = tenancy.TenantIDFromContext(r.Context())
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id required")
		return
	}
	if _, err := tenancy.ParseTenantID(req.TenantID); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "malformed tenant id")
		return
	}
	if req.Condition == "" && req.ProcedureName == "" {
		writeError(w, http.StatusBadRequest, "condition or procedure_name required")
		return
	}

	var (
		proc *model.Procedure
		err  error
	)
	if req.ProcedureName != "" {
		proc, err = h.catalog.ProcedureByName(r.Context(), req.TenantID, req.ProcedureName)
	} else {
		proc, err = h.catalog.ResolveProcedure(r.Context(), req.Condition, req.TenantID)
	}
	if err != nil {
		h.logger.Error("procedure resolution failed", "error", err, "tenant_id", req.TenantID)
		writeError(w, http.StatusInternalServerError, "procedure lookup failed")
		return
	}
	if proc == nil {
		writeError(w, http.StatusNotFound, "no matching procedure in catalog")
		return
	}

	prefs := schedule.Preferences{
		ClinicID: req.PreferredClinicID,
		DoctorID: req.PreferredDoctorID,
	}
	if prefs.ClinicID == "" {
		prefs.ClinicID = req.TenantID
	}
	result, err := h.router.RouteWithFallback(r.Context(), req.TenantID, *proc, req.NeedsSedation || proc.RequiresAnesthetist, prefs)
	if err != nil {
		h.logger.Error("slot search failed", "error", err, "tenant_id", req.TenantID, "proc_id", proc.ProcID)
		writeError(w, http.StatusInternalServerError, "slot search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"procedure": proc,
		"result":    result,
	})
}

// ListProcedures returns the tenant's bookable catalog.
// GET /v1/procedures
func (h *SlotsHandler) ListProcedures(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		tenantID, _ = tenancy.TenantIDFromContext(r.Context())
	}
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id required")
		return
	}
	procs, err := h.catalog.ListProcedures(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("procedure list failed", "error", err, "tenant_id", tenantID)
		writeError(w, http.StatusInternalServerError, "procedure list failed")
		return
	}
	if procs == nil {
		procs = []model.Procedure{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"procedures": procs})
}
