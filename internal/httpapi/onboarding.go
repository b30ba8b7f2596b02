package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bronn-dev/dentalbridge/internal/compliance"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// catalogWriter is the write surface of the resource catalog.
type catalogWriter interface {
	CreateClinic(ctx context.Context, c *model.Clinic) error
	ClinicByID(ctx context.Context, clinicID string) (*model.Clinic, error)
	CreateRoom(ctx context.Context, r *model.Room) error
	CreateDoctor(ctx context.Context, d *model.Doctor) error
	CreateSpecialization(ctx context.Context, spec *model.Specialization) error
	LinkDoctorSpecialization(ctx context.Context, doctorID string, specID int) error
	CreateStaff(ctx context.Context, st *model.Staff) error
	CreateProcedure(ctx context.Context, p *model.Procedure) error
	CreateTemplate(ctx context.Context, t *model.AvailabilityTemplate) error
	SetOnboardingComplete(ctx context.Context, clinicID string, complete bool) error
}

// OnboardingHandler builds out a tenant's catalog: clinic, rooms, providers,
// staff, procedures, and availability templates.
type OnboardingHandler struct {
	catalog catalogWriter
	audit   auditRecorder
	logger  *logging.Logger
}

// NewOnboardingHandler wires the onboarding surface.
func NewOnboardingHandler(catalog catalogWriter, audit auditRecorder, logger *logging.Logger) *OnboardingHandler {
	if catalog == nil {
		panic("httpapi: catalog writer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OnboardingHandler{catalog: catalog, audit: audit, logger: logger}
}

// CreateClinic registers a new tenant.
// POST /v1/admin/clinics
func (h *OnboardingHandler) CreateClinic(w http.ResponseWriter, r *http.Request) {
	var clinic model.Clinic
	if !decodeBody(w, r, &clinic) {
		return
	}
	if strings.TrimSpace(clinic.Name) == "" {
		writeError(w, http.StatusBadRequest, "clinic name required")
		return
	}
	if err := h.catalog.CreateClinic(r.Context(), &clinic); err != nil {
		h.logger.Error("clinic create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "clinic create failed")
		return
	}
	h.auditCatalog(r, clinic.ClinicID, "clinic", clinic.ClinicID)
	writeJSON(w, http.StatusCreated, clinic)
}

// GetClinic returns a clinic and its onboarding state.
// GET /v1/admin/clinics/{clinicID}
func (h *OnboardingHandler) GetClinic(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	clinic, err := h.catalog.ClinicByID(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("clinic lookup failed", "error", err, "clinic_id", clinicID)
		writeError(w, http.StatusInternalServerError, "clinic lookup failed")
		return
	}
	if clinic == nil {
		writeError(w, http.StatusNotFound, "unknown clinic")
		return
	}
	writeJSON(w, http.StatusOK, clinic)
}

// CreateRoom adds an operatory to a clinic.
// POST /v1/admin/clinics/{clinicID}/rooms
func (h *OnboardingHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var room model.Room
	if !decodeBody(w, r, &room) {
		return
	}
	room.ClinicID = chi.URLParam(r, "clinicID")
	if strings.TrimSpace(room.Name) == "" {
		writeError(w, http.StatusBadRequest, "room name required")
		return
	}
	if err := h.catalog.CreateRoom(r.Context(), &room); err != nil {
		h.logger.Error("room create failed", "error", err, "clinic_id", room.ClinicID)
		writeError(w, http.StatusInternalServerError, "room create failed")
		return
	}
	h.auditCatalog(r, room.ClinicID, "room", room.RoomID)
	writeJSON(w, http.StatusCreated, room)
}

type createDoctorRequest struct {
	model.Doctor
	Specializations []string `json:"specializations"`
}

// CreateDoctor adds a provider, creating and linking any named
// specializations in one call.
// POST /v1/admin/clinics/{clinicID}/doctors
func (h *OnboardingHandler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var req createDoctorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.TenantID = chi.URLParam(r, "clinicID")
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "doctor name required")
		return
	}
	if err := h.catalog.CreateDoctor(r.Context(), &req.Doctor); err != nil {
		h.logger.Error("doctor create failed", "error", err, "clinic_id", req.TenantID)
		writeError(w, http.StatusInternalServerError, "doctor create failed")
		return
	}
	for _, name := range req.Specializations {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		spec := model.Specialization{TenantID: req.TenantID, Name: name}
		if err := h.catalog.CreateSpecialization(r.Context(), &spec); err != nil {
			h.logger.Error("specialization create failed", "error", err, "name", name)
			writeError(w, http.StatusInternalServerError, "specialization create failed")
			return
		}
		if err := h.catalog.LinkDoctorSpecialization(r.Context(), req.DoctorID, spec.SpecID); err != nil {
			h.logger.Error("specialization link failed", "error", err, "doctor_id", req.DoctorID)
			writeError(w, http.StatusInternalServerError, "specialization link failed")
			return
		}
	}
	h.auditCatalog(r, req.TenantID, "doctor", req.DoctorID)
	writeJSON(w, http.StatusCreated, req.Doctor)
}

// CreateStaff adds a non-provider resource.
// POST /v1/admin/clinics/{clinicID}/staff
func (h *OnboardingHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var staff model.Staff
	if !decodeBody(w, r, &staff) {
		return
	}
	staff.TenantID = chi.URLParam(r, "clinicID")
	if strings.TrimSpace(staff.Name) == "" || strings.TrimSpace(staff.Role) == "" {
		writeError(w, http.StatusBadRequest, "staff name and role required")
		return
	}
	if err := h.catalog.CreateStaff(r.Context(), &staff); err != nil {
		h.logger.Error("staff create failed", "error", err, "clinic_id", staff.TenantID)
		writeError(w, http.StatusInternalServerError, "staff create failed")
		return
	}
	h.auditCatalog(r, staff.TenantID, "staff", staff.StaffID)
	writeJSON(w, http.StatusCreated, staff)
}

type createProcedureRequest struct {
	model.Procedure
	RequiredSpecialization string `json:"required_specialization"`
}

// CreateProcedure adds a catalog entry. The required specialization may be
// given by name; unknown names are created on the fly.
// POST /v1/admin/clinics/{clinicID}/procedures
func (h *OnboardingHandler) CreateProcedure(w http.ResponseWriter, r *http.Request) {
	var req createProcedureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.TenantID = chi.URLParam(r, "clinicID")
	if strings.TrimSpace(req.Name) == "" || req.BaseDurationMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "procedure name and positive base duration required")
		return
	}
	if req.RequiredSpecialization != "" {
		spec := model.Specialization{TenantID: req.TenantID, Name: strings.TrimSpace(req.RequiredSpecialization)}
		if err := h.catalog.CreateSpecialization(r.Context(), &spec); err != nil {
			h.logger.Error("specialization create failed", "error", err, "name", spec.Name)
			writeError(w, http.StatusInternalServerError, "specialization create failed")
			return
		}
		req.RequiredSpecID = spec.SpecID
	}
	if req.RequiredSpecID == 0 {
		writeError(w, http.StatusBadRequest, "required_spec_id or required_specialization required")
		return
	}
	if err := h.catalog.CreateProcedure(r.Context(), &req.Procedure); err != nil {
		h.logger.Error("procedure create failed", "error", err, "clinic_id", req.TenantID)
		writeError(w, http.StatusInternalServerError, "procedure create failed")
		return
	}
	h.auditCatalog(r, req.TenantID, "procedure", req.Name)
	writeJSON(w, http.StatusCreated, req.Procedure)
}

// CreateTemplate declares one weekly availability window for a doctor or
// staff member at this clinic.
// POST /v1/admin/clinics/{clinicID}/templates
func (h *OnboardingHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl model.AvailabilityTemplate
	if !decodeBody(w, r, &tmpl) {
		return
	}
	tmpl.ClinicID = chi.URLParam(r, "clinicID")
	if tmpl.ResourceID == "" || tmpl.ResourceType == "" {
		writeError(w, http.StatusBadRequest, "resource_id and resource_type required")
		return
	}
	if tmpl.ResourceType != model.ResourceDoctor && tmpl.ResourceType != model.ResourceStaff {
		writeError(w, http.StatusBadRequest, "resource_type must be DOCTOR or STAFF")
		return
	}
	if tmpl.DayOfWeek < 0 || tmpl.DayOfWeek > 6 {
		writeError(w, http.StatusBadRequest, "day_of_week must be 0-6")
		return
	}
	if err := h.catalog.CreateTemplate(r.Context(), &tmpl); err != nil {
		h.logger.Error("template create failed", "error", err, "clinic_id", tmpl.ClinicID)
		writeError(w, http.StatusInternalServerError, "template create failed")
		return
	}
	h.auditCatalog(r, tmpl.ClinicID, "availability_template", tmpl.TemplateID)
	writeJSON(w, http.StatusCreated, tmpl)
}

// Complete flips the tenant's onboarding flag.
// POST /v1/admin/clinics/{clinicID}/complete
func (h *OnboardingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	if err := h.catalog.SetOnboardingComplete(r.Context(), clinicID, true); err != nil {
		h.logger.Error("onboarding complete failed", "error", err, "clinic_id", clinicID)
		writeError(w, http.StatusInternalServerError, "onboarding complete failed")
		return
	}
	h.auditCatalog(r, clinicID, "clinic", clinicID)
	writeJSON(w, http.StatusOK, map[string]any{"clinic_id": clinicID, "onboarding_complete": true})
}

func (h *OnboardingHandler) auditCatalog(r *http.Request, tenantID, entityType, entityID string) {
	if h.audit == nil {
		return
	}
	event := model.AuditEvent{
		TenantID:   tenantID,
		Action:     compliance.ActionCatalogUpdated,
		EntityType: entityType,
		EntityID:   entityID,
		IP:         clientIP(r),
	}
	if claims, ok := ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		actor := claims.Subject
		event.ActorID = &actor
	}
	if err := h.audit.Record(r.Context(), event); err != nil {
		h.logger.Error("audit record failed", "error", err, "action", compliance.ActionCatalogUpdated)
	}
}
