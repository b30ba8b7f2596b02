package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bronn-dev/dentalbridge/internal/auth"
	"github.com/bronn-dev/dentalbridge/internal/compliance"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/internal/tenancy"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

type patientDirectory interface {
	PatientByPhone(ctx context.Context, tenantID, phone string) (*model.Patient, error)
	CreatePatient(ctx context.Context, p *model.Patient) error
}

// PatientsHandler registers chat patients and issues their tokens.
type PatientsHandler struct {
	directory patientDirectory
	issuer    *auth.Issuer
	audit     auditRecorder
	logger    *logging.Logger
}

// NewPatientsHandler wires the patient registration surface.
func NewPatientsHandler(dir patientDirectory, issuer *auth.Issuer, audit auditRecorder, logger *logging.Logger) *PatientsHandler {
	if dir == nil {
		panic("httpapi: patient directory required")
	}
	if issuer == nil {
		panic("httpapi: token issuer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PatientsHandler{directory: dir, issuer: issuer, audit: audit, logger: logger}
}

type registerRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	DOB      string `json:"dob,omitempty"` // YYYY-MM-DD
}

type registerResponse struct {
	Patient *model.Patient `json:"patient"`
	Token   string         `json:"token"`
	IsNew   bool           `json:"is_new"`
}

// Register creates or recognizes a patient by phone and returns a token the
// widget uses for booking. Re-registering with a known phone is a login, not
// an error.
// POST /v1/patients/register
func (h *PatientsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	req.Name = strings.TrimSpace(req.Name)
	if req.TenantID == "" || req.Phone == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, name, and phone required")
		return
	}
	if _, err := tenancy.ParseTenantID(req.TenantID); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "malformed tenant id")
		return
	}

	existing, err := h.directory.PatientByPhone(r.Context(), req.TenantID, req.Phone)
	if err != nil {
		h.logger.Error("patient lookup failed", "error", err, "tenant_id", req.TenantID)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	if existing != nil {
		token, err := h.issuer.IssuePatient(existing.PatientID)
		if err != nil {
			h.logger.Error("token issue failed", "error", err)
			writeError(w, http.StatusInternalServerError, "registration failed")
			return
		}
		writeJSON(w, http.StatusOK, registerResponse{Patient: existing, Token: token, IsNew: false})
		return
	}

	patient := &model.Patient{
		TenantID: &req.TenantID,
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    strings.TrimSpace(req.Email),
		IsNew:    true,
	}
	if req.DOB != "" {
		dob, err := time.Parse("2006-01-02", req.DOB)
		if err != nil {
			writeError(w, http.StatusBadRequest, "dob must be YYYY-MM-DD")
			return
		}
		patient.DOB = &dob
	}
	if err := h.directory.CreatePatient(r.Context(), patient); err != nil {
		h.logger.Error("patient create failed", "error", err, "tenant_id", req.TenantID)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	token, err := h.issuer.IssuePatient(patient.PatientID)
	if err != nil {
		h.logger.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	if h.audit != nil {
		if err := h.audit.Record(r.Context(), model.AuditEvent{
			TenantID:   req.TenantID,
			PatientID:  &patient.PatientID,
			Action:     compliance.ActionPatientRegistered,
			EntityType: "patient",
			EntityID:   patient.PatientID,
			IP:         clientIP(r),
		}); err != nil {
			h.logger.Error("audit record failed", "error", err, "action", compliance.ActionPatientRegistered)
		}
	}
	writeJSON(w, http.StatusCreated, registerResponse{Patient: patient, Token: token, IsNew: true})
}
