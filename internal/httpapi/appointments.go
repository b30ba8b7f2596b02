package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bronn-dev/dentalbridge/internal/auth"
	"github.com/bronn-dev/dentalbridge/internal/booking"
	"github.com/bronn-dev/dentalbridge/internal/compliance"
	"github.com/bronn-dev/dentalbridge/internal/events"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/internal/schedule"
	"github.com/bronn-dev/dentalbridge/internal/tenancy"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

type bookingService interface {
	Book(ctx context.Context, tenantID string, slot schedule.SlotOption, patientID string, procID int) (*model.Appointment, error)
	Cancel(ctx context.Context, apptID string) error
	Get(ctx context.Context, apptID string) (*model.Appointment, error)
	ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error)
}

// AppointmentsHandler serves the booking write path and appointment reads.
type AppointmentsHandler struct {
	booking bookingService
	outbox  outboxAppender
	audit   auditRecorder
	logger  *logging.Logger
}

// NewAppointmentsHandler wires the booking surface.
func NewAppointmentsHandler(svc bookingService, outbox outboxAppender, audit auditRecorder, logger *logging.Logger) *AppointmentsHandler {
	if svc == nil {
		panic("httpapi: booking service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{booking: svc, outbox: outbox, audit: audit, logger: logger}
}

type bookRequest struct {
	TenantID  string              `json:"tenant_id"`
	PatientID string              `json:"patient_id"`
	ProcID    int                 `json:"proc_id"`
	Slot      schedule.SlotOption `json:"slot"`
}

// Book confirms one proposed slot.
// POST /v1/appointments
func (h *AppointmentsHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	if claims != nil && claims.Kind == auth.KindPatient {
		// Patient tokens book for themselves only.
		req.PatientID = claims.PatientID
	}
	if req.TenantID == "" {
		req.TenantID, _ = tenancy.TenantIDFromContext(r.Context())
	}
	if req.TenantID == "" {
		req.TenantID = req.Slot.ClinicID
	}
	if req.TenantID == "" || req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and patient_id required")
		return
	}
	if _, err := tenancy.ParseTenantID(req.TenantID); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "malformed tenant id")
		return
	}

	appt, err := h.booking.Book(r.Context(), req.TenantID, req.Slot, req.PatientID, req.ProcID)
	if errors.Is(err, booking.ErrSlotUnavailable) {
		writeError(w, http.StatusConflict, "slot no longer available, please pick another")
		return
	}
	if err != nil {
		h.logger.Error("booking failed", "error", err, "tenant_id", req.TenantID)
		writeError(w, http.StatusInternalServerError, "booking failed")
		return
	}

	h.emitBooked(r.Context(), req.TenantID, appt)
	h.recordAudit(r.Context(), claims, model.AuditEvent{
		TenantID:   req.TenantID,
		PatientID:  &appt.PatientID,
		Action:     compliance.ActionBookingCreated,
		EntityType: "appointment",
		EntityID:   appt.ApptID,
		Details: map[string]any{
			"procedure": appt.ProcedureType,
			"doctor_id": appt.DoctorID,
			"start":     appt.StartTime,
		},
		IP: clientIP(r),
	})
	writeJSON(w, http.StatusCreated, appt)
}

// Cancel releases a scheduled appointment.
// DELETE /v1/appointments/{apptID}
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	apptID := chi.URLParam(r, "apptID")
	claims, _ := ClaimsFromContext(r.Context())

	appt, err := h.booking.Get(r.Context(), apptID)
	if err != nil {
		h.logger.Error("appointment lookup failed", "error", err, "appt_id", apptID)
		writeError(w, http.StatusInternalServerError, "appointment lookup failed")
		return
	}
	if appt == nil {
		writeError(w, http.StatusNotFound, "unknown appointment")
		return
	}
	if claims != nil && claims.Kind == auth.KindPatient && claims.PatientID != appt.PatientID {
		writeError(w, http.StatusForbidden, "not your appointment")
		return
	}

	if err := h.booking.Cancel(r.Context(), apptID); err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown appointment")
			return
		}
		h.logger.Error("cancel failed", "error", err, "appt_id", apptID)
		writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}

	if h.outbox != nil {
		if _, err := h.outbox.Append(r.Context(), nil, appt.ClinicID, events.AppointmentCancelled{
			ApptID:    appt.ApptID,
			TenantID:  appt.ClinicID,
			PatientID: appt.PatientID,
		}); err != nil {
			h.logger.Error("cancel event append failed", "error", err, "appt_id", apptID)
		}
	}
	h.recordAudit(r.Context(), claims, model.AuditEvent{
		TenantID:   appt.ClinicID,
		PatientID:  &appt.PatientID,
		Action:     compliance.ActionBookingCancelled,
		EntityType: "appointment",
		EntityID:   appt.ApptID,
		IP:         clientIP(r),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "appt_id": apptID})
}

// ListForPatient returns a patient's appointments, newest first.
// GET /v1/patients/{patientID}/appointments
func (h *AppointmentsHandler) ListForPatient(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	claims, _ := ClaimsFromContext(r.Context())
	if claims != nil && claims.Kind == auth.KindPatient && claims.PatientID != patientID {
		writeError(w, http.StatusForbidden, "not your appointments")
		return
	}

	appts, err := h.booking.ListForPatient(r.Context(), patientID)
	if err != nil {
		h.logger.Error("appointment list failed", "error", err, "patient_id", patientID)
		writeError(w, http.StatusInternalServerError, "appointment list failed")
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

func (h *AppointmentsHandler) emitBooked(ctx context.Context, tenantID string, appt *model.Appointment) {
	if h.outbox == nil {
		return
	}
	_, err := h.outbox.Append(ctx, nil, tenantID, events.AppointmentBooked{
		ApptID:        appt.ApptID,
		TenantID:      tenantID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		RoomID:        appt.RoomID,
		StaffID:       appt.StaffID,
		ProcedureType: appt.ProcedureType,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
	})
	if err != nil {
		h.logger.Error("booked event append failed", "error", err, "appt_id", appt.ApptID)
	}
}

func (h *AppointmentsHandler) recordAudit(ctx context.Context, claims *auth.Claims, event model.AuditEvent) {
	if h.audit == nil {
		return
	}
	if claims != nil && claims.Subject != "" {
		actor := claims.Subject
		event.ActorID = &actor
	}
	if err := h.audit.Record(ctx, event); err != nil {
		h.logger.Error("audit record failed", "error", err, "action", event.Action)
	}
}
