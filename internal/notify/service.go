package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bronn-dev/dentalbridge/internal/events"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// RecordDirectory resolves the people and places an email names.
type RecordDirectory interface {
	PatientByID(ctx context.Context, patientID string) (*model.Patient, error)
	DoctorByID(ctx context.Context, doctorID string) (*model.Doctor, error)
	ClinicByID(ctx context.Context, clinicID string) (*model.Clinic, error)
}

// Service renders and sends emails for booking lifecycle events. It
// implements events.DeliveryHandler so the outbox relay can drive it
// directly.
type Service struct {
	email    EmailSender
	records  RecordDirectory
	opsEmail string
	logger   *logging.Logger
}

// NewService wires a notification service. opsEmail receives escalation
// alerts; empty disables them.
func NewService(email EmailSender, records RecordDirectory, opsEmail string, logger *logging.Logger) *Service {
	if email == nil {
		panic("notify: email sender required")
	}
	if records == nil {
		panic("notify: record directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, records: records, opsEmail: opsEmail, logger: logger}
}

// Handle dispatches one outbox entry. Unknown event types are skipped so the
// relay can mark them published instead of retrying forever.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	switch entry.Type {
	case events.TypeAppointmentBooked:
		var evt events.AppointmentBooked
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			return fmt.Errorf("notify: decode booked event: %w", err)
		}
		return s.sendBookedConfirmation(ctx, evt)
	case events.TypeAppointmentCancelled:
		var evt events.AppointmentCancelled
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			return fmt.Errorf("notify: decode cancelled event: %w", err)
		}
		return s.sendCancellation(ctx, evt)
	case events.TypeTriageEscalated:
		var evt events.TriageEscalated
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			return fmt.Errorf("notify: decode escalated event: %w", err)
		}
		return s.sendEscalationAlert(ctx, evt)
	default:
		s.logger.Debug("notify: skipping unhandled event type", "type", entry.Type)
		return nil
	}
}

func (s *Service) sendBookedConfirmation(ctx context.Context, evt events.AppointmentBooked) error {
	patient, err := s.records.PatientByID(ctx, evt.PatientID)
	if err != nil {
		return fmt.Errorf("notify: load patient: %w", err)
	}
	if patient == nil || patient.Email == "" {
		s.logger.Info("notify: patient has no email, skipping confirmation", "patient_id", evt.PatientID)
		return nil
	}

	doctorName := "your dentist"
	if doctor, err := s.records.DoctorByID(ctx, evt.DoctorID); err == nil && doctor != nil {
		doctorName = doctor.Name
	}
	clinicName, clinicAddress := s.clinicDetails(ctx, evt.TenantID)

	when := evt.StartTime.Format("Monday, January 2 at 3:04 PM")
	subject := fmt.Sprintf("Appointment confirmed - %s", evt.StartTime.Format("Jan 2, 3:04 PM"))
	body := fmt.Sprintf(`Hi %s,

Your appointment is confirmed.

Procedure: %s
Provider: %s
When: %s
Where: %s%s

If you need to reschedule, reply to this email or call the clinic.

- %s`,
		patient.Name, evt.ProcedureType, doctorName, when,
		clinicName, addressLine(clinicAddress), clinicName)

	msg := EmailMessage{To: patient.Email, ToName: patient.Name, Subject: subject, Body: body}
	if err := s.email.Send(ctx, msg); err != nil {
		return err
	}
	emailsSentTotal.WithLabelValues("confirmation").Inc()
	s.logger.Info("notify: confirmation sent", "appt_id", evt.ApptID, "patient_id", evt.PatientID)
	return nil
}

func (s *Service) sendCancellation(ctx context.Context, evt events.AppointmentCancelled) error {
	patient, err := s.records.PatientByID(ctx, evt.PatientID)
	if err != nil {
		return fmt.Errorf("notify: load patient: %w", err)
	}
	if patient == nil || patient.Email == "" {
		return nil
	}
	clinicName, _ := s.clinicDetails(ctx, evt.TenantID)

	body := fmt.Sprintf(`Hi %s,

Your appointment has been cancelled. If this was a mistake, or you would
like to rebook, reply to this email or call the clinic.

- %s`, patient.Name, clinicName)

	msg := EmailMessage{
		To:      patient.Email,
		ToName:  patient.Name,
		Subject: "Appointment cancelled",
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return err
	}
	emailsSentTotal.WithLabelValues("cancellation").Inc()
	return nil
}

func (s *Service) sendEscalationAlert(ctx context.Context, evt events.TriageEscalated) error {
	if s.opsEmail == "" {
		return nil
	}
	clinicName, _ := s.clinicDetails(ctx, evt.TenantID)

	slotInfo := "No slot could be held; a human must find one."
	if evt.HasSlot {
		slotInfo = fmt.Sprintf("Earliest slot held: %s %s", evt.SlotDate, evt.SlotTime)
	}
	body := fmt.Sprintf(`An emergency triage case needs immediate follow-up.

Clinic: %s
Urgency: %s
%s

Sent %s.`, clinicName, evt.Urgency, slotInfo, time.Now().UTC().Format(time.RFC1123))

	msg := EmailMessage{
		To:      s.opsEmail,
		Subject: fmt.Sprintf("EMERGENCY triage case - %s", clinicName),
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return err
	}
	emailsSentTotal.WithLabelValues("escalation").Inc()
	return nil
}

func (s *Service) clinicDetails(ctx context.Context, tenantID string) (name, address string) {
	name = "your dental clinic"
	if clinic, err := s.records.ClinicByID(ctx, tenantID); err == nil && clinic != nil {
		name = clinic.Name
		address = clinic.Address
	}
	return name, address
}

func addressLine(address string) string {
	if address == "" {
		return ""
	}
	return ", " + address
}

var _ events.DeliveryHandler = (*Service)(nil)
