package notify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bronn-dev/dentalbridge/internal/events"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

type capturingSender struct {
	sent []EmailMessage
}

func (c *capturingSender) Send(_ context.Context, msg EmailMessage) error {
	c.sent = append(c.sent, msg)
	return nil
}

type fakeDirectory struct {
	patients map[string]*model.Patient
	doctors  map[string]*model.Doctor
	clinics  map[string]*model.Clinic
}

func (f *fakeDirectory) PatientByID(_ context.Context, id string) (*model.Patient, error) {
	return f.patients[id], nil
}

func (f *fakeDirectory) DoctorByID(_ context.Context, id string) (*model.Doctor, error) {
	return f.doctors[id], nil
}

func (f *fakeDirectory) ClinicByID(_ context.Context, id string) (*model.Clinic, error) {
	return f.clinics[id], nil
}

func entryFor(t *testing.T, eventType string, evt any) events.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return events.OutboxEntry{Type: eventType, Payload: payload}
}

func TestBookedConfirmationEmail(t *testing.T) {
	sender := &capturingSender{}
	records := &fakeDirectory{
		patients: map[string]*model.Patient{
			"pat-1": {PatientID: "pat-1", Name: "Asha Rao", Email: "asha@example.com"},
		},
		doctors: map[string]*model.Doctor{
			"doc-1": {DoctorID: "doc-1", Name: "Dr. Mehta"},
		},
		clinics: map[string]*model.Clinic{
			"tenant-1": {ClinicID: "tenant-1", Name: "Smile Dental", Address: "12 MG Road"},
		},
	}
	svc := NewService(sender, records, "", logging.New("error"))

	entry := entryFor(t, events.TypeAppointmentBooked, events.AppointmentBooked{
		ApptID:        "appt-1",
		TenantID:      "tenant-1",
		PatientID:     "pat-1",
		DoctorID:      "doc-1",
		ProcedureType: "Root Canal Treatment",
		StartTime:     time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
	})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "asha@example.com" {
		t.Fatalf("wrong recipient: %s", msg.To)
	}
	for _, want := range []string{"Root Canal Treatment", "Dr. Mehta", "Smile Dental", "12 MG Road"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestConfirmationSkippedWithoutEmail(t *testing.T) {
	sender := &capturingSender{}
	records := &fakeDirectory{
		patients: map[string]*model.Patient{
			"pat-1": {PatientID: "pat-1", Name: "Asha Rao"},
		},
	}
	svc := NewService(sender, records, "", logging.New("error"))

	entry := entryFor(t, events.TypeAppointmentBooked, events.AppointmentBooked{
		PatientID: "pat-1",
		StartTime: time.Now(),
	})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no email, got %d", len(sender.sent))
	}
}

func TestCancellationEmail(t *testing.T) {
	sender := &capturingSender{}
	records := &fakeDirectory{
		patients: map[string]*model.Patient{
			"pat-1": {PatientID: "pat-1", Name: "Asha Rao", Email: "asha@example.com"},
		},
		clinics: map[string]*model.Clinic{
			"tenant-1": {ClinicID: "tenant-1", Name: "Smile Dental"},
		},
	}
	svc := NewService(sender, records, "", logging.New("error"))

	entry := entryFor(t, events.TypeAppointmentCancelled, events.AppointmentCancelled{
		ApptID:    "appt-1",
		TenantID:  "tenant-1",
		PatientID: "pat-1",
	})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].Subject != "Appointment cancelled" {
		t.Fatalf("unexpected emails: %+v", sender.sent)
	}
}

func TestEscalationAlertGoesToOps(t *testing.T) {
	sender := &capturingSender{}
	records := &fakeDirectory{
		clinics: map[string]*model.Clinic{
			"tenant-1": {ClinicID: "tenant-1", Name: "Smile Dental"},
		},
	}
	svc := NewService(sender, records, "frontdesk@example.com", logging.New("error"))

	entry := entryFor(t, events.TypeTriageEscalated, events.TriageEscalated{
		TenantID: "tenant-1",
		Urgency:  "emergency",
		HasSlot:  true,
		SlotDate: "2025-03-14",
		SlotTime: "09:00",
	})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "frontdesk@example.com" {
		t.Fatalf("wrong recipient: %s", msg.To)
	}
	if !strings.Contains(msg.Body, "2025-03-14 09:00") {
		t.Fatalf("body missing held slot:\n%s", msg.Body)
	}
}

func TestEscalationSkippedWithoutOpsEmail(t *testing.T) {
	sender := &capturingSender{}
	svc := NewService(sender, &fakeDirectory{}, "", logging.New("error"))

	entry := entryFor(t, events.TypeTriageEscalated, events.TriageEscalated{TenantID: "t", Urgency: "emergency"})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no email, got %d", len(sender.sent))
	}
}

func TestUnknownEventTypeIsSkipped(t *testing.T) {
	sender := &capturingSender{}
	svc := NewService(sender, &fakeDirectory{}, "", logging.New("error"))

	entry := events.OutboxEntry{Type: "lead.created.v1", Payload: []byte(`{}`)}
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("unknown types must not error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no email, got %d", len(sender.sent))
	}
}
