package schedule

import (
	"context"
	"testing"

	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

func newTestRouter(dir *fakeDirectory, cal *fakeCalendar) *Router {
	engine := NewEngine(dir, cal, logging.Default(), WithEngineClock(mondayClock()))
	return NewRouter(engine, dir, logging.Default())
}

func TestRouteTier1PreferredClinic(t *testing.T) {
	dir, cal := endoSetup()
	router := newTestRouter(dir, cal)

	res, err := router.RouteWithFallback(context.Background(), testTenant, rootCanalProcedure(), false, Preferences{ClinicID: "clinic-1"})
	if err != nil {
		t.Fatalf("RouteWithFallback: %v", err)
	}
	if res.Tier != 1 || res.TierLabel != "Primary Results" {
		t.Fatalf("expected tier 1 Primary Results, got %d %q", res.Tier, res.TierLabel)
	}
	if len(res.ComboSlots) == 0 || len(res.SingleSlots) == 0 {
		t.Fatalf("expected both combo and single lists populated")
	}
	if len(res.ComboSlots) > 5 || len(res.SingleSlots) > 5 {
		t.Fatalf("slot lists must cap at 5, got %d/%d", len(res.ComboSlots), len(res.SingleSlots))
	}
	if res.Note != "" {
		t.Fatalf("tier 1 carries no note, got %q", res.Note)
	}
}

func TestRouteTier2WhenPreferredClinicFull(t *testing.T) {
	dir, cal := endoSetup()
	// The doctor works at clinic-2; the patient prefers clinic-1 which has
	// no availability for them.
	dir.templates["doc-1"] = weekdayTemplates("doc-1", model.ResourceDoctor, "clinic-2")
	dir.rooms = []model.Room{
		{RoomID: "room-2", ClinicID: "clinic-2", Name: "Endo Suite B", Status: "active",
			Capabilities: map[string]any{"microscope": true}},
	}
	router := newTestRouter(dir, cal)

	res, err := router.RouteWithFallback(context.Background(), testTenant, rootCanalProcedure(), false, Preferences{ClinicID: "clinic-1"})
	if err != nil {
		t.Fatalf("RouteWithFallback: %v", err)
	}
	if res.Tier != 2 || res.TierLabel != "Alternative Providers Available" {
		t.Fatalf("expected tier 2 fallback, got %d %q", res.Tier, res.TierLabel)
	}
	if res.TotalFound == 0 {
		t.Fatalf("tier 2 should carry the relaxed results")
	}
}

func TestRouteTier3Palliative(t *testing.T) {
	dir, cal := endoSetup()
	// No endodontist anywhere, but a general dentist takes checkups.
	dir.doctorsBySpec = map[int][]model.Doctor{
		2: {{DoctorID: "doc-gd", TenantID: testTenant, Name: "Dr. Mehta", Active: true}},
	}
	dir.templates["doc-gd"] = weekdayTemplates("doc-gd", model.ResourceDoctor, "clinic-1")
	dir.specsByName = map[string]*model.Specialization{
		generalDentistSpec: {SpecID: 2, TenantID: testTenant, Name: generalDentistSpec},
	}
	dir.procBySpec = map[int]*model.Procedure{
		2: {ProcID: 9, TenantID: testTenant, Name: "General Checkup",
			BaseDurationMinutes: 30, RequiredSpecID: 2},
	}
	router := newTestRouter(dir, cal)

	res, err := router.RouteWithFallback(context.Background(), testTenant, rootCanalProcedure(), false, Preferences{})
	if err != nil {
		t.Fatalf("RouteWithFallback: %v", err)
	}
	if res.Tier != 3 || res.TierLabel != "Palliative Care (Specialist Unavailable)" {
		t.Fatalf("expected palliative tier, got %d %q", res.Tier, res.TierLabel)
	}
	if len(res.ComboSlots) != 0 {
		t.Fatalf("palliative tier returns no combos")
	}
	if len(res.SingleSlots) == 0 {
		t.Fatalf("palliative tier should offer general dentist slots")
	}
	if res.Note != "No specialist available. Offering General Dentist for pain management." {
		t.Fatalf("unexpected palliative note %q", res.Note)
	}
	for _, s := range res.SingleSlots {
		if s.Procedure != "General Checkup" {
			t.Fatalf("palliative slots must use the general dentist procedure, got %q", s.Procedure)
		}
	}
}

func TestRouteTier0NoAvailability(t *testing.T) {
	dir := &fakeDirectory{}
	cal := &fakeCalendar{}
	router := newTestRouter(dir, cal)

	res, err := router.RouteWithFallback(context.Background(), testTenant, rootCanalProcedure(), false, Preferences{})
	if err != nil {
		t.Fatalf("RouteWithFallback: %v", err)
	}
	if res.Tier != 0 || res.TierLabel != "No Availability" {
		t.Fatalf("expected tier 0, got %d %q", res.Tier, res.TierLabel)
	}
	if res.Note != "No slots found. Please contact the clinic directly." {
		t.Fatalf("unexpected tier 0 note %q", res.Note)
	}
	if res.ComboSlots == nil || res.SingleSlots == nil {
		t.Fatalf("tier 0 lists must be non-nil empties")
	}
	if res.TotalFound != 0 {
		t.Fatalf("tier 0 total should be 0, got %d", res.TotalFound)
	}
}

func TestRouteSedationWithoutAnesthetistFallsThrough(t *testing.T) {
	dir, cal := endoSetup()
	// Sedation requested, no anesthetist: specialist search is empty, so the
	// palliative tier should serve.
	dir.specsByName = map[string]*model.Specialization{
		generalDentistSpec: {SpecID: 2, TenantID: testTenant, Name: generalDentistSpec},
	}
	dir.doctorsBySpec[2] = []model.Doctor{{DoctorID: "doc-gd", TenantID: testTenant, Name: "Dr. Mehta", Active: true}}
	dir.templates["doc-gd"] = weekdayTemplates("doc-gd", model.ResourceDoctor, "clinic-1")
	dir.procBySpec = map[int]*model.Procedure{
		2: {ProcID: 9, TenantID: testTenant, Name: "General Checkup", BaseDurationMinutes: 30, RequiredSpecID: 2},
	}
	router := newTestRouter(dir, cal)

	res, err := router.RouteWithFallback(context.Background(), testTenant, rootCanalProcedure(), true, Preferences{})
	if err != nil {
		t.Fatalf("RouteWithFallback: %v", err)
	}
	if res.Tier != 3 {
		t.Fatalf("expected palliative fallback for sedation without anesthetist, got tier %d", res.Tier)
	}
}
