package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

const testTenant = "3f1d8a52-0c09-4f5b-9f57-2f4a1b6a9ec1"

func rootCanalProcedure() model.Procedure {
	return model.Procedure{
		ProcID:                 1,
		TenantID:               testTenant,
		Name:                   "Root Canal Treatment",
		BaseDurationMinutes:    90,
		ConsultDurationMinutes: 20,
		RequiredSpecID:         1,
		RequiredRoomCapability: map[string]any{"microscope": true},
		AllowSameDayCombo:      true,
	}
}

func endoSetup() (*fakeDirectory, *fakeCalendar) {
	dir := &fakeDirectory{
		doctorsBySpec: map[int][]model.Doctor{
			1: {{DoctorID: "doc-1", TenantID: testTenant, Name: "Dr. Rao", Active: true}},
		},
		rooms: []model.Room{
			{RoomID: "room-1", ClinicID: "clinic-1", Name: "Endo Suite", Status: "active",
				Capabilities: map[string]any{"microscope": true}},
		},
		templates: map[string][]model.AvailabilityTemplate{
			"doc-1": weekdayTemplates("doc-1", model.ResourceDoctor, "clinic-1"),
		},
	}
	return dir, &fakeCalendar{}
}

func TestFindSlotsEmitsCombosAndConsults(t *testing.T) {
	dir, cal := endoSetup()
	engine := NewEngine(dir, cal, logging.Default(), WithEngineClock(mondayClock()))

	slots, err := engine.FindSlots(context.Background(), testTenant, rootCanalProcedure(), false)
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	if len(slots) == 0 {
		t.Fatalf("expected slots for an open week")
	}

	var combos, consults int
	for _, s := range slots {
		switch s.Type {
		case SlotCombo:
			combos++
			if s.DurationMinutes != 9*15 {
				t.Fatalf("combo duration = %d minutes, want %d", s.DurationMinutes, 9*15)
			}
			if s.ConsultEndTime == nil || s.TreatmentStartTime == nil {
				t.Fatalf("combo must carry consult/treatment leg times")
			}
			if s.Score != 100 {
				t.Fatalf("combo preset score = %v, want 100", s.Score)
			}
		case SlotConsultOnly:
			consults++
			if s.DurationMinutes != 30 {
				t.Fatalf("consult duration = %d minutes, want 30", s.DurationMinutes)
			}
			if s.Score != 50 {
				t.Fatalf("consult preset score = %v, want 50", s.Score)
			}
		default:
			t.Fatalf("unexpected slot type %s for a consult-bearing procedure", s.Type)
		}
	}
	if combos == 0 || consults == 0 {
		t.Fatalf("expected both combos (%d) and consults (%d)", combos, consults)
	}

	// Tuesday 2026-03-03 block 0: first combo runs 09:00-11:15 with the
	// consult leg ending 09:30 and treatment starting at 09:45.
	first := slots[0]
	if first.Type != SlotCombo || first.Date != "2026-03-03" || first.Time != "09:00" {
		t.Fatalf("first slot = %s %s %s, want COMBO 2026-03-03 09:00", first.Type, first.Date, first.Time)
	}
	if first.EndTime != "11:15" || *first.ConsultEndTime != "09:30" || *first.TreatmentStartTime != "09:45" {
		t.Fatalf("combo leg times wrong: end=%s consult_end=%s treat_start=%s",
			first.EndTime, *first.ConsultEndTime, *first.TreatmentStartTime)
	}
}

func TestFindSlotsSkipsWeekends(t *testing.T) {
	dir, cal := endoSetup()
	engine := NewEngine(dir, cal, logging.Default(), WithEngineClock(mondayClock()))

	slots, err := engine.FindSlots(context.Background(), testTenant, rootCanalProcedure(), false)
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	for _, s := range slots {
		day, err := time.Parse("2006-01-02", s.Date)
		if err != nil {
			t.Fatalf("bad slot date %q", s.Date)
		}
		if IsWeekend(day) {
			t.Fatalf("scheduler emitted a weekend slot on %s", s.Date)
		}
	}
}

func TestFindSlotsHonorsBookedBlocks(t *testing.T) {
	dir, cal := endoSetup()
	tuesday := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	// Book the doctor solid except one 2-block gap at 9, so Tuesday yields
	// exactly one consult start and no combo.
	var booked []int
	for b := 2; b < 32; b++ {
		booked = append(booked, b)
	}
	cal.booked = map[string][]int{
		calKey(model.EntityDoctor, "doc-1", tuesday): booked,
	}

	engine := NewEngine(dir, cal, logging.Default(), WithEngineClock(mondayClock()))
	slots, err := engine.FindSlots(context.Background(), testTenant, rootCanalProcedure(), false)
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}

	for _, s := range slots {
		if s.Date != "2026-03-03" {
			continue
		}
		if s.Type != SlotConsultOnly || s.TimeBlock != 0 {
			t.Fatalf("expected only a block-0 consult on the booked day, got %s at block %d", s.Type, s.TimeBlock)
		}
	}
}

func TestFindSlotsNoQualifiedDoctor(t *testing.T) {
	dir, cal := endoSetup()
	dir.doctorsBySpec = map[int][]model.Doctor{}

	engine := NewEngine(dir, cal, logging.Default(), WithEngineClock(mondayClock()))
	slots, err := engine.FindSlots(context.Background(), testTenant, rootCanalProcedure(), false)
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots without a qualified doctor, got %d", len(slots))
	}
}

func TestFindSlotsRoomCapabilityMismatch(t *testing.T) {
	dir, cal := endoSetup()
	dir.rooms[0].Capabilities = map[string]any{"microscope": false}

	engine := NewEngine(dir, cal, logging.Default(), WithEngineClock(mondayClock()))
	slots, err := engine.FindSlots(context.Background(), testTenant, rootCanalProcedure(), false)
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots without a capable room, got %d", len(slots))
	}
}

func TestFindSlotsSedationRequiresAnesthetist(t *testing.T) {
	dir, cal := endoSetup()
	engine := NewEngine(dir, cal, logging.Default(), WithEngineClock(mondayClock()))

	slots, err := engine.FindSlots(context.Background(), testTenant, rootCanalProcedure(), true)
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("sedation with no anesthetist must yield no slots, got %d", len(slots))
	}
}

func TestFindSlotsAnesthetistMaskIntersects(t *testing.T) {
	dir, cal := endoSetup()
	dir.anesthetist = &model.Staff{StaffID: "staff-1", TenantID: testTenant, Name: "A. Nair", Role: model.RoleAnesthetist}
	// Anesthetist only works 09:00-11:00, so combos (9 blocks) cannot fit.
	var anesthTmpls []model.AvailabilityTemplate
	for dow := 0; dow < 5; dow++ {
		anesthTmpls = append(anesthTmpls, model.AvailabilityTemplate{
			ResourceID: "staff-1", ResourceType: model.ResourceStaff, ClinicID: "clinic-1",
			DayOfWeek: dow, StartTime: "09:00", EndTime: "11:00",
		})
	}
	dir.templates["staff-1"] = anesthTmpls

	engine := NewEngine(dir, cal, logging.Default(), WithEngineClock(mondayClock()))
	slots, err := engine.FindSlots(context.Background(), testTenant, rootCanalProcedure(), true)
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	if len(slots) == 0 {
		t.Fatalf("expected consult slots inside the anesthetist window")
	}
	for _, s := range slots {
		if s.Type == SlotCombo {
			t.Fatalf("9-block combo cannot fit an 8-block anesthetist window")
		}
		if s.TimeBlock+BlocksNeeded(s.DurationMinutes) > 8 {
			t.Fatalf("slot at block %d leaks outside the anesthetist window", s.TimeBlock)
		}
		if s.StaffID == nil || *s.StaffID != "staff-1" {
			t.Fatalf("sedated slot must carry the anesthetist")
		}
	}
}

func TestFindSlotsAnesthetistMustShareClinic(t *testing.T) {
	dir, cal := endoSetup()
	dir.anesthetist = &model.Staff{StaffID: "staff-1", TenantID: testTenant, Name: "A. Nair", Role: model.RoleAnesthetist}
	dir.templates["staff-1"] = weekdayTemplates("staff-1", model.ResourceStaff, "clinic-2")

	engine := NewEngine(dir, cal, logging.Default(), WithEngineClock(mondayClock()))
	slots, err := engine.FindSlots(context.Background(), testTenant, rootCanalProcedure(), true)
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("anesthetist at another clinic must not enable slots, got %d", len(slots))
	}
}

func TestFindSlotsEmittedRangesAreFree(t *testing.T) {
	dir, cal := endoSetup()
	tuesday := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	cal.booked = map[string][]int{
		calKey(model.EntityRoom, "room-1", tuesday): {4, 5, 6},
	}

	engine := NewEngine(dir, cal, logging.Default(), WithEngineClock(mondayClock()))
	slots, err := engine.FindSlots(context.Background(), testTenant, rootCanalProcedure(), false)
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	busy := map[int]bool{4: true, 5: true, 6: true}
	for _, s := range slots {
		if s.Date != "2026-03-03" {
			continue
		}
		for b := s.TimeBlock; b < s.TimeBlock+BlocksNeeded(s.DurationMinutes); b++ {
			if busy[b] {
				t.Fatalf("%s slot at block %d covers booked room block %d", s.Type, s.TimeBlock, b)
			}
		}
	}
}
