package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/bronn-dev/dentalbridge/internal/model"
)

// fakeDirectory satisfies the directory interfaces used by the engine,
// router, and emergency finder.
type fakeDirectory struct {
	doctorsBySpec map[int][]model.Doctor
	rooms         []model.Room
	anesthetist   *model.Staff
	templates     map[string][]model.AvailabilityTemplate
	specsByName   map[string]*model.Specialization
	procBySpec    map[int]*model.Procedure
	err           error
}

func (f *fakeDirectory) DoctorsBySpecialization(_ context.Context, _ string, specID int) ([]model.Doctor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doctorsBySpec[specID], nil
}

func (f *fakeDirectory) ActiveRooms(_ context.Context, _ string) ([]model.Room, error) {
	if f.err != nil {
		return nil, f.err
	}
	var active []model.Room
	for _, r := range f.rooms {
		if r.Status == "active" {
			active = append(active, r)
		}
	}
	return active, nil
}

func (f *fakeDirectory) FirstAnesthetist(_ context.Context, _ string) (*model.Staff, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.anesthetist, nil
}

func (f *fakeDirectory) TemplatesForResource(_ context.Context, resourceID, _ string) ([]model.AvailabilityTemplate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.templates[resourceID], nil
}

func (f *fakeDirectory) SpecializationByName(_ context.Context, _ string, name string) (*model.Specialization, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.specsByName[name], nil
}

func (f *fakeDirectory) FirstProcedureRequiringSpec(_ context.Context, _ string, specID int) (*model.Procedure, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.procBySpec[specID], nil
}

func (f *fakeDirectory) FirstActiveRoom(_ context.Context, clinicID string) (*model.Room, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.rooms {
		if r.ClinicID == clinicID && r.Status == "active" {
			room := r
			return &room, nil
		}
	}
	return nil, nil
}

// fakeCalendar returns canned booked blocks per entity-day.
type fakeCalendar struct {
	booked map[string][]int
	err    error
}

func calKey(entityType, entityID string, day time.Time) string {
	return fmt.Sprintf("%s|%s|%s", entityType, entityID, day.Format("2006-01-02"))
}

func (f *fakeCalendar) BookedBlocks(_ context.Context, entityType, entityID string, day time.Time) ([]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.booked == nil {
		return nil, nil
	}
	return f.booked[calKey(entityType, entityID, day)], nil
}

// weekdayTemplates builds Monday-Friday 09:00-17:00 templates for a resource
// at one clinic.
func weekdayTemplates(resourceID, resourceType, clinicID string) []model.AvailabilityTemplate {
	var tmpls []model.AvailabilityTemplate
	for dow := 0; dow < 5; dow++ {
		tmpls = append(tmpls, model.AvailabilityTemplate{
			TemplateID:   fmt.Sprintf("%s-%d", resourceID, dow),
			ResourceID:   resourceID,
			ResourceType: resourceType,
			ClinicID:     clinicID,
			DayOfWeek:    dow,
			StartTime:    "09:00",
			EndTime:      "17:00",
		})
	}
	return tmpls
}

// mondayClock pins "now" to Monday 2026-03-02 10:00 UTC.
func mondayClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	}
}
