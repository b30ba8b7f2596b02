package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bronn-dev/dentalbridge/internal/config"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// Directory provides the tenant-scoped resource reads the solver needs.
type Directory interface {
	DoctorsBySpecialization(ctx context.Context, tenantID string, specID int) ([]model.Doctor, error)
	ActiveRooms(ctx context.Context, tenantID string) ([]model.Room, error)
	FirstAnesthetist(ctx context.Context, tenantID string) (*model.Staff, error)
	TemplatesForResource(ctx context.Context, resourceID, resourceType string) ([]model.AvailabilityTemplate, error)
}

// Calendar exposes booked-block reads for one entity-day.
type Calendar interface {
	BookedBlocks(ctx context.Context, entityType, entityID string, day time.Time) ([]int, error)
}

// Engine solves for appointment slots over the 15-minute grid. For each
// candidate (doctor, room) pair on each lookahead day it intersects the
// availability masks, adds the anesthetist mask when sedation is involved,
// and emits combo and single options from the contiguous runs.
type Engine struct {
	dir    Directory
	cal    Calendar
	logger *logging.Logger
	now    func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the engine's time source.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine wires a scheduling engine over the directory and calendar reads.
func NewEngine(dir Directory, cal Calendar, logger *logging.Logger, opts ...EngineOption) *Engine {
	if dir == nil {
		panic("schedule: directory cannot be nil")
	}
	if cal == nil {
		panic("schedule: calendar cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		dir:    dir,
		cal:    cal,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FindSlots returns every grid placement satisfying the procedure's
// constraints within the lookahead window, unranked. "No candidates" cases
// (no qualified doctor, no capable room, sedation without an anesthetist)
// return an empty list, not an error.
func (e *Engine) FindSlots(ctx context.Context, tenantID string, proc model.Procedure, needsSedation bool) ([]SlotOption, error) {
	treatmentBlocks := BlocksNeeded(proc.BaseDurationMinutes)
	consultBlocks := 0
	if proc.ConsultDurationMinutes > 0 {
		consultBlocks = BlocksNeeded(proc.ConsultDurationMinutes)
	}
	comboBlocks := treatmentBlocks
	if consultBlocks > 0 {
		comboBlocks = consultBlocks + config.BufferSlots + treatmentBlocks
	}
	singleBlocks := treatmentBlocks
	if consultBlocks > 0 {
		singleBlocks = consultBlocks
	}

	doctors, err := e.dir.DoctorsBySpecialization(ctx, tenantID, proc.RequiredSpecID)
	if err != nil {
		return nil, fmt.Errorf("schedule: load doctors: %w", err)
	}

	rooms, err := e.dir.ActiveRooms(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("schedule: load rooms: %w", err)
	}
	candidateRooms := rooms[:0:0]
	for _, room := range rooms {
		if room.MeetsCapabilities(proc.RequiredRoomCapability) {
			candidateRooms = append(candidateRooms, room)
		}
	}

	var anesthetist *model.Staff
	if needsSedation || proc.RequiresAnesthetist {
		anesthetist, err = e.dir.FirstAnesthetist(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("schedule: load anesthetist: %w", err)
		}
		if anesthetist == nil {
			e.logger.Warn("sedation requested with no anesthetist on staff",
				"tenant_id", tenantID, "procedure", proc.Name)
			return []SlotOption{}, nil
		}
	}

	docTemplates := make(map[string][]model.AvailabilityTemplate, len(doctors))
	for _, doc := range doctors {
		tmpls, err := e.dir.TemplatesForResource(ctx, doc.DoctorID, model.ResourceDoctor)
		if err != nil {
			return nil, fmt.Errorf("schedule: load doctor templates: %w", err)
		}
		docTemplates[doc.DoctorID] = tmpls
	}

	var anesthTemplates []model.AvailabilityTemplate
	if anesthetist != nil {
		anesthTemplates, err = e.dir.TemplatesForResource(ctx, anesthetist.StaffID, model.ResourceStaff)
		if err != nil {
			return nil, fmt.Errorf("schedule: load anesthetist templates: %w", err)
		}
	}

	results := []SlotOption{}
	today := e.now()

	for dayOffset := 1; dayOffset <= config.LookaheadDays; dayOffset++ {
		target := today.AddDate(0, 0, dayOffset)
		if IsWeekend(target) {
			continue
		}
		dow := WeekdayIndex(target)

		for _, doc := range doctors {
			templates := docTemplates[doc.DoctorID]
			if len(templates) == 0 {
				continue
			}

			for _, clinicID := range clinicsForDay(templates, dow) {
				localRooms := roomsAtClinic(candidateRooms, clinicID)
				if len(localRooms) == 0 {
					continue
				}

				clinicTemplates := templatesAtClinic(templates, clinicID)
				docBooked, err := e.cal.BookedBlocks(ctx, model.EntityDoctor, doc.DoctorID, target)
				if err != nil {
					return nil, fmt.Errorf("schedule: load doctor bookings: %w", err)
				}
				docMask := BuildMask(clinicTemplates, dow, docBooked)
				if docMask == 0 {
					continue
				}

				var anesthMask Mask
				if anesthetist != nil {
					anesthClinicTemplates := templatesAtClinic(anesthTemplates, clinicID)
					if len(anesthClinicTemplates) == 0 {
						continue
					}
					anesthBooked, err := e.cal.BookedBlocks(ctx, model.EntityStaff, anesthetist.StaffID, target)
					if err != nil {
						return nil, fmt.Errorf("schedule: load anesthetist bookings: %w", err)
					}
					anesthMask = BuildMask(anesthClinicTemplates, dow, anesthBooked)
				}

				for _, room := range localRooms {
					roomBooked, err := e.cal.BookedBlocks(ctx, model.EntityRoom, room.RoomID, target)
					if err != nil {
						return nil, fmt.Errorf("schedule: load room bookings: %w", err)
					}
					combined := docMask & OpenMask(roomBooked)
					if anesthetist != nil {
						combined &= anesthMask
					}
					if combined == 0 {
						continue
					}

					if proc.AllowSameDayCombo && consultBlocks > 0 {
						for _, start := range FindContiguous(combined, comboBlocks) {
							results = append(results, e.comboOption(proc, target, start, consultBlocks, comboBlocks, doc, room, clinicID, anesthetist))
						}
					}
					for _, start := range FindContiguous(combined, singleBlocks) {
						results = append(results, e.singleOption(proc, target, start, consultBlocks, singleBlocks, doc, room, clinicID, anesthetist))
					}
				}
			}
		}
	}

	return results, nil
}

func (e *Engine) comboOption(proc model.Procedure, target time.Time, start, consultBlocks, comboBlocks int, doc model.Doctor, room model.Room, clinicID string, anesthetist *model.Staff) SlotOption {
	consultEnd := start + consultBlocks
	treatStart := consultEnd + config.BufferSlots
	opt := SlotOption{
		Type:            SlotCombo,
		Date:            target.Format("2006-01-02"),
		Time:            BlockToClock(start),
		EndTime:         BlockToClock(start + comboBlocks),
		TimeBlock:       start,
		DurationMinutes: comboBlocks * config.SlotMinutes,
		DoctorID:        doc.DoctorID,
		DoctorName:      doc.Name,
		RoomID:          room.RoomID,
		RoomName:        room.Name,
		ClinicID:        clinicID,
		Procedure:       proc.Name,
		Score:           100,
	}
	consultEndClock := BlockToClock(consultEnd)
	treatStartClock := BlockToClock(treatStart)
	opt.ConsultEndTime = &consultEndClock
	opt.TreatmentStartTime = &treatStartClock
	if anesthetist != nil {
		opt.StaffID = &anesthetist.StaffID
		opt.StaffName = &anesthetist.Name
	}
	return opt
}

func (e *Engine) singleOption(proc model.Procedure, target time.Time, start, consultBlocks, singleBlocks int, doc model.Doctor, room model.Room, clinicID string, anesthetist *model.Staff) SlotOption {
	slotType := SlotSingle
	if consultBlocks > 0 {
		slotType = SlotConsultOnly
	}
	opt := SlotOption{
		Type:            slotType,
		Date:            target.Format("2006-01-02"),
		Time:            BlockToClock(start),
		EndTime:         BlockToClock(start + singleBlocks),
		TimeBlock:       start,
		DurationMinutes: singleBlocks * config.SlotMinutes,
		DoctorID:        doc.DoctorID,
		DoctorName:      doc.Name,
		RoomID:          room.RoomID,
		RoomName:        room.Name,
		ClinicID:        clinicID,
		Procedure:       proc.Name,
		Score:           50,
	}
	if anesthetist != nil {
		opt.StaffID = &anesthetist.StaffID
		opt.StaffName = &anesthetist.Name
	}
	return opt
}

// clinicsForDay lists the distinct clinics the templates place a resource at
// on the given weekday, sorted for deterministic iteration.
func clinicsForDay(templates []model.AvailabilityTemplate, dow int) []string {
	seen := map[string]bool{}
	var clinics []string
	for _, tmpl := range templates {
		if tmpl.DayOfWeek != dow || seen[tmpl.ClinicID] {
			continue
		}
		seen[tmpl.ClinicID] = true
		clinics = append(clinics, tmpl.ClinicID)
	}
	sort.Strings(clinics)
	return clinics
}

func roomsAtClinic(rooms []model.Room, clinicID string) []model.Room {
	var local []model.Room
	for _, room := range rooms {
		if room.ClinicID == clinicID {
			local = append(local, room)
		}
	}
	return local
}

func templatesAtClinic(templates []model.AvailabilityTemplate, clinicID string) []model.AvailabilityTemplate {
	var local []model.AvailabilityTemplate
	for _, tmpl := range templates {
		if tmpl.ClinicID == clinicID {
			local = append(local, tmpl)
		}
	}
	return local
}
