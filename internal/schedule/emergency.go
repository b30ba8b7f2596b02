package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/bronn-dev/dentalbridge/internal/config"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// emergencyDirectory supplies the reads the emergency path needs.
type emergencyDirectory interface {
	SpecializationByName(ctx context.Context, tenantID, name string) (*model.Specialization, error)
	DoctorsBySpecialization(ctx context.Context, tenantID string, specID int) ([]model.Doctor, error)
	TemplatesForResource(ctx context.Context, resourceID, resourceType string) ([]model.AvailabilityTemplate, error)
	FirstActiveRoom(ctx context.Context, clinicID string) (*model.Room, error)
}

// EmergencyFinder locates the absolute earliest free 15-minute block with
// any general dentist, ignoring combo logic and patient preferences.
// Weekends are searched; a red-flag patient is not asked to wait for Monday.
type EmergencyFinder struct {
	dir    emergencyDirectory
	cal    Calendar
	logger *logging.Logger
	now    func() time.Time
}

// EmergencyOption customizes an EmergencyFinder.
type EmergencyOption func(*EmergencyFinder)

// WithEmergencyClock overrides the finder's time source.
func WithEmergencyClock(now func() time.Time) EmergencyOption {
	return func(f *EmergencyFinder) {
		if now != nil {
			f.now = now
		}
	}
}

// NewEmergencyFinder wires an emergency slot finder.
func NewEmergencyFinder(dir emergencyDirectory, cal Calendar, logger *logging.Logger, opts ...EmergencyOption) *EmergencyFinder {
	if dir == nil {
		panic("schedule: directory cannot be nil")
	}
	if cal == nil {
		panic("schedule: calendar cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	f := &EmergencyFinder{dir: dir, cal: cal, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FindEarliest searches today plus the next three days and returns the first
// free (doctor, room, clinic, date, block), or nil when the tenant has no
// general dentist, no room, or no open block in the window. When searching
// today, blocks up to and including the current one are skipped.
func (f *EmergencyFinder) FindEarliest(ctx context.Context, tenantID string) (*SlotOption, error) {
	spec, err := f.dir.SpecializationByName(ctx, tenantID, generalDentistSpec)
	if err != nil {
		return nil, fmt.Errorf("schedule: emergency spec lookup: %w", err)
	}
	if spec == nil {
		f.logger.Warn("emergency search with no general dentist specialization", "tenant_id", tenantID)
		return nil, nil
	}

	doctors, err := f.dir.DoctorsBySpecialization(ctx, tenantID, spec.SpecID)
	if err != nil {
		return nil, fmt.Errorf("schedule: emergency doctor lookup: %w", err)
	}
	if len(doctors) == 0 {
		return nil, nil
	}

	docTemplates := make(map[string][]model.AvailabilityTemplate, len(doctors))
	for _, doc := range doctors {
		tmpls, err := f.dir.TemplatesForResource(ctx, doc.DoctorID, model.ResourceDoctor)
		if err != nil {
			return nil, fmt.Errorf("schedule: emergency template lookup: %w", err)
		}
		docTemplates[doc.DoctorID] = tmpls
	}

	now := f.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	blocksPerHour := 60 / config.SlotMinutes
	roomByClinic := map[string]*model.Room{}

	for dayOffset := 0; dayOffset <= 3; dayOffset++ {
		checkDate := today.AddDate(0, 0, dayOffset)
		dow := WeekdayIndex(checkDate)

		for _, doc := range doctors {
			var dayTemplates []model.AvailabilityTemplate
			for _, tmpl := range docTemplates[doc.DoctorID] {
				if tmpl.DayOfWeek == dow {
					dayTemplates = append(dayTemplates, tmpl)
				}
			}
			if len(dayTemplates) == 0 {
				continue
			}

			docBooked, err := f.cal.BookedBlocks(ctx, model.EntityDoctor, doc.DoctorID, checkDate)
			if err != nil {
				return nil, fmt.Errorf("schedule: emergency doctor bookings: %w", err)
			}
			docBusy := blockSet(docBooked)

			for _, tmpl := range dayTemplates {
				room, cached := roomByClinic[tmpl.ClinicID]
				if !cached {
					room, err = f.dir.FirstActiveRoom(ctx, tmpl.ClinicID)
					if err != nil {
						return nil, fmt.Errorf("schedule: emergency room lookup: %w", err)
					}
					roomByClinic[tmpl.ClinicID] = room
				}
				if room == nil {
					// Clinic-day without a room: later days and other
					// clinics are still searched.
					continue
				}

				sh, _, err := parseClock(tmpl.StartTime)
				if err != nil {
					continue
				}
				eh, _, err := parseClock(tmpl.EndTime)
				if err != nil {
					continue
				}
				startBlock := (sh - config.DayStartHour) * blocksPerHour
				if startBlock < 0 {
					startBlock = 0
				}
				endBlock := (eh - config.DayStartHour) * blocksPerHour
				if endBlock > config.SlotsPerDay {
					endBlock = config.SlotsPerDay
				}

				if dayOffset == 0 {
					currentBlock := (now.Hour()-config.DayStartHour)*blocksPerHour + now.Minute()/config.SlotMinutes
					if currentBlock < 0 {
						currentBlock = 0
					}
					if startBlock < currentBlock+1 {
						startBlock = currentBlock + 1
					}
				}

				roomBooked, err := f.cal.BookedBlocks(ctx, model.EntityRoom, room.RoomID, checkDate)
				if err != nil {
					return nil, fmt.Errorf("schedule: emergency room bookings: %w", err)
				}
				roomBusy := blockSet(roomBooked)

				for block := startBlock; block < endBlock; block++ {
					if docBusy[block] || roomBusy[block] {
						continue
					}
					return &SlotOption{
						Type:            SlotEmergency,
						Date:            checkDate.Format("2006-01-02"),
						Time:            BlockToClock(block),
						EndTime:         BlockToClock(block + 1),
						TimeBlock:       block,
						DurationMinutes: config.SlotMinutes,
						DoctorID:        doc.DoctorID,
						DoctorName:      doc.Name,
						RoomID:          room.RoomID,
						RoomName:        room.Name,
						ClinicID:        tmpl.ClinicID,
						Procedure:       "Emergency Triage",
						Score:           1000,
					}, nil
				}
			}
		}
	}

	return nil, nil
}

func blockSet(blocks []int) map[int]bool {
	set := make(map[int]bool, len(blocks))
	for _, b := range blocks {
		set[b] = true
	}
	return set
}
