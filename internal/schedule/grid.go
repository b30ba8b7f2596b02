package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bronn-dev/dentalbridge/internal/config"
	"github.com/bronn-dev/dentalbridge/internal/model"
)

// Mask is one entity's availability for one day, one bit per 15-minute
// block. Bit i set means block i is free. 32 blocks fit comfortably in a
// uint64, so intersecting two resources is a single AND.
type Mask uint64

// FullDay has every block of the working day free.
const FullDay Mask = (1 << config.SlotsPerDay) - 1

// Free reports whether the block is free.
func (m Mask) Free(block int) bool {
	if block < 0 || block >= config.SlotsPerDay {
		return false
	}
	return m&(1<<uint(block)) != 0
}

// Count returns the number of free blocks.
func (m Mask) Count() int {
	n := 0
	for i := 0; i < config.SlotsPerDay; i++ {
		if m.Free(i) {
			n++
		}
	}
	return n
}

// WeekdayIndex converts a date to the availability-template convention,
// 0 = Monday .. 6 = Sunday.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// IsWeekend reports Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	return WeekdayIndex(t) >= 5
}

// BlocksNeeded rounds a duration in minutes up to whole blocks.
func BlocksNeeded(minutes int) int {
	return (minutes + config.SlotMinutes - 1) / config.SlotMinutes
}

// BlockToClock converts a block index to its "HH:MM" wall-clock start.
func BlockToClock(block int) string {
	total := config.DayStartHour*60 + block*config.SlotMinutes
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// parseClock reads "HH:MM"; trailing seconds are tolerated and ignored.
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("schedule: bad clock value %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("schedule: bad clock value %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("schedule: bad clock value %q", s)
	}
	return hour, minute, nil
}

// BuildMask computes one entity-day availability. Template windows matching
// the weekday open blocks; booked calendar blocks close them again.
// Templates must already be filtered to the clinic under consideration.
// Window ends are truncated to the block boundary; starts are rounded down
// within their block and clamped to the working day.
func BuildMask(templates []model.AvailabilityTemplate, dow int, booked []int) Mask {
	var mask Mask
	blocksPerHour := 60 / config.SlotMinutes
	for _, tmpl := range templates {
		if tmpl.DayOfWeek != dow {
			continue
		}
		sh, sm, err := parseClock(tmpl.StartTime)
		if err != nil {
			continue
		}
		eh, _, err := parseClock(tmpl.EndTime)
		if err != nil {
			continue
		}
		start := (sh-config.DayStartHour)*blocksPerHour + sm/config.SlotMinutes
		if start < 0 {
			start = 0
		}
		end := (eh - config.DayStartHour) * blocksPerHour
		if end > config.SlotsPerDay {
			end = config.SlotsPerDay
		}
		for b := start; b < end; b++ {
			mask |= 1 << uint(b)
		}
	}
	return mask.WithoutBooked(booked)
}

// OpenMask is a full working day minus booked blocks. Rooms carry no
// availability templates, so their day starts fully open.
func OpenMask(booked []int) Mask {
	return FullDay.WithoutBooked(booked)
}

// WithoutBooked clears every listed block. Out-of-range entries are ignored.
func (m Mask) WithoutBooked(booked []int) Mask {
	for _, b := range booked {
		if b >= 0 && b < config.SlotsPerDay {
			m &^= 1 << uint(b)
		}
	}
	return m
}

// FindContiguous returns every start position with length contiguous free
// blocks, in ascending order. O(SlotsPerDay) single pass.
func FindContiguous(mask Mask, length int) []int {
	if length <= 0 || length > config.SlotsPerDay {
		return nil
	}
	var starts []int
	run := 0
	for i := 0; i < config.SlotsPerDay; i++ {
		if mask.Free(i) {
			run++
			if run >= length {
				starts = append(starts, i-length+1)
			}
		} else {
			run = 0
		}
	}
	return starts
}
