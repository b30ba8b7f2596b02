package schedule

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

const maxRankedSlots = 10

// Preferences bias the ranking toward a patient's usual clinic and doctor.
// Empty values contribute nothing.
type Preferences struct {
	ClinicID string
	DoctorID string
}

// Optimize rescores, sorts, and deduplicates slot options. Scores favor
// same-day combos first, then the preferred clinic and doctor, then sooner
// dates and earlier start times, with a small bonus for single-visit slots.
// The result keeps at most the top 10 unique (date, time, doctor, type)
// placements.
func Optimize(slots []SlotOption, prefs Preferences, now func() time.Time) []SlotOption {
	if now == nil {
		now = time.Now
	}
	today := now()

	for i := range slots {
		score := 0.0
		if slots[i].Type == SlotCombo {
			score += 100
		}
		if prefs.ClinicID != "" && slots[i].ClinicID == prefs.ClinicID {
			score += 30
		}
		if prefs.DoctorID != "" && slots[i].DoctorID == prefs.DoctorID {
			score += 20
		}
		if slotDate, err := time.Parse("2006-01-02", slots[i].Date); err == nil {
			daysAway := int(slotDate.Sub(toMidnight(today)).Hours() / 24)
			if daysAway < 20 {
				score += float64(20 - daysAway)
			}
		}
		if hour, ok := slotHour(slots[i].Time); ok && hour < 17 {
			score += float64(17-hour) * 0.5
		}
		if slots[i].Type == SlotSingle {
			score += 10
		}
		slots[i].Score = score
	}

	sort.SliceStable(slots, func(a, b int) bool {
		if slots[a].Score != slots[b].Score {
			return slots[a].Score > slots[b].Score
		}
		if slots[a].Date != slots[b].Date {
			return slots[a].Date < slots[b].Date
		}
		return slots[a].Time < slots[b].Time
	})

	type slotKey struct {
		date, clock, doctorID, slotType string
	}
	seen := map[slotKey]bool{}
	unique := []SlotOption{}
	for _, s := range slots {
		key := slotKey{s.Date, s.Time, s.DoctorID, s.Type}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, s)
		if len(unique) >= maxRankedSlots {
			break
		}
	}
	return unique
}

func toMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func slotHour(clock string) (int, bool) {
	head, _, ok := strings.Cut(clock, ":")
	if !ok {
		return 0, false
	}
	hour, err := strconv.Atoi(head)
	if err != nil {
		return 0, false
	}
	return hour, true
}
