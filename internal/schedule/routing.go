package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// generalDentistSpec is the specialization name the palliative tier and the
// emergency path fall back to.
const generalDentistSpec = "General Dentist"

// TierResult is the outcome of a tiered slot search. Slot lists are always
// non-nil; tier 0 means nothing was found at any tier.
type TierResult struct {
	Tier        int          `json:"tier"`
	TierLabel   string       `json:"tier_label"`
	ComboSlots  []SlotOption `json:"combo_slots"`
	SingleSlots []SlotOption `json:"single_slots"`
	TotalFound  int          `json:"total_found"`
	Note        string       `json:"note,omitempty"`
}

// fallbackDirectory supplies the palliative-tier lookups.
type fallbackDirectory interface {
	SpecializationByName(ctx context.Context, tenantID, name string) (*model.Specialization, error)
	FirstProcedureRequiringSpec(ctx context.Context, tenantID string, specID int) (*model.Procedure, error)
}

// Router runs the tiered fallback search: the preferred clinic first, then
// any provider in the tenant, then a palliative general-dentist visit.
type Router struct {
	engine *Engine
	dir    fallbackDirectory
	logger *logging.Logger
	now    func() time.Time
}

// NewRouter wires a router over the scheduling engine.
func NewRouter(engine *Engine, dir fallbackDirectory, logger *logging.Logger) *Router {
	if engine == nil {
		panic("schedule: engine cannot be nil")
	}
	if dir == nil {
		panic("schedule: fallback directory cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{engine: engine, dir: dir, logger: logger, now: engine.now}
}

// RouteWithFallback searches in tiers and reports which tier produced the
// results. Tier 1 honors the clinic preference as a hard restriction; tier 2
// relaxes it to the whole tenant. Combo and single lists are capped at five
// entries each.
func (r *Router) RouteWithFallback(ctx context.Context, tenantID string, proc model.Procedure, needsSedation bool, prefs Preferences) (*TierResult, error) {
	all, err := r.engine.FindSlots(ctx, tenantID, proc, needsSedation)
	if err != nil {
		return nil, err
	}

	primary := all
	if prefs.ClinicID != "" {
		primary = slotsAtClinic(all, prefs.ClinicID)
	}
	if ranked := Optimize(primary, prefs, r.now); len(ranked) > 0 {
		combos, singles := splitCombos(ranked)
		return &TierResult{
			Tier:        1,
			TierLabel:   "Primary Results",
			ComboSlots:  combos,
			SingleSlots: singles,
			TotalFound:  len(ranked),
		}, nil
	}

	if ranked := Optimize(all, Preferences{}, r.now); len(ranked) > 0 {
		combos, singles := splitCombos(ranked)
		return &TierResult{
			Tier:        2,
			TierLabel:   "Alternative Providers Available",
			ComboSlots:  combos,
			SingleSlots: singles,
			TotalFound:  len(ranked),
		}, nil
	}

	palliative, err := r.palliativeSearch(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(palliative) > 0 {
		return &TierResult{
			Tier:        3,
			TierLabel:   "Palliative Care (Specialist Unavailable)",
			ComboSlots:  []SlotOption{},
			SingleSlots: capSlots(palliative),
			TotalFound:  len(palliative),
			Note:        "No specialist available. Offering General Dentist for pain management.",
		}, nil
	}

	return &TierResult{
		Tier:        0,
		TierLabel:   "No Availability",
		ComboSlots:  []SlotOption{},
		SingleSlots: []SlotOption{},
		TotalFound:  0,
		Note:        "No slots found. Please contact the clinic directly.",
	}, nil
}

// palliativeSearch offers a general-dentist visit for pain management when
// the required specialist has no availability at all.
func (r *Router) palliativeSearch(ctx context.Context, tenantID string) ([]SlotOption, error) {
	spec, err := r.dir.SpecializationByName(ctx, tenantID, generalDentistSpec)
	if err != nil {
		return nil, fmt.Errorf("schedule: palliative spec lookup: %w", err)
	}
	if spec == nil {
		return nil, nil
	}
	proc, err := r.dir.FirstProcedureRequiringSpec(ctx, tenantID, spec.SpecID)
	if err != nil {
		return nil, fmt.Errorf("schedule: palliative procedure lookup: %w", err)
	}
	if proc == nil {
		return nil, nil
	}
	slots, err := r.engine.FindSlots(ctx, tenantID, *proc, false)
	if err != nil {
		return nil, err
	}
	return Optimize(slots, Preferences{}, r.now), nil
}

func slotsAtClinic(slots []SlotOption, clinicID string) []SlotOption {
	var local []SlotOption
	for _, s := range slots {
		if s.ClinicID == clinicID {
			local = append(local, s)
		}
	}
	return local
}

func splitCombos(ranked []SlotOption) (combos, singles []SlotOption) {
	combos = []SlotOption{}
	singles = []SlotOption{}
	for _, s := range ranked {
		if s.Type == SlotCombo {
			combos = append(combos, s)
		} else {
			singles = append(singles, s)
		}
	}
	return capSlots(combos), capSlots(singles)
}

func capSlots(slots []SlotOption) []SlotOption {
	const maxPerList = 5
	if len(slots) > maxPerList {
		return slots[:maxPerList]
	}
	return slots
}
