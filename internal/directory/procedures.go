package directory

import (
	"context"
	"fmt"

	"github.com/bronn-dev/dentalbridge/internal/model"
)

// conditionProcedures maps classifier condition keys to catalog procedure
// names. Unmapped keys resolve to the general checkup.
var conditionProcedures = map[string]string{
	"root_canal":        "Root Canal Treatment",
	"wisdom_extraction": "Wisdom Tooth Extraction (Sedation)",
	"emergency":         "Emergency Triage",
	"general_checkup":   "General Checkup",
	"filling":           "Dental Filling",
	"crown":             "Dental Crown",
}

// displayNames carries the safe user-facing labels. Internal catalog names
// read like treatment decisions; the chat surface must only ever promise an
// evaluation.
var displayNames = map[string]string{
	"root_canal":        "Endodontic Evaluation (Microscope)",
	"wisdom_extraction": "Oral Surgery Consultation (Wisdom)",
	"filling":           "Restorative Assessment",
	"crown":             "Restorative Assessment (Major)",
	"emergency":         "Emergency Triage Assessment",
}

// ResolveProcedure maps a condition key to a catalog procedure. The lookup is
// tenant-scoped first; when the tenant has no matching row the resolver falls
// back to the explicit cross-tenant lookup. Returns nil when no procedure
// exists anywhere under that name.
func (s *Store) ResolveProcedure(ctx context.Context, conditionKey, tenantID string) (*model.Procedure, error) {
	name, ok := conditionProcedures[conditionKey]
	if !ok {
		name = "General Checkup"
	}

	proc, err := s.ProcedureByName(ctx, tenantID, name)
	if err != nil {
		return nil, err
	}
	if proc == nil && tenantID != "" {
		proc, err = s.ProcedureByNameGlobal(ctx, name)
		if err != nil {
			return nil, err
		}
	}
	return proc, nil
}

// ListProcedures returns the tenant's catalog ordered by id.
func (s *Store) ListProcedures(ctx context.Context, tenantID string) ([]model.Procedure, error) {
	query := procedureColumns + ` WHERE tenant_id = $1 ORDER BY proc_id`
	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("directory: list procedures: %w", err)
	}
	defer rows.Close()

	var procs []model.Procedure
	for rows.Next() {
		proc, err := scanProcedure(rows)
		if err != nil {
			return nil, err
		}
		procs = append(procs, *proc)
	}
	return procs, rows.Err()
}

// DisplayName returns the safe label for a routed condition. Conditions
// without a remapping show the catalog name; with no procedure at all the
// generic evaluation label is used.
func DisplayName(conditionKey string, proc *model.Procedure) string {
	if label, ok := displayNames[conditionKey]; ok {
		return label
	}
	if proc != nil {
		return proc.Name
	}
	return "Specialist Evaluation"
}
