package directory

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/bronn-dev/dentalbridge/internal/model"
)

const testTenant = "3f1d8a52-0c09-4f5b-9f57-2f4a1b6a9ec1"

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewStore(mock, nil), mock
}

func TestDoctorsBySpecializationScopesTenant(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM doctors").
		WithArgs(1, testTenant).
		WillReturnRows(pgxmock.NewRows([]string{"doctor_id", "tenant_id", "name", "npi", "email", "active"}).
			AddRow("doc-1", testTenant, "Dr. Chen", "1234567890", "chen@clinic.test", true).
			AddRow("doc-2", testTenant, "Dr. Osei", "0987654321", "osei@clinic.test", true))

	doctors, err := store.DoctorsBySpecialization(context.Background(), testTenant, 1)
	if err != nil {
		t.Fatalf("list doctors: %v", err)
	}
	if len(doctors) != 2 {
		t.Fatalf("expected 2 doctors, got %d", len(doctors))
	}
	if doctors[0].DoctorID != "doc-1" || doctors[0].Name != "Dr. Chen" {
		t.Fatalf("unexpected first doctor: %+v", doctors[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDoctorsBySpecializationUnscoped(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM doctors").
		WithArgs(4).
		WillReturnRows(pgxmock.NewRows([]string{"doctor_id", "tenant_id", "name", "npi", "email", "active"}))

	doctors, err := store.DoctorsBySpecialization(context.Background(), "", 4)
	if err != nil {
		t.Fatalf("list doctors: %v", err)
	}
	if len(doctors) != 0 {
		t.Fatalf("expected no doctors, got %d", len(doctors))
	}
}

func TestActiveRoomsDecodesCapabilities(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM rooms").
		WithArgs(testTenant).
		WillReturnRows(pgxmock.NewRows([]string{"room_id", "clinic_id", "name", "type", "capabilities", "equipment", "status"}).
			AddRow("room-1", testTenant, "Endo Suite", "endo", []byte(`{"microscope":true}`), []byte(`["apex locator"]`), "active").
			AddRow("room-2", testTenant, "Op 2", "operatory", []byte(nil), []byte(nil), "active"))

	rooms, err := store.ActiveRooms(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if !rooms[0].MeetsCapabilities(map[string]any{"microscope": true}) {
		t.Fatalf("room-1 should carry microscope capability: %+v", rooms[0].Capabilities)
	}
	if rooms[0].Equipment[0] != "apex locator" {
		t.Fatalf("unexpected equipment: %v", rooms[0].Equipment)
	}
	if rooms[1].Capabilities != nil {
		t.Fatalf("room-2 should have nil capabilities, got %v", rooms[1].Capabilities)
	}
}

func TestFirstActiveRoomMiss(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM rooms").
		WithArgs("clinic-empty").
		WillReturnError(pgx.ErrNoRows)

	room, err := store.FirstActiveRoom(context.Background(), "clinic-empty")
	if err != nil {
		t.Fatalf("first active room: %v", err)
	}
	if room != nil {
		t.Fatalf("expected nil room, got %+v", room)
	}
}

func TestFirstAnesthetistMiss(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM staff").
		WithArgs(model.RoleAnesthetist, testTenant).
		WillReturnError(pgx.ErrNoRows)

	staff, err := store.FirstAnesthetist(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("anesthetist lookup: %v", err)
	}
	if staff != nil {
		t.Fatalf("expected nil staff, got %+v", staff)
	}
}

func TestTemplatesForResource(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM availability_templates").
		WithArgs("doc-1", model.ResourceDoctor).
		WillReturnRows(pgxmock.NewRows([]string{"template_id", "resource_id", "resource_type", "clinic_id", "day_of_week", "start_time", "end_time"}).
			AddRow("tpl-1", "doc-1", model.ResourceDoctor, "clinic-1", 0, "09:00", "17:00").
			AddRow("tpl-2", "doc-1", model.ResourceDoctor, "clinic-2", 2, "09:00", "13:00"))

	templates, err := store.TemplatesForResource(context.Background(), "doc-1", model.ResourceDoctor)
	if err != nil {
		t.Fatalf("list templates: %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(templates))
	}
	if templates[1].ClinicID != "clinic-2" || templates[1].DayOfWeek != 2 {
		t.Fatalf("unexpected second template: %+v", templates[1])
	}
}

func TestSpecializationByNameMiss(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM specializations").
		WithArgs("General Dentist", testTenant).
		WillReturnError(pgx.ErrNoRows)

	spec, err := store.SpecializationByName(context.Background(), testTenant, "General Dentist")
	if err != nil {
		t.Fatalf("specialization lookup: %v", err)
	}
	if spec != nil {
		t.Fatalf("expected nil specialization, got %+v", spec)
	}
}

func TestSpecializationNameByID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM specializations").
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Endodontist"))

	name, err := store.SpecializationNameByID(context.Background(), 2)
	if err != nil {
		t.Fatalf("name lookup: %v", err)
	}
	if name != "Endodontist" {
		t.Fatalf("expected Endodontist, got %q", name)
	}
}

func procedureRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"proc_id", "tenant_id", "name", "base_duration_minutes", "consult_duration_minutes",
		"required_spec_id", "required_room_capability", "requires_anesthetist", "allow_same_day_combo",
	})
}

func TestResolveProcedureTenantScoped(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM procedures").
		WithArgs("Root Canal Treatment", testTenant).
		WillReturnRows(procedureRows().
			AddRow(11, testTenant, "Root Canal Treatment", 90, 20, 2, []byte(`{"microscope":true}`), false, true))

	proc, err := store.ResolveProcedure(context.Background(), "root_canal", testTenant)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if proc == nil || proc.ProcID != 11 {
		t.Fatalf("expected proc 11, got %+v", proc)
	}
	if !proc.AllowSameDayCombo || proc.ConsultDurationMinutes != 20 {
		t.Fatalf("unexpected procedure fields: %+v", proc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolveProcedureFallsBackGlobal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM procedures").
		WithArgs("Wisdom Tooth Extraction (Sedation)", testTenant).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM procedures").
		WithArgs("Wisdom Tooth Extraction (Sedation)").
		WillReturnRows(procedureRows().
			AddRow(22, "other-tenant", "Wisdom Tooth Extraction (Sedation)", 60, 15, 3, []byte(`{"surgical_suite":true}`), true, true))

	proc, err := store.ResolveProcedure(context.Background(), "wisdom_extraction", testTenant)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if proc == nil || proc.TenantID != "other-tenant" {
		t.Fatalf("expected cross-tenant procedure, got %+v", proc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolveProcedureUnmappedCondition(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM procedures").
		WithArgs("General Checkup", testTenant).
		WillReturnRows(procedureRows().
			AddRow(5, testTenant, "General Checkup", 30, 0, 1, []byte(nil), false, false))

	proc, err := store.ResolveProcedure(context.Background(), "mystery_condition", testTenant)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if proc == nil || proc.Name != "General Checkup" {
		t.Fatalf("expected checkup fallback, got %+v", proc)
	}
}

func TestResolveProcedureMissEverywhere(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM procedures").
		WithArgs("Dental Crown", testTenant).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM procedures").
		WithArgs("Dental Crown").
		WillReturnError(pgx.ErrNoRows)

	proc, err := store.ResolveProcedure(context.Background(), "crown", testTenant)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if proc != nil {
		t.Fatalf("expected nil procedure, got %+v", proc)
	}
}

func TestDisplayName(t *testing.T) {
	proc := &model.Procedure{Name: "General Checkup"}
	cases := []struct {
		condition string
		proc      *model.Procedure
		want      string
	}{
		{"root_canal", proc, "Endodontic Evaluation (Microscope)"},
		{"wisdom_extraction", proc, "Oral Surgery Consultation (Wisdom)"},
		{"filling", nil, "Restorative Assessment"},
		{"crown", proc, "Restorative Assessment (Major)"},
		{"emergency", nil, "Emergency Triage Assessment"},
		{"general_checkup", proc, "General Checkup"},
		{"general_checkup", nil, "Specialist Evaluation"},
	}
	for _, tc := range cases {
		if got := DisplayName(tc.condition, tc.proc); got != tc.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tc.condition, got, tc.want)
		}
	}
}
