// seed loads a demo tenant into the database: two clinics, providers with
// specializations, capability-tagged rooms, an anesthetist, the bookable
// procedure catalog, weekday availability, and a staff login. Intended for
// development and demos; every write goes through the same catalog store the
// onboarding API uses.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	appconfig "github.com/bronn-dev/dentalbridge/internal/config"
	"github.com/bronn-dev/dentalbridge/internal/directory"
	"github.com/bronn-dev/dentalbridge/internal/httpapi"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	store := directory.NewStore(pool, logger)
	s := &seeder{ctx: ctx, store: store, pool: pool}

	clinicID := cfg.DemoTenantID
	if clinicID == "" {
		clinicID = uuid.NewString()
	}
	hq := s.clinic(&model.Clinic{
		ClinicID: clinicID,
		Name:     "Smile Dental Koramangala",
		Address:  "80 Feet Road, Koramangala 4th Block, Bengaluru",
		Location: "Koramangala",
	})
	branch := s.clinic(&model.Clinic{
		Name:     "Smile Dental Indiranagar",
		Address:  "100 Feet Road, Indiranagar, Bengaluru",
		Location: "Indiranagar",
	})

	// Rooms. Capability keys match what the catalog procedures require.
	s.room(hq, "Operatory 1", map[string]any{"microscope": true})
	s.room(hq, "Operatory 2", nil)
	s.room(hq, "Surgical Suite", map[string]any{"surgical": true})
	s.room(branch, "Operatory 1", nil)

	endo := s.spec(hq, "Endodontist")
	surgeon := s.spec(hq, "Oral Surgeon")
	general := s.spec(hq, "General Dentist")
	perio := s.spec(hq, "Periodontist")

	doctors := []struct {
		clinic string
		name   string
		specs  []int
	}{
		{hq, "Dr. Meera Iyer", []int{endo}},
		{hq, "Dr. Arjun Nair", []int{surgeon}},
		{hq, "Dr. Sana Qureshi", []int{general}},
		{hq, "Dr. Vikram Rao", []int{perio, general}},
		{branch, "Dr. Lakshmi Menon", []int{general}},
	}
	var doctorIDs []string
	for _, d := range doctors {
		doc := &model.Doctor{TenantID: d.clinic, Name: d.name, Active: true}
		s.must(s.store.CreateDoctor(s.ctx, doc), "create doctor "+d.name)
		for _, specID := range d.specs {
			s.must(s.store.LinkDoctorSpecialization(s.ctx, doc.DoctorID, specID), "link spec for "+d.name)
		}
		doctorIDs = append(doctorIDs, doc.DoctorID)
	}

	anesthetist := &model.Staff{TenantID: hq, Name: "Ravi Kumar", Role: model.RoleAnesthetist}
	s.must(s.store.CreateStaff(s.ctx, anesthetist), "create anesthetist")
	s.must(s.store.CreateStaff(s.ctx, &model.Staff{TenantID: hq, Name: "Priya Shetty", Role: "Hygienist"}), "create hygienist")

	procedures := []model.Procedure{
		{
			Name: "Root Canal Treatment", BaseDurationMinutes: 90, ConsultDurationMinutes: 30,
			RequiredSpecID: endo, RequiredRoomCapability: map[string]any{"microscope": true},
			AllowSameDayCombo: true,
		},
		{
			Name: "Wisdom Tooth Extraction (Sedation)", BaseDurationMinutes: 60, ConsultDurationMinutes: 20,
			RequiredSpecID: surgeon, RequiredRoomCapability: map[string]any{"surgical": true},
			RequiresAnesthetist: true,
		},
		{Name: "Emergency Triage", BaseDurationMinutes: 30, RequiredSpecID: general},
		{Name: "General Checkup", BaseDurationMinutes: 30, RequiredSpecID: general},
		{
			Name: "Dental Filling", BaseDurationMinutes: 45, ConsultDurationMinutes: 15,
			RequiredSpecID: general, AllowSameDayCombo: true,
		},
		{Name: "Dental Crown", BaseDurationMinutes: 60, ConsultDurationMinutes: 20, RequiredSpecID: general},
	}
	for i := range procedures {
		procedures[i].TenantID = hq
		s.must(s.store.CreateProcedure(s.ctx, &procedures[i]), "create procedure "+procedures[i].Name)
	}

	// Weekday availability, 09:00-17:00. Day 0 is Monday.
	for _, doctorID := range doctorIDs[:4] {
		s.weekdays(hq, doctorID, model.ResourceDoctor)
	}
	s.weekdays(branch, doctorIDs[4], model.ResourceDoctor)
	s.weekdays(hq, anesthetist.StaffID, model.ResourceStaff)

	s.must(s.store.SetOnboardingComplete(s.ctx, hq, true), "complete onboarding")
	s.must(s.store.SetOnboardingComplete(s.ctx, branch, true), "complete onboarding")

	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "changeme"
	}
	s.user(hq, "owner@dentalbridge.demo", adminPassword, "admin")
	s.user(hq, "frontdesk@dentalbridge.demo", adminPassword, "staff")

	fmt.Printf("seeded tenant %s (main) and %s (branch)\n", hq, branch)
	fmt.Println("staff logins: owner@dentalbridge.demo / frontdesk@dentalbridge.demo")
}

type seeder struct {
	ctx   context.Context
	store *directory.Store
	pool  *pgxpool.Pool
}

func (s *seeder) must(err error, what string) {
	if err != nil {
		log.Fatalf("%s: %v", what, err)
	}
}

func (s *seeder) clinic(c *model.Clinic) string {
	s.must(s.store.CreateClinic(s.ctx, c), "create clinic "+c.Name)
	return c.ClinicID
}

func (s *seeder) room(clinicID, name string, capabilities map[string]any) {
	s.must(s.store.CreateRoom(s.ctx, &model.Room{
		ClinicID:     clinicID,
		Name:         name,
		Capabilities: capabilities,
	}), "create room "+name)
}

func (s *seeder) spec(tenantID, name string) int {
	spec := &model.Specialization{TenantID: tenantID, Name: name}
	s.must(s.store.CreateSpecialization(s.ctx, spec), "create specialization "+name)
	return spec.SpecID
}

func (s *seeder) weekdays(clinicID, resourceID, resourceType string) {
	for day := 0; day < 5; day++ {
		s.must(s.store.CreateTemplate(s.ctx, &model.AvailabilityTemplate{
			ClinicID:     clinicID,
			ResourceID:   resourceID,
			ResourceType: resourceType,
			DayOfWeek:    day,
			StartTime:    "09:00",
			EndTime:      "17:00",
		}), "create template for "+resourceID)
	}
}

func (s *seeder) user(tenantID, email, password, role string) {
	saltBytes := make([]byte, 16)
	if _, err := rand.Read(saltBytes); err != nil {
		log.Fatalf("generate salt: %v", err)
	}
	salt := hex.EncodeToString(saltBytes)
	digest := httpapi.HashPassword(salt, password)
	_, err := s.pool.Exec(s.ctx, `
		INSERT INTO users (user_id, tenant_id, email, password_salt, password_digest, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE
		SET password_salt = EXCLUDED.password_salt,
		    password_digest = EXCLUDED.password_digest,
		    role = EXCLUDED.role
	`, uuid.NewString(), tenantID, email, salt, digest, role)
	s.must(err, "create user "+email)
}
