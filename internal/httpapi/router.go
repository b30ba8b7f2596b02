package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bronn-dev/dentalbridge/internal/auth"
	"github.com/bronn-dev/dentalbridge/internal/observability/metrics"
	"github.com/bronn-dev/dentalbridge/internal/ratelimit"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// Config wires the router. Handlers left nil have their routes omitted, so a
// worker-only or queue-less deployment mounts just what it runs.
type Config struct {
	Logger *logging.Logger

	Issuer         *auth.Issuer
	RequestMetrics *metrics.RequestMetrics
	MetricsHandler http.Handler

	Triage       *TriageHandler
	Slots        *SlotsHandler
	Appointments *AppointmentsHandler
	Patients     *PatientsHandler
	Auth         *AuthHandler
	Onboarding   *OnboardingHandler
	Dashboard    *DashboardHandler
	Audit        *AuditHandler
	Webchat      http.HandlerFunc

	Limiter       *ratelimit.Limiter
	ChatLimits    ChatLimits
	BookingLimit  ratelimit.Limit
	CORSOrigins   []string
	FallbackRate  float64
	FallbackBurst int
}

// New builds the chi router for the API surface.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(CORS(cfg.CORSOrigins))
	}
	r.Use(RequestLogger(cfg.Logger, cfg.RequestMetrics))

	var fallback *TokenBucket
	if cfg.Limiter == nil {
		rate, burst := cfg.FallbackRate, cfg.FallbackBurst
		if rate <= 0 {
			rate = 5
		}
		if burst <= 0 {
			burst = 20
		}
		fallback = NewTokenBucket(rate, burst)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.Webchat != nil {
		r.Get("/ws/chat", cfg.Webchat)
	}

	r.Route("/v1", func(v1 chi.Router) {
		if cfg.Triage != nil {
			v1.Route("/triage", func(t chi.Router) {
				t.With(ChatRateLimit(cfg.Limiter, cfg.ChatLimits, fallback)).
					Post("/analyze", cfg.Triage.Analyze)
				t.Get("/jobs/{jobID}", cfg.Triage.JobStatus)
			})
		}
		if cfg.Slots != nil {
			v1.Post("/slots/search", cfg.Slots.Search)
			v1.Get("/procedures", cfg.Slots.ListProcedures)
		}
		if cfg.Patients != nil {
			v1.Post("/patients/register", cfg.Patients.Register)
		}
		if cfg.Auth != nil {
			v1.Post("/auth/login", cfg.Auth.Login)
		}

		if cfg.Appointments != nil && cfg.Issuer != nil {
			v1.Group(func(authed chi.Router) {
				authed.Use(RequireAuth(cfg.Issuer))
				authed.With(BookingRateLimit(cfg.Limiter, cfg.BookingLimit, fallback)).
					Post("/appointments", cfg.Appointments.Book)
				authed.Delete("/appointments/{apptID}", cfg.Appointments.Cancel)
				authed.Get("/patients/{patientID}/appointments", cfg.Appointments.ListForPatient)
			})
		}

		if cfg.Issuer != nil {
			v1.Route("/admin", func(admin chi.Router) {
				admin.Use(RequireAuth(cfg.Issuer))
				admin.Use(RequireKind(auth.KindStaff, auth.KindAdmin))

				if cfg.Onboarding != nil {
					admin.Post("/clinics", cfg.Onboarding.CreateClinic)
					admin.Route("/clinics/{clinicID}", func(c chi.Router) {
						c.Get("/", cfg.Onboarding.GetClinic)
						c.Post("/rooms", cfg.Onboarding.CreateRoom)
						c.Post("/doctors", cfg.Onboarding.CreateDoctor)
						c.Post("/staff", cfg.Onboarding.CreateStaff)
						c.Post("/procedures", cfg.Onboarding.CreateProcedure)
						c.Post("/templates", cfg.Onboarding.CreateTemplate)
						c.Post("/complete", cfg.Onboarding.Complete)
						if cfg.Dashboard != nil {
							c.Get("/dashboard", cfg.Dashboard.GetDashboard)
						}
						if cfg.Audit != nil {
							c.Get("/audit", cfg.Audit.Query)
							c.Post("/audit/export", cfg.Audit.Export)
						}
					})
				} else {
					if cfg.Dashboard != nil {
						admin.Get("/clinics/{clinicID}/dashboard", cfg.Dashboard.GetDashboard)
					}
					if cfg.Audit != nil {
						admin.Get("/clinics/{clinicID}/audit", cfg.Audit.Query)
						admin.Post("/clinics/{clinicID}/audit/export", cfg.Audit.Export)
					}
				}
			})
		}
	})

	return r
}
