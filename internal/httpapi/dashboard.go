package httpapi

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

const llmLatencyFamily = "dentalbridge_triage_llm_latency_seconds"

// BookingCohortDay is one day of the booking funnel.
type BookingCohortDay struct {
	Day       time.Time `json:"-"`
	DayLabel  string    `json:"day"`
	Booked    int64     `json:"booked"`
	Cancelled int64     `json:"cancelled"`
}

// LLMLatencySnapshot summarizes the extraction-LLM latency histogram.
type LLMLatencySnapshot struct {
	Total   int64              `json:"total"`
	P90Ms   float64            `json:"p90_ms"`
	P95Ms   float64            `json:"p95_ms"`
	Buckets []LLMLatencyBucket `json:"buckets"`
}

// LLMLatencyBucket is one histogram bucket of the snapshot.
type LLMLatencyBucket struct {
	LeSeconds float64 `json:"le_seconds"`
	Label     string  `json:"label,omitempty"`
	Count     int64   `json:"count"`
}

// TenantDashboard is the staff dashboard payload.
type TenantDashboard struct {
	TenantID        string             `json:"tenant_id"`
	PeriodStart     string             `json:"period_start"`
	PeriodEnd       string             `json:"period_end"`
	BookedTotal     int64              `json:"booked_total"`
	CancelledTotal  int64              `json:"cancelled_total"`
	UpcomingTotal   int64              `json:"upcoming_total"`
	CancellationPct float64            `json:"cancellation_pct"`
	TopProcedures   []ProcedureCount   `json:"top_procedures"`
	LLMLatency      LLMLatencySnapshot `json:"llm_latency"`
	Daily           []BookingCohortDay `json:"daily"`
}

// ProcedureCount is one row of the top-procedure breakdown.
type ProcedureCount struct {
	Procedure string `json:"procedure"`
	Count     int64  `json:"count"`
}

// DashboardHandler serves staff operational metrics: booking aggregates from
// the read replica and the LLM latency snapshot from the metrics registry.
// Responses are cached per tenant for a short TTL.
type DashboardHandler struct {
	db       *sql.DB
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedDashboard
}

type cachedDashboard struct {
	payload TenantDashboard
	expires time.Time
}

// NewDashboardHandler wires the dashboard. A nil db disables the handler
// (503) rather than failing wiring; the API can run without a read replica.
func NewDashboardHandler(db *sql.DB, gatherer prometheus.Gatherer, cacheTTL time.Duration, logger *logging.Logger) *DashboardHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DashboardHandler{
		db:       db,
		gatherer: gatherer,
		logger:   logger,
		cacheTTL: cacheTTL,
		now:      time.Now,
		cache:    make(map[string]cachedDashboard),
	}
}

// GetDashboard returns tenant operational metrics.
// GET /v1/admin/clinics/{clinicID}/dashboard
// Query params:
//   - start, end: RFC3339 timestamps (both or neither)
//   - days: integer window (default 7) when start/end omitted
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "clinicID")
	if strings.TrimSpace(tenantID) == "" {
		writeError(w, http.StatusBadRequest, "clinic id required")
		return
	}
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "dashboard disabled (db not configured)")
		return
	}

	start, end, err := h.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cacheKey := fmt.Sprintf("%s|%d|%d", tenantID, start.Unix(), end.Unix())
	h.mu.Lock()
	if hit, ok := h.cache[cacheKey]; ok && h.now().Before(hit.expires) {
		h.mu.Unlock()
		writeJSON(w, http.StatusOK, hit.payload)
		return
	}
	h.mu.Unlock()

	payload, err := h.build(r.Context(), tenantID, start, end)
	if err != nil {
		h.logger.Error("dashboard build failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.mu.Lock()
	h.cache[cacheKey] = cachedDashboard{payload: *payload, expires: h.now().Add(h.cacheTTL)}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, *payload)
}

func (h *DashboardHandler) build(ctx context.Context, tenantID string, start, end time.Time) (*TenantDashboard, error) {
	daily, err := h.bookingCohort(ctx, tenantID, start, end)
	if err != nil {
		return nil, err
	}
	daily = fillMissingDays(daily, start, end)

	var booked, cancelled int64
	for _, day := range daily {
		booked += day.Booked
		cancelled += day.Cancelled
	}
	cancellationPct := 0.0
	if booked > 0 {
		cancellationPct = float64(cancelled) / float64(booked) * 100.0
	}

	upcoming, err := h.upcomingCount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	topProcs, err := h.topProcedures(ctx, tenantID, start, end)
	if err != nil {
		return nil, err
	}

	return &TenantDashboard{
		TenantID:        tenantID,
		PeriodStart:     start.UTC().Format(time.RFC3339),
		PeriodEnd:       end.UTC().Format(time.RFC3339),
		BookedTotal:     booked,
		CancelledTotal:  cancelled,
		UpcomingTotal:   upcoming,
		CancellationPct: cancellationPct,
		TopProcedures:   topProcs,
		LLMLatency:      snapshotLLMLatency(h.gatherer),
		Daily:           daily,
	}, nil
}

func (h *DashboardHandler) bookingCohort(ctx context.Context, tenantID string, start, end time.Time) ([]BookingCohortDay, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT date_trunc('day', created_at) AS day,
		       COUNT(*) FILTER (WHERE status <> 'CANCELLED') AS booked,
		       COUNT(*) FILTER (WHERE status = 'CANCELLED') AS cancelled
		FROM appointments
		WHERE clinic_id = $1
		  AND created_at >= $2
		  AND created_at < $3
		GROUP BY day
		ORDER BY day
	`, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("httpapi: query booking cohort: %w", err)
	}
	defer rows.Close()

	var out []BookingCohortDay
	for rows.Next() {
		var day time.Time
		var b, c int64
		if err := rows.Scan(&day, &b, &c); err != nil {
			return nil, fmt.Errorf("httpapi: scan booking cohort: %w", err)
		}
		out = append(out, BookingCohortDay{
			Day:       day.UTC(),
			DayLabel:  day.UTC().Format("2006-01-02"),
			Booked:    b,
			Cancelled: c,
		})
	}
	return out, rows.Err()
}

func (h *DashboardHandler) upcomingCount(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := h.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE clinic_id = $1 AND status = 'SCHEDULED' AND start_time >= now()
	`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("httpapi: query upcoming: %w", err)
	}
	return n, nil
}

func (h *DashboardHandler) topProcedures(ctx context.Context, tenantID string, start, end time.Time) ([]ProcedureCount, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT procedure_type, COUNT(*) AS n
		FROM appointments
		WHERE clinic_id = $1
		  AND created_at >= $2
		  AND created_at < $3
		GROUP BY procedure_type
		ORDER BY n DESC, procedure_type
		LIMIT 5
	`, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("httpapi: query top procedures: %w", err)
	}
	defer rows.Close()

	out := []ProcedureCount{}
	for rows.Next() {
		var pc ProcedureCount
		if err := rows.Scan(&pc.Procedure, &pc.Count); err != nil {
			return nil, fmt.Errorf("httpapi: scan top procedures: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (h *DashboardHandler) parseWindow(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()

	startRaw := strings.TrimSpace(q.Get("start"))
	endRaw := strings.TrimSpace(q.Get("end"))
	if (startRaw == "") != (endRaw == "") {
		return time.Time{}, time.Time{}, fmt.Errorf("both start and end must be provided, or neither")
	}
	if startRaw != "" {
		start, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start time, use RFC3339 format")
		}
		end, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end time, use RFC3339 format")
		}
		if !end.After(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("end must be after start")
		}
		return start.UTC(), end.UTC(), nil
	}

	days := 7
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid days; must be 1-90")
		}
		days = parsed
	}

	now := h.now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -days)
	return start, end, nil
}

func fillMissingDays(existing []BookingCohortDay, start, end time.Time) []BookingCohortDay {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	lookup := map[string]BookingCohortDay{}
	for _, d := range existing {
		lookup[d.Day.UTC().Format("2006-01-02")] = d
	}

	out := make([]BookingCohortDay, 0, int(endDay.Sub(startDay).Hours()/24)+1)
	for day := startDay; day.Before(endDay); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		if found, ok := lookup[key]; ok {
			out = append(out, found)
			continue
		}
		out = append(out, BookingCohortDay{Day: day, DayLabel: key})
	}
	return out
}

// snapshotLLMLatency aggregates the extraction-LLM latency histogram across
// models, keeping only status="ok" samples.
func snapshotLLMLatency(gatherer prometheus.Gatherer) LLMLatencySnapshot {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return LLMLatencySnapshot{}
	}

	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf != nil && mf.GetName() == llmLatencyFamily {
			family = mf
			break
		}
	}
	if family == nil {
		return LLMLatencySnapshot{}
	}

	cumulativeByUpper := map[float64]uint64{}
	var sampleCount uint64

	for _, metric := range family.Metric {
		if metric == nil {
			continue
		}
		if !hasLabel(metric, "status", "ok") {
			continue
		}
		hist := metric.GetHistogram()
		if hist == nil {
			continue
		}
		sampleCount += hist.GetSampleCount()
		for _, b := range hist.Bucket {
			if b == nil {
				continue
			}
			cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if sampleCount == 0 || len(cumulativeByUpper) == 0 {
		return LLMLatencySnapshot{}
	}

	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	buckets := make([]LLMLatencyBucket, 0, len(uppers))
	var prev uint64
	var lastFiniteUpper float64
	for _, upper := range uppers {
		cum := cumulativeByUpper[upper]
		count := int64(cum)
		if cum >= prev {
			count = int64(cum - prev)
		}
		if math.IsInf(upper, 1) {
			if count > 0 {
				buckets = append(buckets, LLMLatencyBucket{
					LeSeconds: lastFiniteUpper,
					Label:     fmt.Sprintf(">%s", formatSeconds(lastFiniteUpper)),
					Count:     count,
				})
			}
			prev = cum
			continue
		}
		lastFiniteUpper = upper
		buckets = append(buckets, LLMLatencyBucket{LeSeconds: upper, Count: count})
		prev = cum
	}

	return LLMLatencySnapshot{
		Total:   int64(sampleCount),
		P90Ms:   histogramQuantile(0.90, sampleCount, uppers, cumulativeByUpper) * 1000.0,
		P95Ms:   histogramQuantile(0.95, sampleCount, uppers, cumulativeByUpper) * 1000.0,
		Buckets: buckets,
	}
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, lp := range metric.Label {
		if lp == nil {
			continue
		}
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}
	if q >= 1 {
		for i := len(uppers) - 1; i >= 0; i-- {
			if !math.IsInf(uppers[i], 1) {
				return uppers[i]
			}
		}
		return 0
	}

	target := q * float64(total)
	var prevUpper float64
	var prevCum float64

	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}

		bucketCount := cum - prevCum
		if bucketCount <= 0 || upper == prevUpper {
			return upper
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}

		fraction := (target - prevCum) / bucketCount
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		return prevUpper + fraction*(upper-prevUpper)
	}

	return uppers[len(uppers)-1]
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	if seconds < 1 {
		return fmt.Sprintf("%.2fs", seconds)
	}
	if seconds < 10 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	return fmt.Sprintf("%.0fs", seconds)
}
