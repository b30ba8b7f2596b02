package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bronn-dev/dentalbridge/internal/compliance"
	"github.com/bronn-dev/dentalbridge/internal/model"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

type fakeAuditQuerier struct {
	got    compliance.Filter
	events []model.AuditEvent
}

func (f *fakeAuditQuerier) Query(_ context.Context, filter compliance.Filter) ([]model.AuditEvent, error) {
	f.got = filter
	return f.events, nil
}

type fakeExporter struct {
	enabled  bool
	exported int
	gotDay   time.Time
}

func (f *fakeExporter) Enabled() bool { return f.enabled }

func (f *fakeExporter) ExportDay(_ context.Context, _ string, day time.Time) (int, error) {
	f.gotDay = day
	return f.exported, nil
}

func auditRouter(h *AuditHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/admin/clinics/{clinicID}/audit", h.Query)
	r.Post("/v1/admin/clinics/{clinicID}/audit/export", h.Export)
	return r
}

func TestAuditQueryBuildsFilter(t *testing.T) {
	q := &fakeAuditQuerier{events: []model.AuditEvent{{Action: "booking.created"}}}
	h := NewAuditHandler(q, nil, logging.New("error"))

	req := httptest.NewRequest(http.MethodGet,
		"/v1/admin/clinics/"+testTenant+"/audit?action=booking.created&limit=5&since=2026-03-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	auditRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if q.got.TenantID != testTenant || q.got.Action != "booking.created" || q.got.Limit != 5 {
		t.Fatalf("unexpected filter %+v", q.got)
	}
	if q.got.Since.IsZero() {
		t.Fatal("since not parsed")
	}
	var body struct {
		Events []model.AuditEvent `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Events) != 1 {
		t.Fatalf("expected one event, got %d", len(body.Events))
	}
}

func TestAuditQueryRejectsBadParams(t *testing.T) {
	h := NewAuditHandler(&fakeAuditQuerier{}, nil, logging.New("error"))
	r := auditRouter(h)

	for _, qs := range []string{"?limit=0", "?limit=9999", "?since=yesterday", "?until=tomorrow"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/admin/clinics/"+testTenant+"/audit"+qs, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", qs, rec.Code)
		}
	}
}

func TestAuditExport(t *testing.T) {
	exp := &fakeExporter{enabled: true, exported: 42}
	h := NewAuditHandler(&fakeAuditQuerier{}, exp, logging.New("error"))

	req := httptest.NewRequest(http.MethodPost,
		"/v1/admin/clinics/"+testTenant+"/audit/export?day=2026-03-01", nil)
	rec := httptest.NewRecorder()
	auditRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["exported"].(float64) != 42 || body["day"] != "2026-03-01" {
		t.Fatalf("unexpected body %+v", body)
	}
	if exp.gotDay.Format("2006-01-02") != "2026-03-01" {
		t.Fatalf("exporter saw wrong day %v", exp.gotDay)
	}
}

func TestAuditExportUnavailable(t *testing.T) {
	r := auditRouter(NewAuditHandler(&fakeAuditQuerier{}, &fakeExporter{enabled: false}, logging.New("error")))

	req := httptest.NewRequest(http.MethodPost,
		"/v1/admin/clinics/"+testTenant+"/audit/export?day=2026-03-01", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
