package antenatal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func TestHandler_CreatePatient(t *testing.T) {
	h, e := newTestHandler()
	body := `{"name":"Sarah Johnson","age":28,"phone":"+1234567890","gestationWeeks":24,"dueDate":"2023-12-15","riskLevel":"low","ancVisits":3}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got PatientRecord
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID == "" {
		t.Error("expected generated id in response")
	}
}

func TestHandler_CreatePatient_BadRequest(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"riskLevel":"low"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if code := httpCode(t, h.CreatePatient(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_CreatePatient_Conflict(t *testing.T) {
	h, e := newTestHandler()
	h.svc.CreatePatient(context.Background(), &PatientRecord{ID: "P001", Name: "Sarah Johnson"})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"P001","name":"Other"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if code := httpCode(t, h.CreatePatient(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, e := newTestHandler()
	p := &PatientRecord{Name: "Sarah Johnson"}
	h.svc.CreatePatient(context.Background(), p)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("P404")

	if code := httpCode(t, h.GetPatient(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_ListPatients(t *testing.T) {
	h, e := newTestHandler()
	for _, name := range []string{"A One", "B Two", "C Three"} {
		h.svc.CreatePatient(context.Background(), &PatientRecord{Name: name})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients?limit=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data    []PatientRecord `json:"data"`
		Total   int             `json:"total"`
		HasMore bool            `json:"has_more"`
		Next    string          `json:"next"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Total != 3 || len(body.Data) != 2 || !body.HasMore {
		t.Errorf("unexpected page: total=%d len=%d has_more=%v", body.Total, len(body.Data), body.HasMore)
	}
	if body.Next != "/api/v1/patients?limit=2&offset=2" {
		t.Errorf("unexpected next link %q", body.Next)
	}
}

func TestHandler_UpdatePatient(t *testing.T) {
	h, e := newTestHandler()
	p := &PatientRecord{Name: "Sarah Johnson"}
	h.svc.CreatePatient(context.Background(), p)

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":"Sarah Johnson","riskLevel":"high"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)

	if err := h.UpdatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := h.svc.GetPatient(context.Background(), p.ID)
	if got.RiskLevel != RiskHigh {
		t.Errorf("expected risk level high, got %q", got.RiskLevel)
	}
}

func TestHandler_DeletePatient(t *testing.T) {
	h, e := newTestHandler()
	p := &PatientRecord{Name: "Sarah Johnson"}
	h.svc.CreatePatient(context.Background(), p)

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)

	if err := h.DeletePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"GET /api/v1/patients":        false,
		"POST /api/v1/patients":       false,
		"GET /api/v1/patients/:id":    false,
		"PUT /api/v1/patients/:id":    false,
		"DELETE /api/v1/patients/:id": false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}
