package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tiliavir/research-hours/internal/allocation"
	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/rules"
	"github.com/Tiliavir/research-hours/internal/service"
	"github.com/Tiliavir/research-hours/internal/store"
	"github.com/Tiliavir/research-hours/internal/timecalc"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var today = time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)

type mockService struct {
	validity    service.Validity
	validityErr error

	submitErr  error
	lastDaily  *service.DailyDraft
	lastWeekly *service.WeeklyDraft

	dir    service.Directory
	setErr error

	summary     allocation.Summary
	users       map[string]model.Profile
	summaryErr  error
	lastSummary service.SummaryQuery

	export     service.ExportResult
	exportErr  error
	lastExport service.ExportQuery
}

func (m *mockService) Today() time.Time { return today }

func (m *mockService) ParseDate(v string) (time.Time, error) {
	if v == "" {
		return today, nil
	}
	return timecalc.ParseDate(v, time.UTC)
}

func (m *mockService) Validity(_ context.Context, date time.Time) (service.Validity, error) {
	return m.validity, m.validityErr
}

func (m *mockService) SubmitDaily(_ context.Context, d service.DailyDraft) (model.Daily, error) {
	m.lastDaily = &d
	if m.submitErr != nil {
		return model.Daily{}, m.submitErr
	}
	return model.Daily{
		Header:     model.Header{Key: timecalc.DailyKey(d.Date), Entries: d.Entries},
		Date:       d.Date,
		WorkStatus: model.Worked,
	}, nil
}

func (m *mockService) SubmitWeekly(_ context.Context, d service.WeeklyDraft) (model.Weekly, error) {
	m.lastWeekly = &d
	if m.submitErr != nil {
		return model.Weekly{}, m.submitErr
	}
	sunday := timecalc.SundayOf(d.Date)
	return model.Weekly{
		Header: model.Header{Key: timecalc.WeeklyKey(sunday), Entries: d.Entries},
		Start:  sunday,
		End:    sunday.AddDate(0, 0, 4),
	}, nil
}

func (m *mockService) Directory(context.Context) service.Directory { return m.dir }

func (m *mockService) SetResearchers(_ context.Context, labels []string) ([]string, error) {
	if m.setErr != nil {
		return nil, m.setErr
	}
	return model.NormalizeResearchers(labels), nil
}

func (m *mockService) MonthlySummary(_ context.Context, q service.SummaryQuery) (allocation.Summary, map[string]model.Profile, error) {
	m.lastSummary = q
	return m.summary, m.users, m.summaryErr
}

func (m *mockService) Export(_ context.Context, q service.ExportQuery) (service.ExportResult, error) {
	m.lastExport = q
	return m.export, m.exportErr
}

func serve(t *testing.T, svc Service, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	NewRouter(NewHandler(svc), zap.NewNop()).ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestValidity(t *testing.T) {
	svc := &mockService{validity: service.Validity{Date: "2025-09-01", Period: "current-week", Create: rules.Decision{Allowed: true}}}
	w := serve(t, svc, http.MethodGet, "/api/v1/validity?date=2025-09-01", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, CodeOK, resp.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "2025-09-01", data["date"])
	assert.Equal(t, true, data["create"].(map[string]any)["allowed"])
}

func TestValidity_BadDate(t *testing.T) {
	w := serve(t, &mockService{}, http.MethodGet, "/api/v1/validity?date=03/09/2025", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeBadRequest, decode(t, w).Code)
}

func TestSubmitReport_Daily(t *testing.T) {
	svc := &mockService{}
	body := map[string]any{
		"type":    "daily",
		"date":    "2025-09-01",
		"entries": []map[string]any{{"researcher": "Alpha", "hours": 4.5}},
	}
	w := serve(t, svc, http.MethodPost, "/api/v1/reports", body)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, svc.lastDaily)
	assert.Nil(t, svc.lastWeekly)
	assert.Equal(t, "2025-09-01", timecalc.FormatDate(svc.lastDaily.Date))
	require.Len(t, svc.lastDaily.Entries, 1)
	assert.Equal(t, 4.5, svc.lastDaily.Entries[0].Hours)

	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, "daily_2025-09-01", data["key"])
	assert.Equal(t, "daily", data["report"].(map[string]any)["type"])
}

func TestSubmitReport_Weekly(t *testing.T) {
	svc := &mockService{}
	body := map[string]any{
		"type":    "weekly",
		"date":    "2025-09-04",
		"entries": []map[string]any{{"researcher": "Alpha", "days": 2}},
	}
	w := serve(t, svc, http.MethodPost, "/api/v1/reports", body)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, svc.lastWeekly)
	assert.Equal(t, "weekly_2025-08-31", decode(t, w).Data.(map[string]any)["key"])
}

func TestSubmitReport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		err      error
		wantHTTP int
		wantCode int
	}{
		{"malformed json", "{", nil, http.StatusBadRequest, CodeBadRequest},
		{"unknown type", map[string]any{"type": "monthly"}, nil, http.StatusBadRequest, CodeBadRequest},
		{"bad date", map[string]any{"type": "daily", "date": "yesterday"}, nil, http.StatusBadRequest, CodeBadRequest},
		{
			"rejected",
			map[string]any{"type": "daily", "date": "2025-09-05"},
			&service.RejectionError{Decision: rules.Decision{Message: rules.MsgWeekend}},
			http.StatusUnprocessableEntity, CodeRejected,
		},
		{
			"write failed",
			map[string]any{"type": "daily"},
			fmt.Errorf("%w: %w", service.ErrWriteFailed, store.ErrUnavailable),
			http.StatusServiceUnavailable, CodeWriteFailed,
		},
		{
			"denied",
			map[string]any{"type": "daily"},
			fmt.Errorf("reading reports for u1: %w", store.ErrPermissionDenied),
			http.StatusForbidden, CodeForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, &mockService{submitErr: tt.err}, http.MethodPost, "/api/v1/reports", tt.body)
			assert.Equal(t, tt.wantHTTP, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decode(t, w).Code)
		})
	}
}

func TestSubmitReport_RejectionMessage(t *testing.T) {
	svc := &mockService{submitErr: &service.RejectionError{Decision: rules.Decision{Message: rules.MsgFuture}}}
	w := serve(t, svc, http.MethodPost, "/api/v1/reports", map[string]any{"type": "daily", "date": "2025-09-10"})
	assert.Equal(t, rules.MsgFuture, decode(t, w).Message)
}

func TestResearchers(t *testing.T) {
	svc := &mockService{dir: service.Directory{Global: []string{"Alpha"}, Selectable: []string{"Alpha", model.OtherTasks, model.Training}}}
	w := serve(t, svc, http.MethodGet, "/api/v1/researchers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data.(map[string]any)
	assert.Len(t, data["selectable"], 3)

	w = serve(t, svc, http.MethodPut, "/api/v1/researchers", map[string]any{"active": []string{" Beta ", "Beta", model.OtherTasks}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Beta"}, decode(t, w).Data.(map[string]any)["active"])

	denied := &mockService{setErr: fmt.Errorf("%w: %w", service.ErrWriteFailed, store.ErrPermissionDenied)}
	w = serve(t, denied, http.MethodPut, "/api/v1/researchers", map[string]any{"active": []string{"Beta"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSummary(t *testing.T) {
	svc := &mockService{
		summary: allocation.Summary{
			Month: time.September, Year: 2025, AllocateOthers: true,
			Labels:     []string{"Alpha"},
			ByLabel:    map[string]float64{"Alpha": 10.0 / 3},
			ByUser:     map[string]float64{"u1": 10.0 / 3},
			Users:      []string{"u1"},
			TotalHours: 10.0 / 3,
		},
		users: map[string]model.Profile{"u1": {Name: "Dana"}},
	}
	w := serve(t, svc, http.MethodGet, "/api/v1/summary?month=9&year=2025&allocate=true&everyone=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, service.SummaryQuery{Month: time.September, Year: 2025, Allocate: true, Everyone: true}, svc.lastSummary)

	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, 3.33, data["totalHours"])
	users := data["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "Dana", users[0].(map[string]any)["name"])
}

func TestSummary_DefaultsToCurrentMonth(t *testing.T) {
	svc := &mockService{}
	w := serve(t, svc, http.MethodGet, "/api/v1/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.September, svc.lastSummary.Month)
	assert.Equal(t, 2025, svc.lastSummary.Year)
	assert.False(t, svc.lastSummary.Everyone)
}

func TestSummary_BadQuery(t *testing.T) {
	for _, q := range []string{"month=13", "month=x", "year=0", "allocate=maybe"} {
		w := serve(t, &mockService{}, http.MethodGet, "/api/v1/summary?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestExport(t *testing.T) {
	svc := &mockService{export: service.ExportResult{
		Name:        "work-hours_2025-09-03_raw.csv",
		ContentType: "text/csv; charset=utf-8",
		Data:        []byte("\uFEFFresearcher,hours\r\n"),
	}}
	w := serve(t, svc, http.MethodGet, "/api/v1/export?month=8&year=2025&detailed=true", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename*=UTF-8''work-hours_2025-09-03_raw.csv", w.Header().Get("Content-Disposition"))
	assert.Equal(t, svc.export.Data, w.Body.Bytes())
	assert.Equal(t, service.FormatCSV, svc.lastExport.Format)
	assert.True(t, svc.lastExport.Detailed)
	assert.Equal(t, time.August, svc.lastExport.Month)
}

func TestExport_BadFormat(t *testing.T) {
	w := serve(t, &mockService{}, http.MethodGet, "/api/v1/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport_Denied(t *testing.T) {
	svc := &mockService{exportErr: fmt.Errorf("reading all reports: %w", store.ErrPermissionDenied)}
	w := serve(t, svc, http.MethodGet, "/api/v1/export?everyone=true", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealth(t *testing.T) {
	w := serve(t, &mockService{}, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
