// Package api exposes the reporting use cases as a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Tiliavir/research-hours/internal/allocation"
	"github.com/Tiliavir/research-hours/internal/hours"
	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/service"
	"github.com/Tiliavir/research-hours/internal/store"
)

// Service is the subset of *service.Service the handlers call.
type Service interface {
	Today() time.Time
	ParseDate(v string) (time.Time, error)
	Validity(ctx context.Context, date time.Time) (service.Validity, error)
	SubmitDaily(ctx context.Context, draft service.DailyDraft) (model.Daily, error)
	SubmitWeekly(ctx context.Context, draft service.WeeklyDraft) (model.Weekly, error)
	Directory(ctx context.Context) service.Directory
	SetResearchers(ctx context.Context, labels []string) ([]string, error)
	MonthlySummary(ctx context.Context, q service.SummaryQuery) (allocation.Summary, map[string]model.Profile, error)
	Export(ctx context.Context, q service.ExportQuery) (service.ExportResult, error)
}

// Handler serves the /api/v1 routes.
type Handler struct {
	svc Service
}

// NewHandler returns a Handler over svc.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Validity reports what may be done on a date.
// GET /api/v1/validity?date=YYYY-MM-DD
func (h *Handler) Validity(c *gin.Context) {
	date, err := h.svc.ParseDate(c.Query("date"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	v, err := h.svc.Validity(c.Request.Context(), date)
	if err != nil {
		h.handleError(c, err)
		return
	}
	success(c, v)
}

type entryRequest struct {
	Researcher string  `json:"researcher"`
	Hours      float64 `json:"hours"`
	Days       float64 `json:"days"`
	Detail     string  `json:"detail"`
}

type reportRequest struct {
	Type    string         `json:"type" binding:"required,oneof=daily weekly"`
	Date    string         `json:"date"`
	NoWork  bool           `json:"noWork"`
	Entries []entryRequest `json:"entries"`
}

type reportResponse struct {
	Key    string             `json:"key"`
	Report model.StoredReport `json:"report"`
}

// SubmitReport creates or replaces a daily report, or creates a weekly one.
// POST /api/v1/reports
func (h *Handler) SubmitReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid report: "+err.Error())
		return
	}
	date, err := h.svc.ParseDate(req.Date)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	entries := make([]model.Entry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, model.Entry{Researcher: e.Researcher, Hours: e.Hours, Days: e.Days, Detail: e.Detail})
	}

	var r model.Report
	ctx := c.Request.Context()
	if req.Type == string(model.KindWeekly) {
		r, err = h.svc.SubmitWeekly(ctx, service.WeeklyDraft{Date: date, Entries: entries})
	} else {
		r, err = h.svc.SubmitDaily(ctx, service.DailyDraft{Date: date, NoWork: req.NoWork, Entries: entries})
	}
	if err != nil {
		h.handleError(c, err)
		return
	}
	created(c, reportResponse{Key: r.Head().Key, Report: model.Encode(r)})
}

// Researchers returns the label directory.
// GET /api/v1/researchers
func (h *Handler) Researchers(c *gin.Context) {
	success(c, h.svc.Directory(c.Request.Context()))
}

type researchersRequest struct {
	Active []string `json:"active"`
}

// SetResearchers replaces the caller's active researchers.
// PUT /api/v1/researchers
func (h *Handler) SetResearchers(c *gin.Context) {
	var req researchersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	active, err := h.svc.SetResearchers(c.Request.Context(), req.Active)
	if err != nil {
		h.handleError(c, err)
		return
	}
	success(c, gin.H{"active": active})
}

type labelTotal struct {
	Label string  `json:"label"`
	Hours float64 `json:"hours"`
}

type userTotal struct {
	UID   string  `json:"uid"`
	Name  string  `json:"name"`
	Hours float64 `json:"hours"`
}

type summaryResponse struct {
	Month       int          `json:"month"`
	Year        int          `json:"year"`
	Allocate    bool         `json:"allocate"`
	Labels      []labelTotal `json:"labels"`
	Users       []userTotal  `json:"users"`
	ActiveUsers int          `json:"activeUsers"`
	Entries     int          `json:"entries"`
	TotalHours  float64      `json:"totalHours"`
}

// Summary returns the monthly aggregate, rounded for display.
// GET /api/v1/summary?month=9&year=2025&allocate=true&everyone=true
func (h *Handler) Summary(c *gin.Context) {
	q, ok := h.summaryQuery(c)
	if !ok {
		return
	}
	sum, users, err := h.svc.MonthlySummary(c.Request.Context(), q)
	if err != nil {
		h.handleError(c, err)
		return
	}

	resp := summaryResponse{
		Month:       int(sum.Month),
		Year:        sum.Year,
		Allocate:    sum.AllocateOthers,
		Labels:      make([]labelTotal, 0, len(sum.Labels)),
		Users:       make([]userTotal, 0, len(sum.Users)),
		ActiveUsers: sum.ActiveUsers,
		Entries:     sum.EntryCount,
		TotalHours:  hours.Round2(sum.TotalHours),
	}
	for _, l := range sum.Labels {
		resp.Labels = append(resp.Labels, labelTotal{Label: l, Hours: hours.Round2(sum.ByLabel[l])})
	}
	for _, uid := range sum.Users {
		p := users[uid]
		p.UID = uid
		resp.Users = append(resp.Users, userTotal{UID: uid, Name: p.DisplayName(), Hours: hours.Round2(sum.ByUser[uid])})
	}
	success(c, resp)
}

// Export streams the monthly export as a download.
// GET /api/v1/export?month=9&year=2025&format=xlsx&detailed=true
func (h *Handler) Export(c *gin.Context) {
	q, ok := h.summaryQuery(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", service.FormatCSV)
	if format != service.FormatCSV && format != service.FormatXLSX {
		badRequest(c, "format must be csv or xlsx")
		return
	}
	detailed, err := queryBool(c, "detailed")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.svc.Export(c.Request.Context(), service.ExportQuery{SummaryQuery: q, Format: format, Detailed: detailed})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(res.Name))
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

// summaryQuery reads month, year, allocate and everyone. Month and year
// default to the current month.
func (h *Handler) summaryQuery(c *gin.Context) (service.SummaryQuery, bool) {
	today := h.svc.Today()
	q := service.SummaryQuery{Month: today.Month(), Year: today.Year()}

	if v := c.Query("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			badRequest(c, "month must be 1-12")
			return q, false
		}
		q.Month = time.Month(m)
	}
	if v := c.Query("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			badRequest(c, "year must be a positive number")
			return q, false
		}
		q.Year = y
	}
	var err error
	if q.Allocate, err = queryBool(c, "allocate"); err != nil {
		badRequest(c, err.Error())
		return q, false
	}
	if q.Everyone, err = queryBool(c, "everyone"); err != nil {
		badRequest(c, err.Error())
		return q, false
	}
	return q, true
}

func queryBool(c *gin.Context, name string) (bool, error) {
	v := c.Query(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New(name + " must be true or false")
	}
	return b, nil
}

func (h *Handler) handleError(c *gin.Context, err error) {
	_ = c.Error(err)
	var rej *service.RejectionError
	switch {
	case errors.As(err, &rej):
		fail(c, http.StatusUnprocessableEntity, CodeRejected, rej.Decision.Message)
	case errors.Is(err, store.ErrPermissionDenied):
		fail(c, http.StatusForbidden, CodeForbidden, "permission denied")
	case errors.Is(err, service.ErrWriteFailed):
		failWithDetails(c, http.StatusServiceUnavailable, CodeWriteFailed, service.ErrWriteFailed.Error(), err.Error())
	case errors.Is(err, store.ErrNotFound):
		fail(c, http.StatusNotFound, CodeNotFound, "not found")
	case errors.Is(err, store.ErrUnavailable):
		fail(c, http.StatusServiceUnavailable, CodeInternal, "storage unavailable")
	default:
		fail(c, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
