// Package service implements the reporting use cases shared by the CLI and
// the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tiliavir/research-hours/internal/coverage"
	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/rules"
	"github.com/Tiliavir/research-hours/internal/store"
	"github.com/Tiliavir/research-hours/internal/timecalc"
)

// ErrWriteFailed marks a write the store did not accept. Nothing was saved
// and the caller may retry.
var ErrWriteFailed = errors.New("could not save, please try again")

// RejectionError is returned when a rule forbids the operation.
type RejectionError struct {
	Decision rules.Decision
}

func (e *RejectionError) Error() string { return e.Decision.Message }

func rejection(d rules.Decision) error { return &RejectionError{Decision: d} }

// Options configures a Service.
type Options struct {
	Backdate rules.Backdate
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service runs use cases for one signed-in user.
type Service struct {
	store  store.Store
	uid    string
	opts   Options
	logger *zap.Logger
}

// New returns a Service acting as uid.
func New(st store.Store, uid string, opts Options, logger *zap.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: st, uid: uid, opts: opts, logger: logger}
}

// UID returns the identity the service acts as.
func (s *Service) UID() string { return s.uid }

// Location returns the zone dates are interpreted in.
func (s *Service) Location() *time.Location { return s.opts.Location }

// Today returns the start of the current day.
func (s *Service) Today() time.Time {
	return timecalc.StartOfDay(s.opts.Now().In(s.opts.Location))
}

// ParseDate parses YYYY-MM-DD in the service's zone. An empty string means
// today.
func (s *Service) ParseDate(v string) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return s.Today(), nil
	}
	return timecalc.ParseDate(v, s.opts.Location)
}

func (s *Service) engine(reports model.Collection) rules.Engine {
	return rules.Engine{Today: s.opts.Now().In(s.opts.Location), Reports: reports, Backdate: s.opts.Backdate}
}

func (s *Service) ownReports(ctx context.Context) (model.Collection, error) {
	reports, err := s.store.UserReports(ctx, s.uid)
	if err != nil {
		return nil, fmt.Errorf("reading reports for %s: %w", s.uid, err)
	}
	return reports, nil
}

// Reports returns every report of the user.
func (s *Service) Reports(ctx context.Context) (model.Collection, error) {
	return s.ownReports(ctx)
}

// Validity describes what the user may do on a date.
type Validity struct {
	Date      string         `json:"date"`
	Period    string         `json:"period"`
	Coverage  string         `json:"coverage"`
	Key       string         `json:"key,omitempty"`
	Create    rules.Decision `json:"create"`
	Edit      rules.Decision `json:"edit"`
	Weekly    rules.Decision `json:"weekly"`
	WeekLabel string         `json:"weekLabel"`
}

// Validity evaluates the rules for date against the user's reports.
func (s *Service) Validity(ctx context.Context, date time.Time) (Validity, error) {
	reports, err := s.ownReports(ctx)
	if err != nil {
		return Validity{}, err
	}
	e := s.engine(reports)
	day := timecalc.StartOfDay(date)
	c := coverage.Find(day, reports)
	sunday, thursday := e.WeekFor(day)

	v := Validity{
		Date:      timecalc.FormatDate(day),
		Period:    e.Classify(day).String(),
		Coverage:  c.State().String(),
		Create:    e.CanCreate(day),
		Edit:      rules.Decision{Message: "nothing to edit"},
		Weekly:    e.WeeklyReportAllowedFor(day),
		WeekLabel: timecalc.FormatWeekLabel(sunday, thursday),
	}
	switch {
	case c.Daily != nil:
		v.Key = c.Daily.Key
		v.Edit = e.CanEdit(day)
	case c.Weekly != nil:
		v.Key = c.Weekly.Key
		v.Edit = e.CanEdit(day)
	}
	if v.Weekly.Allowed {
		v.Weekly = e.TypeConflict(day, model.KindWeekly)
	}
	return v, nil
}

// DailyDraft is a daily report under construction.
type DailyDraft struct {
	Date    time.Time
	NoWork  bool
	Entries []model.Entry
}

// WeeklyDraft is a weekly report under construction. Date picks the week
// the way the rules engine's WeekFor does.
type WeeklyDraft struct {
	Date    time.Time
	Entries []model.Entry
}

func cleanEntries(in []model.Entry, kind model.Kind) []model.Entry {
	out := make([]model.Entry, 0, len(in))
	for _, e := range in {
		e.Researcher = strings.TrimSpace(e.Researcher)
		e.Detail = strings.TrimSpace(e.Detail)
		if kind == model.KindDaily {
			e.Days = 0
		} else {
			e.Hours = 0
		}
		out = append(out, e)
	}
	return out
}

// SubmitDaily creates or replaces the user's daily report for draft.Date.
func (s *Service) SubmitDaily(ctx context.Context, draft DailyDraft) (model.Daily, error) {
	reports, err := s.ownReports(ctx)
	if err != nil {
		return model.Daily{}, err
	}
	day := timecalc.StartOfDay(draft.Date)
	d := model.Daily{
		Header:     model.Header{Key: timecalc.DailyKey(day), Entries: cleanEntries(draft.Entries, model.KindDaily)},
		Date:       day,
		WorkStatus: model.Worked,
	}
	if draft.NoWork {
		d.WorkStatus = model.NoWork
	}
	if existing := coverage.Find(day, reports).Daily; existing != nil {
		// Editing keeps the stored key, however it was generated.
		d.Key = existing.Key
	}

	if dec := s.engine(reports).CheckSubmission(d); !dec.Allowed {
		s.logger.Info("Daily report rejected", zap.String("uid", s.uid), zap.String("date", timecalc.FormatDate(day)), zap.String("reason", dec.Message))
		return model.Daily{}, rejection(dec)
	}
	if err := s.write(ctx, d); err != nil {
		return model.Daily{}, err
	}
	return d, nil
}

// SubmitWeekly creates the user's weekly report for the week draft.Date
// selects.
func (s *Service) SubmitWeekly(ctx context.Context, draft WeeklyDraft) (model.Weekly, error) {
	reports, err := s.ownReports(ctx)
	if err != nil {
		return model.Weekly{}, err
	}
	e := s.engine(reports)
	if dec := e.WeeklyReportAllowedFor(draft.Date); !dec.Allowed {
		return model.Weekly{}, rejection(dec)
	}
	sunday, thursday := e.WeekFor(draft.Date)
	w := model.Weekly{
		Header: model.Header{Key: timecalc.WeeklyKey(sunday), Entries: cleanEntries(draft.Entries, model.KindWeekly)},
		Start:  sunday,
		End:    thursday,
		Label:  timecalc.FormatWeekLabel(sunday, thursday),
	}

	if dec := e.CheckSubmission(w); !dec.Allowed {
		s.logger.Info("Weekly report rejected", zap.String("uid", s.uid), zap.String("week", w.Label), zap.String("reason", dec.Message))
		return model.Weekly{}, rejection(dec)
	}
	if err := s.write(ctx, w); err != nil {
		return model.Weekly{}, err
	}
	return w, nil
}

func (s *Service) write(ctx context.Context, r model.Report) error {
	key := r.Head().Key
	if err := s.store.WriteReport(ctx, s.uid, key, r); err != nil {
		s.logger.Error("Report write failed", zap.String("uid", s.uid), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	s.logger.Info("Report saved", zap.String("uid", s.uid), zap.String("key", key), zap.String("kind", string(r.Kind())))
	return nil
}

// Directory is the set of labels the user can report against.
type Directory struct {
	Global []string `json:"global"`
	Active []string `json:"active"`
	// Selectable is the merged directory followed by the reserved labels.
	Selectable []string `json:"selectable"`
}

// Directory reads the global and personal researcher lists. Read failures
// degrade to empty lists.
func (s *Service) Directory(ctx context.Context) Directory {
	global, err := s.store.Researchers(ctx)
	if err != nil {
		s.logger.Warn("Reading global researchers failed", zap.Error(err))
	}
	var active []string
	p, err := s.store.User(ctx, s.uid)
	switch {
	case err == nil:
		active = p.ActiveResearchers
	case !errors.Is(err, store.ErrNotFound):
		s.logger.Warn("Reading profile failed", zap.String("uid", s.uid), zap.Error(err))
	}

	d := Directory{
		Global: model.NormalizeResearchers(global),
		Active: model.NormalizeResearchers(active),
	}
	d.Selectable = append(model.MergeDirectory(d.Global, d.Active), model.OtherTasks, model.Training)
	return d
}

// SetResearchers replaces the user's active researchers and returns the
// stored list.
func (s *Service) SetResearchers(ctx context.Context, labels []string) ([]string, error) {
	clean := model.NormalizeResearchers(labels)
	if err := s.store.WriteActiveResearchers(ctx, s.uid, clean); err != nil {
		s.logger.Error("Saving researchers failed", zap.String("uid", s.uid), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return clean, nil
}
