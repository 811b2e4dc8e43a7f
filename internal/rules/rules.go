// Package rules decides whether a daily or weekly report may be created or
// edited for a date. Every function is pure: the engine holds today's date,
// the user's reports and the operator's backdating override, nothing else.
package rules

import (
	"time"

	"github.com/Tiliavir/research-hours/internal/coverage"
	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/timecalc"
)

// User-facing rejection messages.
const (
	MsgWeekend       = "cannot report on Friday/Saturday"
	MsgFuture        = "cannot report on a future date"
	MsgTooOld        = "cannot report more than one week back"
	MsgDailyExists   = "a daily report already exists for this date"
	MsgWeeklyExists  = "a weekly report already exists for this week"
	MsgDailiesExist  = "daily reports already exist this week"
	MsgEditWeekly    = "cannot edit a weekly report from a previous week"
	MsgEditStale     = "can only edit reports from the current week"
	MsgWeeklyClosed  = "weekly reports can only be submitted on Thursday or Sunday"
	MsgWeeklyOutside = "a weekly report must cover the week that just ended"
)

// Decision is the outcome of a rule check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func reject(msg string) Decision { return Decision{Message: msg} }

// Backdate is the operator override for dates older than the previous week.
// A zero MinDate means no floor.
type Backdate struct {
	Enabled bool
	MinDate time.Time
}

func (b Backdate) permits(day time.Time) bool {
	if !b.Enabled {
		return false
	}
	return b.MinDate.IsZero() || !day.Before(timecalc.StartOfDay(b.MinDate))
}

// Period places a date relative to today.
type Period int

const (
	Future Period = iota
	CurrentWeek
	PreviousWeek
	Older
)

func (p Period) String() string {
	switch p {
	case Future:
		return "future"
	case CurrentWeek:
		return "current-week"
	case PreviousWeek:
		return "previous-week"
	default:
		return "older"
	}
}

// Engine evaluates the rules for one user at one point in time.
type Engine struct {
	Today    time.Time
	Reports  model.Collection
	Backdate Backdate
}

func (e Engine) today() time.Time { return timecalc.StartOfDay(e.Today) }

// Classify returns the period date falls into. The previous week is the
// Sunday..Thursday span before the current one, limited to the last seven
// days.
func (e Engine) Classify(date time.Time) Period {
	day, today := timecalc.StartOfDay(date), e.today()
	if day.After(today) {
		return Future
	}
	sunday, thursday := timecalc.WeekRangeLabel(today)
	if timecalc.Within(day, sunday, thursday) {
		return CurrentWeek
	}
	prevSunday := timecalc.AddDays(sunday, -7)
	prevThursday := timecalc.AddDays(prevSunday, timecalc.WorkDays-1)
	if timecalc.Within(day, prevSunday, prevThursday) && !day.Before(timecalc.AddDays(today, -7)) {
		return PreviousWeek
	}
	return Older
}

// CanCreate reports whether a new daily report may be created for date.
func (e Engine) CanCreate(date time.Time) Decision {
	day := timecalc.StartOfDay(date)
	if !timecalc.IsWorkday(day) {
		return reject(MsgWeekend)
	}
	switch e.Classify(day) {
	case Future:
		return reject(MsgFuture)
	case Older:
		if !e.Backdate.permits(day) {
			return reject(MsgTooOld)
		}
	}
	if c := coverage.Find(day, e.Reports); c.Daily != nil {
		return reject(MsgDailyExists)
	}
	sunday, thursday := timecalc.WeekRangeLabel(day)
	if _, ok := coverage.WeeklyOverlapping(sunday, thursday, e.Reports); ok {
		return reject(MsgWeeklyExists)
	}
	return allow()
}

// CanEdit reports whether the report for date may be modified. Weekly
// reports are never editable.
func (e Engine) CanEdit(date time.Time) Decision {
	day := timecalc.StartOfDay(date)
	period := e.Classify(day)
	if period == Future {
		return reject(MsgFuture)
	}
	if c := coverage.Find(day, e.Reports); c.Weekly != nil {
		return reject(MsgEditWeekly)
	}
	if period != CurrentWeek {
		return reject(MsgEditStale)
	}
	return allow()
}

// WeekFor returns the Sunday..Thursday span a weekly report for date covers.
// Picking today on a Sunday means the week that just ended.
func (e Engine) WeekFor(date time.Time) (time.Time, time.Time) {
	day, today := timecalc.StartOfDay(date), e.today()
	sunday := timecalc.SundayOf(day)
	if today.Weekday() == time.Sunday && timecalc.SameDay(day, today) {
		sunday = timecalc.AddDays(sunday, -7)
	}
	return sunday, timecalc.AddDays(sunday, timecalc.WorkDays-1)
}

// WeeklyTarget returns the only span a weekly report may cover today. ok is
// false on days other than Thursday and Sunday.
func (e Engine) WeeklyTarget() (from, to time.Time, ok bool) {
	today := e.today()
	switch today.Weekday() {
	case time.Thursday:
		return timecalc.AddDays(today, -4), today, true
	case time.Sunday:
		return timecalc.AddDays(today, -7), timecalc.AddDays(today, -3), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// WeeklyReportAllowedFor reports whether a weekly report may be authored
// with date as its target.
func (e Engine) WeeklyReportAllowedFor(date time.Time) Decision {
	from, to, ok := e.WeeklyTarget()
	if !ok {
		return reject(MsgWeeklyClosed)
	}
	day := timecalc.StartOfDay(date)
	if timecalc.Within(day, from, to) {
		return allow()
	}
	if today := e.today(); today.Weekday() == time.Sunday && timecalc.SameDay(day, today) {
		return allow()
	}
	return reject(MsgWeeklyOutside)
}

// TypeConflict checks that daily and weekly reports never share a week.
func (e Engine) TypeConflict(date time.Time, kind model.Kind) Decision {
	if kind == model.KindWeekly {
		sunday, thursday := e.WeekFor(date)
		if len(coverage.DailiesIn(sunday, thursday, e.Reports)) > 0 {
			return reject(MsgDailiesExist)
		}
		if _, ok := coverage.WeeklyOverlapping(sunday, thursday, e.Reports); ok {
			return reject(MsgWeeklyExists)
		}
		return allow()
	}
	sunday, thursday := timecalc.WeekRangeLabel(date)
	if _, ok := coverage.WeeklyOverlapping(sunday, thursday, e.Reports); ok {
		return reject(MsgWeeklyExists)
	}
	return allow()
}
