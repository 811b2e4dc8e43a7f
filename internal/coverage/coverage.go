// Package coverage answers which stored report accounts for a calendar date.
package coverage

import (
	"time"

	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/timecalc"
)

// State summarizes how a date is covered.
type State int

const (
	None State = iota
	ByDaily
	ByWeekly
	// Both violates the storage invariant; it is reported, never produced.
	Both
)

func (s State) String() string {
	switch s {
	case ByDaily:
		return "daily"
	case ByWeekly:
		return "weekly"
	case Both:
		return "both"
	default:
		return "none"
	}
}

// Coverage lists the reports covering a date.
type Coverage struct {
	Daily  *model.Daily
	Weekly *model.Weekly
}

// State reports which variants cover the date.
func (c Coverage) State() State {
	switch {
	case c.Daily != nil && c.Weekly != nil:
		return Both
	case c.Daily != nil:
		return ByDaily
	case c.Weekly != nil:
		return ByWeekly
	default:
		return None
	}
}

// Find returns the daily report dated day and the weekly report whose span
// contains day. Weekly spans are inclusive and end at the end of their last
// day.
func Find(day time.Time, reports model.Collection) Coverage {
	day = timecalc.StartOfDay(day)
	var c Coverage
	for _, r := range reports {
		switch v := r.(type) {
		case model.Daily:
			if c.Daily == nil && timecalc.SameDay(v.Date, day) {
				d := v
				c.Daily = &d
			}
		case model.Weekly:
			if c.Weekly == nil && timecalc.Within(day, v.Start, v.End) {
				w := v
				c.Weekly = &w
			}
		}
	}
	return c
}

// DailiesIn returns the daily reports dated within [from, to].
func DailiesIn(from, to time.Time, reports model.Collection) []model.Daily {
	var out []model.Daily
	for _, d := range reports.Dailies() {
		if timecalc.Within(d.Date, from, to) {
			out = append(out, d)
		}
	}
	return out
}

// WeeklyOverlapping returns the first weekly report sharing a day with
// [from, to].
func WeeklyOverlapping(from, to time.Time, reports model.Collection) (model.Weekly, bool) {
	from, to = timecalc.StartOfDay(from), timecalc.EndOfDay(to)
	for _, w := range reports.Weeklies() {
		if !w.Start.After(to) && !timecalc.EndOfDay(w.End).Before(from) {
			return w, true
		}
	}
	return model.Weekly{}, false
}
