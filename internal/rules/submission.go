package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/Tiliavir/research-hours/internal/coverage"
	"github.com/Tiliavir/research-hours/internal/hours"
	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/timecalc"
)

const (
	maxDailyHours = 24
	maxWeeklyDays = timecalc.WorkDays
)

// CheckSubmission is the write-time guard. It returns an allowed decision
// only when persisting r keeps every invariant: one daily per date, one
// weekly per span, never a daily and a weekly in the same week, and valid
// entries. A daily whose key is already stored is treated as an edit.
func (e Engine) CheckSubmission(r model.Report) Decision {
	if d := validateEntries(r); !d.Allowed {
		return d
	}
	switch v := r.(type) {
	case model.Daily:
		return e.checkDaily(v)
	case model.Weekly:
		return e.checkWeekly(v)
	default:
		return reject("unsupported report type")
	}
}

func (e Engine) checkDaily(d model.Daily) Decision {
	c := coverage.Find(d.Date, e.Reports)
	var dec Decision
	switch {
	case c.Daily == nil:
		dec = e.CanCreate(d.Date)
	case c.Daily.Key != d.Key:
		return reject(MsgDailyExists)
	default:
		dec = e.CanEdit(d.Date)
	}
	if !dec.Allowed {
		return dec
	}
	return e.TypeConflict(d.Date, model.KindDaily)
}

func (e Engine) checkWeekly(w model.Weekly) Decision {
	if existing, ok := e.Reports.Get(w.Key); ok && existing.Kind() == model.KindWeekly {
		return reject(MsgEditWeekly)
	}
	from, to, ok := e.WeeklyTarget()
	if !ok {
		return reject(MsgWeeklyClosed)
	}
	if !timecalc.SameDay(w.Start, from) || !timecalc.SameDay(w.End, to) {
		return reject(MsgWeeklyOutside)
	}
	return e.TypeConflict(w.Start, model.KindWeekly)
}

func validateEntries(r model.Report) Decision {
	entries := r.Head().Entries
	if d, ok := r.(model.Daily); ok {
		switch d.WorkStatus {
		case model.NoWork:
			if len(entries) > 0 {
				return reject("a no-work day cannot have entries")
			}
			return allow()
		default:
			if len(entries) == 0 {
				return reject("a worked day needs at least one entry")
			}
		}
	} else if len(entries) == 0 {
		return reject("a weekly report needs at least one entry")
	}

	unit := "hours"
	if r.Kind() == model.KindWeekly {
		unit = "days"
	}
	var total float64
	for i, entry := range entries {
		label := strings.TrimSpace(entry.Researcher)
		if label == "" {
			return reject(fmt.Sprintf("entry %d: researcher is required", i+1))
		}
		amount := hours.Amount(entry, r.Kind())
		if !(amount > 0) || math.IsInf(amount, 0) {
			return reject(fmt.Sprintf("entry %d: %s must be greater than zero", i+1, unit))
		}
		if model.IsReserved(label) && strings.TrimSpace(entry.Detail) == "" {
			return reject(fmt.Sprintf("entry %d: a detail is required for %q", i+1, label))
		}
		total += amount
	}
	if r.Kind() == model.KindDaily && total > maxDailyHours {
		return reject(fmt.Sprintf("daily total cannot exceed %d hours", maxDailyHours))
	}
	if r.Kind() == model.KindWeekly && total > maxWeeklyDays {
		return reject(fmt.Sprintf("weekly total cannot exceed %d days", maxWeeklyDays))
	}
	return allow()
}
