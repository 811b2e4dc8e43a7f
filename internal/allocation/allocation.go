// Package allocation rolls reports up into monthly per-label and per-user
// totals, optionally spreading "other tasks" over each user's active
// researchers.
package allocation

import (
	"sort"
	"time"

	"github.com/Tiliavir/research-hours/internal/hours"
	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/timecalc"
)

// Summary is the result of AggregateMonth. Values are unrounded.
type Summary struct {
	Month          time.Month
	Year           int
	AllocateOthers bool
	// Labels lists every label with hours: project labels sorted, then the
	// reserved labels.
	Labels      []string
	ByLabel     map[string]float64
	ByUser      map[string]float64
	ByUserLabel map[string]map[string]float64
	// Users lists the uids with nonzero hours, sorted.
	Users       []string
	ActiveUsers int
	EntryCount  int
	TotalHours  float64
	Details     []DetailRow
}

// DetailRow is one entry of one report, as it was recorded.
type DetailRow struct {
	UID        string
	Date       string
	Kind       model.Kind
	Researcher string
	Amount     float64
	Hours      float64
	Detail     string
}

// InMonth reports whether r belongs to the given month. Weekly reports are
// checked day by day across their span.
func InMonth(r model.Report, month time.Month, year int) bool {
	from, to := r.Span()
	for d := timecalc.StartOfDay(from); !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Month() == month && d.Year() == year {
			return true
		}
	}
	return false
}

// AggregateMonth totals the reports of every user for month/year.
func AggregateMonth(reportsByUser map[string]model.Collection, usersByID map[string]model.Profile, month time.Month, year int, allocateOthers bool) Summary {
	s := Summary{
		Month:          month,
		Year:           year,
		AllocateOthers: allocateOthers,
		ByLabel:        map[string]float64{},
		ByUser:         map[string]float64{},
		ByUserLabel:    map[string]map[string]float64{},
	}

	uids := make([]string, 0, len(reportsByUser))
	for uid := range reportsByUser {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	for _, uid := range uids {
		reports := append(model.Collection(nil), reportsByUser[uid]...)
		reports.Sort()
		active := model.NormalizeResearchers(usersByID[uid].ActiveResearchers)
		for _, r := range reports {
			if !InMonth(r, month, year) {
				continue
			}
			date, _ := r.Span()
			for _, e := range r.Head().Entries {
				h := hours.ToHours(e, r.Kind())
				s.EntryCount++
				s.ByUser[uid] += h
				s.TotalHours += h
				s.Details = append(s.Details, DetailRow{
					UID:        uid,
					Date:       timecalc.FormatDate(date),
					Kind:       r.Kind(),
					Researcher: e.Researcher,
					Amount:     hours.Amount(e, r.Kind()),
					Hours:      h,
					Detail:     e.Detail,
				})
				s.distribute(uid, e.Researcher, h, active)
			}
		}
	}

	for _, uid := range uids {
		if s.ByUser[uid] > 0 {
			s.Users = append(s.Users, uid)
		}
	}
	s.ActiveUsers = len(s.Users)
	s.Labels = sortLabels(s.ByLabel)
	return s
}

func (s *Summary) distribute(uid, label string, h float64, active []string) {
	if label == model.OtherTasks && s.AllocateOthers {
		if len(active) == 0 {
			// Unattributable: counted in the user's total only.
			return
		}
		portion := h / float64(len(active))
		for _, target := range active {
			s.add(uid, target, portion)
		}
		return
	}
	s.add(uid, label, h)
}

func (s *Summary) add(uid, label string, h float64) {
	s.ByLabel[label] += h
	perUser := s.ByUserLabel[uid]
	if perUser == nil {
		perUser = map[string]float64{}
		s.ByUserLabel[uid] = perUser
	}
	perUser[label] += h
}

func sortLabels(byLabel map[string]float64) []string {
	var projects, reserved []string
	for l := range byLabel {
		if model.IsReserved(l) {
			reserved = append(reserved, l)
		} else {
			projects = append(projects, l)
		}
	}
	sort.Strings(projects)
	sort.Strings(reserved)
	return append(projects, reserved...)
}

// LabelsFor returns the labels a user has hours under, in Summary label
// order.
func (s Summary) LabelsFor(uid string) []string {
	var out []string
	for _, l := range s.Labels {
		if _, ok := s.ByUserLabel[uid][l]; ok {
			out = append(out, l)
		}
	}
	return out
}
