package export

import (
	"fmt"
	"time"

	"github.com/Tiliavir/research-hours/internal/allocation"
	"github.com/Tiliavir/research-hours/internal/hours"
	"github.com/Tiliavir/research-hours/internal/model"
)

// SummaryTables returns the per-label table and the per-user totals block.
func SummaryTables(s allocation.Summary, users map[string]model.Profile) (Table, Table) {
	byLabel := Table{Columns: []Column{
		{Key: "researcher", Title: "Researcher"},
		{Key: "hours", Title: "Hours", Numeric: true},
	}}
	for _, l := range s.Labels {
		byLabel.Rows = append(byLabel.Rows, Row{"researcher": l, "hours": hours.Format(s.ByLabel[l])})
	}

	totals := Table{Columns: []Column{
		{Key: "user", Title: "User"},
		{Key: "email", Title: "Email"},
		{Key: "hours", Title: "Total hours", Numeric: true},
	}}
	for _, uid := range s.Users {
		p := profileOf(uid, users)
		totals.Rows = append(totals.Rows, Row{"user": p.DisplayName(), "email": p.Email, "hours": hours.Format(s.ByUser[uid])})
	}
	totals.Rows = append(totals.Rows, Row{"user": "Total", "hours": hours.Format(s.TotalHours)})
	return byLabel, totals
}

// AllocationTable lists each user's hours per label after allocation.
func AllocationTable(s allocation.Summary, users map[string]model.Profile) Table {
	t := Table{Columns: []Column{
		{Key: "user", Title: "User"},
		{Key: "researcher", Title: "Researcher"},
		{Key: "hours", Title: "Hours", Numeric: true},
	}}
	for _, uid := range s.Users {
		name := profileOf(uid, users).DisplayName()
		for _, l := range s.LabelsFor(uid) {
			t.Rows = append(t.Rows, Row{"user": name, "researcher": l, "hours": hours.Format(s.ByUserLabel[uid][l])})
		}
	}
	return t
}

// DetailTable lists every entry as it was recorded.
func DetailTable(s allocation.Summary, users map[string]model.Profile) Table {
	t := Table{Columns: []Column{
		{Key: "user", Title: "User"},
		{Key: "email", Title: "Email"},
		{Key: "date", Title: "Date"},
		{Key: "type", Title: "Type"},
		{Key: "researcher", Title: "Researcher"},
		{Key: "amount", Title: "Amount", Numeric: true},
		{Key: "unit", Title: "Unit"},
		{Key: "hours", Title: "Hours", Numeric: true},
		{Key: "detail", Title: "Detail"},
	}}
	for _, d := range s.Details {
		p := profileOf(d.UID, users)
		unit := "hours"
		if d.Kind == model.KindWeekly {
			unit = "days"
		}
		t.Rows = append(t.Rows, Row{
			"user":       p.DisplayName(),
			"email":      p.Email,
			"date":       d.Date,
			"type":       string(d.Kind),
			"researcher": d.Researcher,
			"amount":     hours.Format(d.Amount),
			"unit":       unit,
			"hours":      hours.Format(d.Hours),
			"detail":     d.Detail,
		})
	}
	return t
}

func profileOf(uid string, users map[string]model.Profile) model.Profile {
	p, ok := users[uid]
	if !ok {
		return model.Profile{UID: uid}
	}
	if p.UID == "" {
		p.UID = uid
	}
	return p
}

// FileName builds the export file name, e.g.
// work-hours_2025-09-03_allocated.csv.
func FileName(now time.Time, allocate bool, ext string) string {
	mode := "raw"
	if allocate {
		mode = "allocated"
	}
	return fmt.Sprintf("work-hours_%s_%s.%s", now.Format("2006-01-02"), mode, ext)
}
