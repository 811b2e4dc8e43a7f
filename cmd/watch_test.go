package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/session"
)

func TestDescribeSnapshot(t *testing.T) {
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	reports := model.Collection{
		model.Daily{Header: model.Header{Key: "daily_2025-09-01", Entries: []model.Entry{{Researcher: "Alpha", Hours: 4}}}, Date: day, WorkStatus: model.Worked},
		model.Weekly{Header: model.Header{Key: "weekly_2025-08-24", Entries: []model.Entry{{Researcher: "Beta", Days: 1.5}}}, Start: day.AddDate(0, 0, -8), End: day.AddDate(0, 0, -4)},
	}
	now := time.Date(2025, 9, 1, 9, 30, 0, 0, time.UTC)

	got := describeSnapshot(session.Snapshot{ID: "s1", Profile: model.Profile{UID: "u1", Name: "Dana"}, Reports: reports}, now)
	if got != "09:30:00  Dana: 2 reports, 16h" {
		t.Errorf("describeSnapshot = %q", got)
	}

	priv := session.Snapshot{
		ID:         "s2",
		Privileged: true,
		Profile:    model.Profile{UID: "u1"},
		AllUsers:   map[string]model.Profile{"u1": {}, "u2": {}},
		AllReports: map[string]model.Collection{"u1": reports, "u2": reports[:1]},
	}
	got = describeSnapshot(priv, now)
	if !strings.HasSuffix(got, "| all users: 2, all reports: 3") {
		t.Errorf("describeSnapshot(privileged) = %q", got)
	}
}
