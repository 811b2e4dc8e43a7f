package cmd

import (
	"testing"
	"time"

	"github.com/Tiliavir/research-hours/internal/allocation"
	"github.com/Tiliavir/research-hours/internal/model"
)

func TestReportJSON(t *testing.T) {
	sum := allocation.Summary{
		Month:          time.September,
		Year:           2025,
		AllocateOthers: true,
		Labels:         []string{"Alpha", model.Training},
		ByLabel:        map[string]float64{"Alpha": 10.0 / 3, model.Training: 2},
		ByUser:         map[string]float64{"u1": 10.0/3 + 2},
		ByUserLabel:    map[string]map[string]float64{"u1": {"Alpha": 10.0 / 3, model.Training: 2}},
		Users:          []string{"u1"},
		ActiveUsers:    1,
		EntryCount:     3,
		TotalHours:     10.0/3 + 2,
	}
	got := reportJSON(sum, map[string]model.Profile{"u1": {Email: "dana@example.org"}})

	if got.Month != "2025-09" {
		t.Errorf("Month = %q, want 2025-09", got.Month)
	}
	if got.TotalHours != 5.33 {
		t.Errorf("TotalHours = %v, want 5.33", got.TotalHours)
	}
	if len(got.Labels) != 2 || got.Labels[0].Hours != 3.33 || got.Labels[1].Label != model.Training {
		t.Errorf("Labels = %+v", got.Labels)
	}
	if len(got.Users) != 1 || got.Users[0].Name != "dana@example.org" || len(got.Users[0].Labels) != 2 {
		t.Errorf("Users = %+v", got.Users)
	}
}

func TestReportJSON_Empty(t *testing.T) {
	got := reportJSON(allocation.Summary{Month: time.January, Year: 2026}, nil)
	if got.Labels == nil || got.Users == nil {
		t.Error("empty summary should encode labels and users as []")
	}
	if got.Month != "2026-01" {
		t.Errorf("Month = %q", got.Month)
	}
}

func TestDisplayName(t *testing.T) {
	users := map[string]model.Profile{"u1": {Name: "Dana"}}
	if got := displayName("u1", users); got != "Dana" {
		t.Errorf("displayName(u1) = %q", got)
	}
	if got := displayName("u2", users); got != "u2" {
		t.Errorf("displayName(u2) = %q, want uid fallback", got)
	}
}
