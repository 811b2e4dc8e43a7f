package cmd

import (
	"testing"

	"github.com/Tiliavir/research-hours/internal/model"
)

func TestParseEntry(t *testing.T) {
	tests := []struct {
		input string
		kind  model.Kind
		want  model.Entry
	}{
		{"Alpha=4", model.KindDaily, model.Entry{Researcher: "Alpha", Hours: 4}},
		{" Alpha = 2.5 ", model.KindDaily, model.Entry{Researcher: "Alpha", Hours: 2.5}},
		{"Beta=2", model.KindWeekly, model.Entry{Researcher: "Beta", Days: 2}},
		{"other tasks=1:team meeting", model.KindDaily, model.Entry{Researcher: "other tasks", Hours: 1, Detail: "team meeting"}},
		{"seminar/course/training=0.5:course: part 2", model.KindWeekly, model.Entry{Researcher: "seminar/course/training", Days: 0.5, Detail: "course: part 2"}},
	}
	for _, tt := range tests {
		got, err := parseEntry(tt.input, tt.kind)
		if err != nil {
			t.Errorf("parseEntry(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseEntry(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestParseEntry_Invalid(t *testing.T) {
	for _, input := range []string{"", "Alpha", "=4", "Alpha=", "Alpha=four", "Alpha=NaN", "Alpha=Inf", "Alpha=-inf"} {
		if _, err := parseEntry(input, model.KindDaily); err == nil {
			t.Errorf("parseEntry(%q): expected error", input)
		}
	}
}
