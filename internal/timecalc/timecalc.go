package timecalc

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the storage format for calendar dates.
const DateLayout = "2006-01-02"

// DisplayLayout is the day/month/year format used in week labels.
const DisplayLayout = "02/01/2006"

// WorkDays is the number of days in a Sunday..Thursday work week.
const WorkDays = 5

// StartOfDay returns 00:00:00 of the same day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999999999 of the same day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// SameDay reports whether two times fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// AddDays moves t by n calendar days and normalizes to midnight.
func AddDays(t time.Time, n int) time.Time {
	return StartOfDay(t.AddDate(0, 0, n))
}

// SundayOf returns midnight of the Sunday that starts the week containing t.
// The work week runs Sunday..Thursday; Friday and Saturday map back to the
// Sunday of the same week.
func SundayOf(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// WeekRangeLabel returns the Sunday and the following Thursday of the week
// containing t.
func WeekRangeLabel(t time.Time) (time.Time, time.Time) {
	sunday := SundayOf(t)
	return sunday, sunday.AddDate(0, 0, WorkDays-1)
}

// FormatWeekLabel renders a span as "DD/MM/YYYY - DD/MM/YYYY".
func FormatWeekLabel(from, to time.Time) string {
	return from.Format(DisplayLayout) + " - " + to.Format(DisplayLayout)
}

// IsWorkday reports whether t falls on Sunday..Thursday.
func IsWorkday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Friday && wd != time.Saturday
}

// Within reports whether day lies in [from, to] with to clamped to the end of
// its day.
func Within(day, from, to time.Time) bool {
	return !day.Before(StartOfDay(from)) && !day.After(EndOfDay(to))
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DailyKey is the storage key of the daily report for day.
func DailyKey(day time.Time) string {
	return "daily_" + FormatDate(day)
}

// WeeklyKey is the storage key of the weekly report starting on sunday.
func WeeklyKey(sunday time.Time) string {
	return "weekly_" + FormatDate(sunday)
}

var dottedDate = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)

// ParseWeekRange resolves the boundaries of a stored weekly report. It tries,
// in order: the weekStart/weekEnd pair, a "DD/MM/YYYY - DD/MM/YYYY" label and
// the legacy dotted "D.M.YYYY - D.M.YYYY" label. ok is false when none of
// them yields a valid range.
func ParseWeekRange(weekStart, weekEnd, label string, loc *time.Location) (from, to time.Time, ok bool) {
	if loc == nil {
		loc = time.Local
	}
	if from, to, ok = parsePair(weekStart, weekEnd, loc); ok {
		return from, to, true
	}
	left, right, found := strings.Cut(label, " - ")
	if !found {
		left, right, found = strings.Cut(label, "-")
		if !found || strings.Count(label, "-") != 1 {
			return time.Time{}, time.Time{}, false
		}
	}
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)

	if a, errA := time.ParseInLocation(DisplayLayout, left, loc); errA == nil {
		if b, errB := time.ParseInLocation(DisplayLayout, right, loc); errB == nil {
			return ordered(a, b)
		}
	}
	a, okA := parseDotted(left, loc)
	b, okB := parseDotted(right, loc)
	if okA && okB {
		return ordered(a, b)
	}
	return time.Time{}, time.Time{}, false
}

func parsePair(start, end string, loc *time.Location) (time.Time, time.Time, bool) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, false
	}
	a, okA := parseStamp(start, loc)
	b, okB := parseStamp(end, loc)
	if !okA || !okB {
		return time.Time{}, time.Time{}, false
	}
	return ordered(a, b)
}

// parseStamp accepts a plain date or an RFC 3339 instant (as written by
// Date.toISOString in older clients).
func parseStamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, true
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return StartOfDay(t.In(loc)), true
		}
	}
	return time.Time{}, false
}

func parseDotted(s string, loc *time.Location) (time.Time, bool) {
	m := dottedDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2.1.2006", m[1]+"."+m[2]+"."+m[3], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func ordered(a, b time.Time) (time.Time, time.Time, bool) {
	a, b = StartOfDay(a), StartOfDay(b)
	if a.After(b) {
		return time.Time{}, time.Time{}, false
	}
	return a, b, true
}
