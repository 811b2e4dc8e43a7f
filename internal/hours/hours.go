// Package hours normalizes report entries to hours.
package hours

import (
	"math"
	"strconv"

	"github.com/Tiliavir/research-hours/internal/model"
)

// HoursPerDay converts weekly "days" entries to hours.
const HoursPerDay = 8

// ToHours returns the hour value of an entry in a report of the given kind.
func ToHours(e model.Entry, kind model.Kind) float64 {
	if kind == model.KindWeekly {
		return e.Days * HoursPerDay
	}
	return e.Hours
}

// Amount returns the raw amount an entry records: hours for daily reports,
// days for weekly ones.
func Amount(e model.Entry, kind model.Kind) float64 {
	if kind == model.KindWeekly {
		return e.Days
	}
	return e.Hours
}

// Total sums the normalized hours of a report.
func Total(r model.Report) float64 {
	var sum float64
	for _, e := range r.Head().Entries {
		sum += ToHours(e, r.Kind())
	}
	return sum
}

// Round2 rounds to two decimals. Apply it only when presenting values.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Format renders v rounded to two decimals without trailing zeros.
func Format(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', -1, 64)
}
