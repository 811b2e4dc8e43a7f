package model

import (
	"sort"
	"time"
)

// Kind distinguishes the two report variants.
type Kind string

const (
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
)

// WorkStatus records whether a daily report describes a working day.
type WorkStatus string

const (
	Worked WorkStatus = "worked"
	NoWork WorkStatus = "no-work"
)

// Entry is one allocation line inside a report. Daily entries carry Hours,
// weekly entries carry Days.
type Entry struct {
	Researcher string
	Hours      float64
	Days       float64
	Detail     string
}

// Header holds the fields shared by both report variants.
type Header struct {
	Key       string
	Entries   []Entry
	Timestamp int64
}

// Report is either a Daily or a Weekly.
type Report interface {
	Kind() Kind
	Head() Header
	// Span returns the first and last calendar day the report covers.
	Span() (from, to time.Time)
	sealed()
}

// Daily is a report for a single calendar date.
type Daily struct {
	Header
	Date       time.Time
	WorkStatus WorkStatus
}

func (Daily) Kind() Kind { return KindDaily }
func (d Daily) Head() Header { return d.Header }
func (d Daily) Span() (time.Time, time.Time) { return d.Date, d.Date }
func (Daily) sealed() {}

// Weekly is a report for a Sunday..Thursday span.
type Weekly struct {
	Header
	Start time.Time
	End   time.Time
	Label string
}

func (Weekly) Kind() Kind { return KindWeekly }
func (w Weekly) Head() Header { return w.Header }
func (w Weekly) Span() (time.Time, time.Time) { return w.Start, w.End }
func (Weekly) sealed() {}

// Collection is a user's reports ordered by key.
type Collection []Report

// Sort orders the collection by report key.
func (c Collection) Sort() {
	sort.SliceStable(c, func(i, j int) bool { return c[i].Head().Key < c[j].Head().Key })
}

// Get returns the report stored under key.
func (c Collection) Get(key string) (Report, bool) {
	for _, r := range c {
		if r.Head().Key == key {
			return r, true
		}
	}
	return nil, false
}

// Dailies returns the daily reports in collection order.
func (c Collection) Dailies() []Daily {
	var out []Daily
	for _, r := range c {
		if d, ok := r.(Daily); ok {
			out = append(out, d)
		}
	}
	return out
}

// Weeklies returns the weekly reports in collection order.
func (c Collection) Weeklies() []Weekly {
	var out []Weekly
	for _, r := range c {
		if w, ok := r.(Weekly); ok {
			out = append(out, w)
		}
	}
	return out
}

// With returns a copy of c where r replaces any report with the same key.
func (c Collection) With(r Report) Collection {
	out := make(Collection, 0, len(c)+1)
	for _, existing := range c {
		if existing.Head().Key != r.Head().Key {
			out = append(out, existing)
		}
	}
	out = append(out, r)
	out.Sort()
	return out
}
