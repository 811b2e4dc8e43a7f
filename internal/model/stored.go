package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Tiliavir/research-hours/internal/timecalc"
)

var (
	// ErrUnknownKind is returned for records that are neither daily nor weekly.
	ErrUnknownKind = errors.New("unknown report type")
	// ErrUnparseableWeek is returned when no week-range encoding parses.
	ErrUnparseableWeek = errors.New("week boundaries unknown")
	// ErrBadDate is returned for daily records without a usable date.
	ErrBadDate = errors.New("invalid report date")
)

// StoredEntry is the JSON layout of an entry. Numbers are kept as
// json.Number because older clients wrote them as strings.
type StoredEntry struct {
	Researcher string      `json:"researcher"`
	Hours      json.Number `json:"hours,omitempty"`
	Days       json.Number `json:"days,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}

// StoredReport is the JSON layout of a report under reports/{uid}/{key}.
type StoredReport struct {
	Type       string        `json:"type"`
	Date       string        `json:"date,omitempty"`
	WeekStart  string        `json:"weekStart,omitempty"`
	WeekEnd    string        `json:"weekEnd,omitempty"`
	WeekRange  string        `json:"weekRange,omitempty"`
	Entries    []StoredEntry `json:"entries,omitempty"`
	WorkStatus string        `json:"workStatus,omitempty"`
	Timestamp  int64         `json:"timestamp,omitempty"`
}

// StoredUser is the JSON layout of users/{uid}.
type StoredUser struct {
	Name              string   `json:"name,omitempty"`
	Email             string   `json:"email,omitempty"`
	ActiveResearchers []string `json:"activeResearchers,omitempty"`
}

// DecodeError ties a decoding failure to the record key.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("report %s: %v", e.Key, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Decode converts a stored record into a typed report. Dates are interpreted
// in loc.
func Decode(key string, s StoredReport, loc *time.Location) (Report, error) {
	kind := Kind(s.Type)
	if kind == "" {
		// Records written before the type field existed.
		switch {
		case s.Date != "":
			kind = KindDaily
		case s.WeekRange != "" || s.WeekStart != "":
			kind = KindWeekly
		}
	}
	head := Header{Key: key, Entries: decodeEntries(s.Entries), Timestamp: s.Timestamp}

	switch kind {
	case KindDaily:
		day, err := timecalc.ParseDate(s.Date, loc)
		if err != nil {
			return nil, &DecodeError{Key: key, Err: fmt.Errorf("%w: %v", ErrBadDate, err)}
		}
		status := WorkStatus(s.WorkStatus)
		if status != NoWork {
			status = Worked
		}
		return Daily{Header: head, Date: day, WorkStatus: status}, nil
	case KindWeekly:
		from, to, ok := timecalc.ParseWeekRange(s.WeekStart, s.WeekEnd, s.WeekRange, loc)
		if !ok {
			return nil, &DecodeError{Key: key, Err: fmt.Errorf("%w: %q", ErrUnparseableWeek, s.WeekRange)}
		}
		return Weekly{Header: head, Start: from, End: to, Label: timecalc.FormatWeekLabel(from, to)}, nil
	default:
		return nil, &DecodeError{Key: key, Err: fmt.Errorf("%w: %q", ErrUnknownKind, s.Type)}
	}
}

func decodeEntries(in []StoredEntry) []Entry {
	out := make([]Entry, 0, len(in))
	for _, e := range in {
		out = append(out, Entry{
			Researcher: e.Researcher,
			Hours:      number(e.Hours),
			Days:       number(e.Days),
			Detail:     e.Detail,
		})
	}
	return out
}

func number(n json.Number) float64 {
	if n == "" {
		return 0
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return f
}

// Encode converts a typed report into its stored layout.
func Encode(r Report) StoredReport {
	head := r.Head()
	s := StoredReport{Type: string(r.Kind()), Timestamp: head.Timestamp}
	for _, e := range head.Entries {
		se := StoredEntry{Researcher: e.Researcher, Detail: e.Detail}
		if e.Hours != 0 {
			se.Hours = json.Number(strconv.FormatFloat(e.Hours, 'f', -1, 64))
		}
		if e.Days != 0 {
			se.Days = json.Number(strconv.FormatFloat(e.Days, 'f', -1, 64))
		}
		s.Entries = append(s.Entries, se)
	}
	switch v := r.(type) {
	case Daily:
		s.Date = timecalc.FormatDate(v.Date)
		s.WorkStatus = string(v.WorkStatus)
	case Weekly:
		s.WeekStart = timecalc.FormatDate(v.Start)
		s.WeekEnd = timecalc.FormatDate(v.End)
		s.WeekRange = timecalc.FormatWeekLabel(v.Start, v.End)
	}
	return s
}

// DecodeCollection decodes every record of a reports/{uid} snapshot. Records
// that fail to decode are left out and reported in the error slice.
func DecodeCollection(raw map[string]json.RawMessage, loc *time.Location) (Collection, []error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		out  Collection
		errs []error
	)
	for _, k := range keys {
		var s StoredReport
		if err := json.Unmarshal(raw[k], &s); err != nil {
			errs = append(errs, &DecodeError{Key: k, Err: err})
			continue
		}
		r, err := Decode(k, s, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, r)
	}
	return out, errs
}

// DecodeProfile builds a Profile from its stored layout.
func DecodeProfile(uid string, s StoredUser) Profile {
	return Profile{
		UID:               uid,
		Name:              s.Name,
		Email:             s.Email,
		ActiveResearchers: NormalizeResearchers(s.ActiveResearchers),
	}
}

// EncodeProfile converts a Profile into its stored layout.
func EncodeProfile(p Profile) StoredUser {
	return StoredUser{Name: p.Name, Email: p.Email, ActiveResearchers: p.ActiveResearchers}
}
