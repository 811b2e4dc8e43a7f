// Package importer copies a Realtime Database JSON export into a store.
// Runs are idempotent: records already present with the same content are
// skipped.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tiliavir/research-hours/internal/coverage"
	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/store"
	"github.com/Tiliavir/research-hours/internal/timecalc"
)

// Target is where imported data is written.
type Target interface {
	store.Reader
	store.Writer
	store.AdminWriter
}

// Export is the top-level layout of a database export.
type Export struct {
	Reports     map[string]map[string]json.RawMessage `json:"reports"`
	Users       map[string]model.StoredUser           `json:"users"`
	Researchers []string                              `json:"researchers"`
}

// Result holds counters for an import run.
type Result struct {
	RunID    string
	Imported int
	Skipped  int
	Updated  int
	Errors   int
	Users    int
}

// Options configures an import run.
type Options struct {
	DryRun   bool
	Location *time.Location
	// Progress receives one line per record; nil discards.
	Progress io.Writer
}

// Parse reads an export document.
func Parse(r io.Reader) (Export, error) {
	var exp Export
	if err := json.NewDecoder(r).Decode(&exp); err != nil {
		return Export{}, fmt.Errorf("decoding export: %w", err)
	}
	return exp, nil
}

// Run imports exp into target. A record that would put a daily and a
// weekly report in the same week, against what the user already has or
// against records imported earlier in the run, is counted as an error and
// not written.
func Run(ctx context.Context, exp Export, target Target, opts Options, logger *zap.Logger) (Result, error) {
	result := Result{RunID: uuid.NewString()}
	out := opts.Progress
	if out == nil {
		out = io.Discard
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With(zap.String("run_id", result.RunID), zap.Bool("dry_run", opts.DryRun))

	if len(exp.Researchers) > 0 && !opts.DryRun {
		if err := target.WriteResearchers(ctx, exp.Researchers); err != nil {
			return result, fmt.Errorf("writing researchers: %w", err)
		}
	}

	for _, uid := range sortedKeys(exp.Users) {
		p := model.DecodeProfile(uid, exp.Users[uid])
		if !opts.DryRun {
			if err := target.WriteProfile(ctx, p); err != nil {
				fmt.Fprintf(out, "  ! Error saving user %s: %v\n", uid, err)
				logger.Warn("User import failed", zap.String("uid", uid), zap.Error(err))
				result.Errors++
				continue
			}
		}
		result.Users++
	}

	for _, uid := range sortedKeys(exp.Reports) {
		existing, err := target.UserReports(ctx, uid)
		if err != nil {
			return result, fmt.Errorf("reading existing reports for %s: %w", uid, err)
		}
		records := exp.Reports[uid]
		for _, key := range sortedKeys(records) {
			var stored model.StoredReport
			if err := json.Unmarshal(records[key], &stored); err != nil {
				fmt.Fprintf(out, "  ! Error decoding %s/%s: %v\n", uid, key, err)
				result.Errors++
				continue
			}
			r, err := model.Decode(key, stored, loc)
			if err != nil {
				fmt.Fprintf(out, "  ! Error mapping %s/%s: %v\n", uid, key, err)
				logger.Warn("Unreadable record", zap.String("uid", uid), zap.String("key", key), zap.Error(err))
				result.Errors++
				continue
			}

			found, ok := existing.Get(key)
			if ok && sameContent(found, r) {
				fmt.Fprintf(out, "  – Skipped:  %s/%s (already exists)\n", uid, key)
				result.Skipped++
				continue
			}
			if msg, clash := conflict(r, existing); clash {
				fmt.Fprintf(out, "  ! Conflict %s/%s: %s\n", uid, key, msg)
				logger.Warn("Conflicting record", zap.String("uid", uid), zap.String("key", key), zap.String("reason", msg))
				result.Errors++
				continue
			}
			if !opts.DryRun {
				if err := target.WriteReport(ctx, uid, key, r); err != nil {
					fmt.Fprintf(out, "  ! Error saving %s/%s: %v\n", uid, key, err)
					logger.Warn("Report import failed", zap.String("uid", uid), zap.String("key", key), zap.Error(err))
					result.Errors++
					continue
				}
			}
			existing = existing.With(r)
			if ok {
				fmt.Fprintf(out, "  ↑ Updated:  %s/%s\n", uid, key)
				result.Updated++
				continue
			}
			fmt.Fprintf(out, "  ✓ Imported: %s/%s\n", uid, key)
			result.Imported++
		}
	}

	logger.Info("Import finished",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("updated", result.Updated),
		zap.Int("errors", result.Errors),
		zap.Int("users", result.Users),
	)
	return result, nil
}

// conflict describes a report of the other variant sharing r's week. The
// report stored under r's own key is ignored since r replaces it.
func conflict(r model.Report, reports model.Collection) (string, bool) {
	key := r.Head().Key
	others := make(model.Collection, 0, len(reports))
	for _, o := range reports {
		if o.Head().Key != key {
			others = append(others, o)
		}
	}

	switch v := r.(type) {
	case model.Daily:
		sunday, thursday := timecalc.WeekRangeLabel(v.Date)
		if w, ok := coverage.WeeklyOverlapping(sunday, thursday, others); ok {
			return fmt.Sprintf("weekly report %s (%s) covers %s", w.Key, w.Label, timecalc.FormatDate(v.Date)), true
		}
	case model.Weekly:
		from, to := timecalc.WeekRangeLabel(v.Start)
		if v.End.After(to) {
			to = v.End
		}
		if ds := coverage.DailiesIn(from, to, others); len(ds) > 0 {
			return fmt.Sprintf("daily report %s falls within week %s", ds[0].Key, v.Label), true
		}
	}
	return "", false
}

// sameContent compares two reports ignoring their timestamps.
func sameContent(a, b model.Report) bool {
	ea, eb := model.Encode(a), model.Encode(b)
	ea.Timestamp, eb.Timestamp = 0, 0
	return reflect.DeepEqual(ea, eb)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
