package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Tiliavir/research-hours/internal/allocation"
	"github.com/Tiliavir/research-hours/internal/export"
	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/store"
)

// SummaryQuery selects a monthly aggregate.
type SummaryQuery struct {
	Month    time.Month
	Year     int
	Allocate bool
	// Everyone aggregates every user's reports, which needs privilege.
	// Otherwise only the caller's reports are used.
	Everyone bool
}

// MonthlySummary aggregates the selected month.
func (s *Service) MonthlySummary(ctx context.Context, q SummaryQuery) (allocation.Summary, map[string]model.Profile, error) {
	if q.Month < time.January || q.Month > time.December {
		return allocation.Summary{}, nil, fmt.Errorf("invalid month %d", q.Month)
	}

	var (
		reports map[string]model.Collection
		users   map[string]model.Profile
		err     error
	)
	if q.Everyone {
		reports, err = s.store.AllReports(ctx)
		if err != nil {
			return allocation.Summary{}, nil, fmt.Errorf("reading all reports: %w", err)
		}
		users, err = s.store.AllUsers(ctx)
		if err != nil {
			return allocation.Summary{}, nil, fmt.Errorf("reading users: %w", err)
		}
	} else {
		own, err := s.ownReports(ctx)
		if err != nil {
			return allocation.Summary{}, nil, err
		}
		reports = map[string]model.Collection{s.uid: own}
		p, err := s.store.User(ctx, s.uid)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			// Without the profile "other tasks" cannot be allocated, but the
			// totals are still right.
			s.logger.Warn("Reading profile failed", zap.String("uid", s.uid), zap.Error(err))
		}
		p.UID = s.uid
		users = map[string]model.Profile{s.uid: p}
	}

	sum := allocation.AggregateMonth(reports, users, q.Month, q.Year, q.Allocate)
	s.logger.Debug("Monthly summary built",
		zap.Int("year", q.Year),
		zap.Int("month", int(q.Month)),
		zap.Bool("allocate", q.Allocate),
		zap.Int("entries", sum.EntryCount),
	)
	return sum, users, nil
}

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ExportQuery selects an export.
type ExportQuery struct {
	SummaryQuery
	Format   string
	Detailed bool
}

// ExportResult is a rendered export file.
type ExportResult struct {
	Name        string
	ContentType string
	Data        []byte
	Summary     allocation.Summary
}

// Export renders the selected month as CSV or XLSX.
func (s *Service) Export(ctx context.Context, q ExportQuery) (ExportResult, error) {
	if q.Format == "" {
		q.Format = FormatCSV
	}
	if q.Format != FormatCSV && q.Format != FormatXLSX {
		return ExportResult{}, fmt.Errorf("unsupported export format %q (use csv or xlsx)", q.Format)
	}

	sum, users, err := s.MonthlySummary(ctx, q.SummaryQuery)
	if err != nil {
		return ExportResult{}, err
	}
	byLabel, totals := export.SummaryTables(sum, users)
	res := ExportResult{Name: export.FileName(s.opts.Now().In(s.opts.Location), q.Allocate, q.Format), Summary: sum}

	switch q.Format {
	case FormatXLSX:
		sheets := []export.Sheet{{Name: "Summary", Tables: []export.Table{byLabel, totals, export.AllocationTable(sum, users)}}}
		if q.Detailed {
			sheets = append(sheets, export.Sheet{Name: "Details", Tables: []export.Table{export.DetailTable(sum, users)}})
		}
		data, err := export.WriteXLSX(sheets)
		if err != nil {
			return ExportResult{}, fmt.Errorf("rendering workbook: %w", err)
		}
		res.Data = data
		res.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		main := byLabel
		if q.Detailed {
			main = export.DetailTable(sum, users)
		}
		res.Data = export.ToDelimitedText(main, &totals)
		res.ContentType = "text/csv; charset=utf-8"
	}

	s.logger.Info("Export rendered", zap.String("file", res.Name), zap.Int("bytes", len(res.Data)))
	return res, nil
}
