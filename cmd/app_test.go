package cmd

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Tiliavir/research-hours/internal/rules"
	"github.com/Tiliavir/research-hours/internal/service"
	"github.com/Tiliavir/research-hours/internal/store"
)

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", errors.New("unknown flag: --nope"), 1},
		{"explicit storage status", exitWith(2, errors.New("disk full")), 2},
		{"rejection", fail(&service.RejectionError{Decision: rules.Decision{Message: "weekly reports can only be submitted on Thursday or Sunday"}}), 1},
		{"permission denied", fail(fmt.Errorf("reading reports: %w", store.ErrPermissionDenied)), 1},
		{"unavailable store", fail(fmt.Errorf("%w: %w", service.ErrWriteFailed, store.ErrUnavailable)), 2},
		{"wrapped exit error", fmt.Errorf("import: %w", exitWith(2, errors.New("boom"))), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitStatus(tt.err); got != tt.want {
				t.Errorf("exitStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitError_SilentWhenPrinted(t *testing.T) {
	err := exitWith(1, nil)
	if err.Error() != "" {
		t.Errorf("Error() = %q, want empty", err.Error())
	}
	if got := exitStatus(err); got != 1 {
		t.Errorf("exitStatus = %d, want 1", got)
	}
}

func TestExitError_Unwrap(t *testing.T) {
	err := fail(fmt.Errorf("listing: %w", store.ErrUnavailable))
	if !errors.Is(err, store.ErrUnavailable) {
		t.Error("exit error hides the store error")
	}
}

func TestMonthYear(t *testing.T) {
	today := time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)

	m, y, err := monthYear(today, 0, 0)
	if err != nil || m != time.September || y != 2025 {
		t.Errorf("monthYear defaults = %v %d %v, want September 2025", m, y, err)
	}
	m, y, err = monthYear(today, 2, 2024)
	if err != nil || m != time.February || y != 2024 {
		t.Errorf("monthYear(2, 2024) = %v %d %v", m, y, err)
	}
	if _, _, err := monthYear(today, 13, 0); exitStatus(err) != 1 {
		t.Errorf("monthYear(13) error = %v, want a user error", err)
	}
}
