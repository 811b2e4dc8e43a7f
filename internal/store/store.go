// Package store defines the contracts between the reporting core and the
// backends that persist reports and profiles.
package store

import (
	"context"
	"errors"

	"github.com/Tiliavir/research-hours/internal/model"
)

var (
	// ErrPermissionDenied is returned when the signed-in identity may not
	// read or write the requested path.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound is returned for a missing user record.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// Reader performs one-shot reads.
type Reader interface {
	UserReports(ctx context.Context, uid string) (model.Collection, error)
	// AllReports is privileged.
	AllReports(ctx context.Context) (map[string]model.Collection, error)
	User(ctx context.Context, uid string) (model.Profile, error)
	// AllUsers is privileged.
	AllUsers(ctx context.Context) (map[string]model.Profile, error)
	Researchers(ctx context.Context) ([]string, error)
}

// Watcher delivers the current value and then every change. Channels are
// closed when ctx ends or the backend stream terminates.
type Watcher interface {
	WatchUserReports(ctx context.Context, uid string) (<-chan model.Collection, error)
	WatchAllReports(ctx context.Context) (<-chan map[string]model.Collection, error)
	WatchUser(ctx context.Context, uid string) (<-chan model.Profile, error)
	WatchAllUsers(ctx context.Context) (<-chan map[string]model.Profile, error)
}

// Writer persists user-owned data. The backend assigns report timestamps.
type Writer interface {
	WriteReport(ctx context.Context, uid, key string, r model.Report) error
	WriteActiveResearchers(ctx context.Context, uid string, labels []string) error
}

// Store is a complete backend.
type Store interface {
	Reader
	Watcher
	Writer
}

// AdminWriter seeds profiles and the global directory. Used by imports.
type AdminWriter interface {
	WriteProfile(ctx context.Context, p model.Profile) error
	WriteResearchers(ctx context.Context, labels []string) error
}
