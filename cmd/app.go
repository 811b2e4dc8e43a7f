package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Tiliavir/research-hours/internal/config"
	"github.com/Tiliavir/research-hours/internal/firebase"
	"github.com/Tiliavir/research-hours/internal/logger"
	"github.com/Tiliavir/research-hours/internal/service"
	"github.com/Tiliavir/research-hours/internal/store"
	"github.com/Tiliavir/research-hours/internal/store/sqlite"
	"github.com/Tiliavir/research-hours/internal/timecalc"
)

// adminStore is a store that can also write profiles and the global
// researcher list.
type adminStore interface {
	store.Store
	store.AdminWriter
}

// app bundles what every command needs once config is loaded.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	uid    string
	store  adminStore
	svc    *service.Service
	// db is set for the sqlite driver only.
	db *sqlite.Store
}

// exitError is returned from a command to choose the process exit status:
// 1 for user errors, 2 for storage errors. A nil err means the message was
// already printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// fail wraps a service or store error with the status exitCode picks.
func fail(err error) error {
	return exitWith(exitCode(err), err)
}

// exitStatus is the process status for an error returned by rootCmd.
func exitStatus(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// loadConfig reads the config and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, exitWith(1, err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, exitWith(1, err)
	}
	return cfg, log, nil
}

// newAuth returns the Firebase Auth client for cfg.
func newAuth(cfg *config.Config, log *zap.Logger) (*firebase.Auth, error) {
	path, err := firebase.DefaultTokenPath()
	if err != nil {
		return nil, exitWith(2, err)
	}
	return firebase.NewAuth(cfg.Firebase.APIKey, path, log), nil
}

// openApp loads config and opens the configured store. The caller must
// Close the returned app.
func openApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	cfg, log := a.cfg, a.logger
	switch cfg.Store.Driver {
	case config.DriverFirebase:
		auth, err := newAuth(cfg, log)
		if err != nil {
			return err
		}
		ts, ident, err := auth.TokenSource(ctx)
		if errors.Is(err, firebase.ErrNotSignedIn) {
			return exitWith(1, errors.New("not signed in; run: hours login --email <address>"))
		}
		if err != nil {
			return exitWith(2, err)
		}
		a.uid = ident.UID
		a.store = firebase.NewStore(cfg.Firebase.DatabaseURL, ts, cfg.Location(), log)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o700); err != nil {
			return exitWith(2, fmt.Errorf("creating data directory: %w", err))
		}
		db, err := sqlite.Open(cfg.Store.SQLitePath, cfg.Location(), log)
		if err != nil {
			return exitWith(2, err)
		}
		a.db = db
		a.uid = cfg.Identity.UID
		a.store = db.As(a.uid)
	}

	opts := service.Options{Backdate: cfg.BackdatePolicy(), Location: cfg.Location()}
	if todayFlag != "" {
		day, err := timecalc.ParseDate(todayFlag, cfg.Location())
		if err != nil {
			return exitWith(1, fmt.Errorf("invalid --today value %q: %w", todayFlag, err))
		}
		opts.Now = func() time.Time {
			now := time.Now().In(cfg.Location())
			return day.Add(now.Sub(timecalc.StartOfDay(now)))
		}
	}
	a.svc = service.New(a.store, a.uid, opts, log)
	return nil
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// exitCode maps an error to the CLI exit status.
func exitCode(err error) int {
	var rej *service.RejectionError
	switch {
	case errors.As(err, &rej):
		return 1
	case errors.Is(err, store.ErrPermissionDenied):
		return 1
	default:
		return 2
	}
}
