// Package sqlite is a local store.Store on an embedded SQLite database. It
// emulates the hosted database's access rules: users read and write their
// own records, and only users flagged as admin may read everyone's.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/store"
)

// Store owns the database handle and the change feed shared by every view.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	loc    *time.Location
	hub    *hub

	mu     sync.Mutex
	lastTS int64
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string, loc *time.Location, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(db, loc, logger)
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database connection established", zap.String("path", path))
	return s, nil
}

// New wraps an already migrated database.
func New(db *sql.DB, loc *time.Location, logger *zap.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{db: db, logger: logger, loc: loc, hub: newHub(), now: time.Now}
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			uid TEXT NOT NULL,
			key TEXT NOT NULL,
			data TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			PRIMARY KEY (uid, key)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			uid TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			active_researchers TEXT NOT NULL DEFAULT '[]',
			is_admin INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS researchers (
			position INTEGER PRIMARY KEY,
			label TEXT NOT NULL UNIQUE
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	s.logger.Debug("Database migrations completed")
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.logger.Info("Database connection closed")
	return nil
}

// As returns the store as seen by uid.
func (s *Store) As(uid string) *View {
	return &View{s: s, uid: uid}
}

// Admin returns an unrestricted view, used for imports and maintenance.
func (s *Store) Admin() *View {
	return &View{s: s, root: true}
}

// SetAdmin grants or revokes uid's privilege to read every user's data.
func (s *Store) SetAdmin(ctx context.Context, uid string, admin bool) error {
	flag := 0
	if admin {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, is_admin) VALUES (?, ?)
		ON CONFLICT(uid) DO UPDATE SET is_admin = excluded.is_admin
	`, uid, flag)
	if err != nil {
		return fmt.Errorf("setting admin flag for %s: %w: %w", uid, store.ErrUnavailable, err)
	}
	s.hub.publish(topicUsers, topicUser+uid)
	return nil
}

// timestamp returns a server timestamp in milliseconds, strictly increasing
// across writes.
func (s *Store) timestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

func (s *Store) isAdmin(ctx context.Context, uid string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE uid = ?`, uid).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading admin flag: %w: %w", store.ErrUnavailable, err)
	}
	return flag == 1, nil
}

func (s *Store) userReports(ctx context.Context, uid string) (model.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, data FROM reports WHERE uid = ? ORDER BY key`, uid)
	if err != nil {
		return nil, fmt.Errorf("reading reports for %s: %w: %w", uid, store.ErrUnavailable, err)
	}
	defer rows.Close()

	raw := map[string]json.RawMessage{}
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		raw[key] = json.RawMessage(data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading reports for %s: %w: %w", uid, store.ErrUnavailable, err)
	}
	return s.decode(uid, raw), nil
}

func (s *Store) allReports(ctx context.Context) (map[string]model.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, key, data FROM reports ORDER BY uid, key`)
	if err != nil {
		return nil, fmt.Errorf("reading all reports: %w: %w", store.ErrUnavailable, err)
	}
	defer rows.Close()

	byUser := map[string]map[string]json.RawMessage{}
	for rows.Next() {
		var uid, key, data string
		if err := rows.Scan(&uid, &key, &data); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		if byUser[uid] == nil {
			byUser[uid] = map[string]json.RawMessage{}
		}
		byUser[uid][key] = json.RawMessage(data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading all reports: %w: %w", store.ErrUnavailable, err)
	}

	out := make(map[string]model.Collection, len(byUser))
	for uid, raw := range byUser {
		out[uid] = s.decode(uid, raw)
	}
	return out, nil
}

func (s *Store) decode(uid string, raw map[string]json.RawMessage) model.Collection {
	reports, errs := model.DecodeCollection(raw, s.loc)
	for _, err := range errs {
		s.logger.Warn("Skipping unreadable report", zap.String("uid", uid), zap.Error(err))
	}
	return reports
}

func (s *Store) user(ctx context.Context, uid string) (model.Profile, error) {
	var name, email, active string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, email, active_researchers FROM users WHERE uid = ?`, uid,
	).Scan(&name, &email, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, fmt.Errorf("user %s: %w", uid, store.ErrNotFound)
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("reading user %s: %w: %w", uid, store.ErrUnavailable, err)
	}
	return s.profile(uid, name, email, active), nil
}

func (s *Store) allUsers(ctx context.Context) (map[string]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, name, email, active_researchers FROM users ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("reading users: %w: %w", store.ErrUnavailable, err)
	}
	defer rows.Close()

	out := map[string]model.Profile{}
	for rows.Next() {
		var uid, name, email, active string
		if err := rows.Scan(&uid, &name, &email, &active); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out[uid] = s.profile(uid, name, email, active)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading users: %w: %w", store.ErrUnavailable, err)
	}
	return out, nil
}

func (s *Store) profile(uid, name, email, active string) model.Profile {
	var labels []string
	if err := json.Unmarshal([]byte(active), &labels); err != nil {
		s.logger.Warn("Ignoring unreadable researcher list", zap.String("uid", uid), zap.Error(err))
	}
	return model.DecodeProfile(uid, model.StoredUser{Name: name, Email: email, ActiveResearchers: labels})
}

func (s *Store) researchers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label FROM researchers ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("reading researchers: %w: %w", store.ErrUnavailable, err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("scanning researcher: %w", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading researchers: %w: %w", store.ErrUnavailable, err)
	}
	return model.NormalizeResearchers(labels), nil
}

func (s *Store) writeReport(ctx context.Context, uid, key string, r model.Report) error {
	stored := model.Encode(r)
	stored.Timestamp = s.timestamp()
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshalling report %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (uid, key, data, timestamp) VALUES (?, ?, ?, ?)
		ON CONFLICT(uid, key) DO UPDATE SET data = excluded.data, timestamp = excluded.timestamp
	`, uid, key, string(data), stored.Timestamp)
	if err != nil {
		return fmt.Errorf("writing report %s for %s: %w: %w", key, uid, store.ErrUnavailable, err)
	}
	s.logger.Debug("Report written", zap.String("uid", uid), zap.String("key", key), zap.Int64("timestamp", stored.Timestamp))
	s.hub.publish(topicReports, topicUserReports+uid)
	return nil
}

func (s *Store) writeActiveResearchers(ctx context.Context, uid string, labels []string) error {
	data, err := json.Marshal(model.NormalizeResearchers(labels))
	if err != nil {
		return fmt.Errorf("marshalling researchers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (uid, active_researchers) VALUES (?, ?)
		ON CONFLICT(uid) DO UPDATE SET active_researchers = excluded.active_researchers
	`, uid, string(data))
	if err != nil {
		return fmt.Errorf("writing researchers for %s: %w: %w", uid, store.ErrUnavailable, err)
	}
	s.hub.publish(topicUsers, topicUser+uid)
	return nil
}

func (s *Store) writeProfile(ctx context.Context, p model.Profile) error {
	data, err := json.Marshal(model.NormalizeResearchers(p.ActiveResearchers))
	if err != nil {
		return fmt.Errorf("marshalling researchers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (uid, name, email, active_researchers) VALUES (?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			active_researchers = excluded.active_researchers
	`, p.UID, p.Name, p.Email, string(data))
	if err != nil {
		return fmt.Errorf("writing user %s: %w: %w", p.UID, store.ErrUnavailable, err)
	}
	s.hub.publish(topicUsers, topicUser+p.UID)
	return nil
}

func (s *Store) writeResearchers(ctx context.Context, labels []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w: %w", store.ErrUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM researchers`); err != nil {
		return fmt.Errorf("clearing researchers: %w: %w", store.ErrUnavailable, err)
	}
	for i, l := range model.NormalizeResearchers(labels) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO researchers (position, label) VALUES (?, ?)`, i, l); err != nil {
			return fmt.Errorf("inserting researcher %q: %w: %w", l, store.ErrUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing researchers: %w: %w", store.ErrUnavailable, err)
	}
	return nil
}
