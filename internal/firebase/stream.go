package firebase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/store"
)

// event is one server-sent event of a database stream.
type event struct {
	name string
	data string
}

// readEvents parses a text/event-stream body and calls fn for every event
// until fn returns false or the body ends.
func readEvents(r io.Reader, fn func(event) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 32<<20)

	var (
		ev   event
		data []string
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.name == "" && len(data) == 0 {
				continue
			}
			ev.data = strings.Join(data, "\n")
			if !fn(ev) {
				return nil
			}
			ev, data = event{}, nil
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}

func (s *Store) openStream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := s.request(ctx, s.stream)
	if err != nil {
		return nil, err
	}
	resp, err := req.SetDoNotParseResponse(true).Get(s.url(path))
	if err != nil {
		return nil, fmt.Errorf("streaming %s: %w: %w", path, store.ErrUnavailable, err)
	}
	if resp.IsError() {
		resp.RawBody().Close()
		return nil, statusError("streaming "+path, resp)
	}
	return resp.RawBody(), nil
}

// watchPath streams path and delivers a fresh load on every put or patch
// event. The first put carries the current value. When the database revokes
// the stream credentials or the connection drops, the stream is reopened
// with a fresh token after a backoff of reconnectMin doubling up to
// reconnectMax. The channel closes when ctx ends, on a cancel event, or
// when a reopen is denied.
func watchPath[T any](ctx context.Context, s *Store, path string, load func(context.Context) (T, error)) (<-chan T, error) {
	body, err := s.openStream(ctx, path)
	if err != nil {
		return nil, err
	}

	out := make(chan T, 1)
	go func() {
		defer close(out)
		for {
			again := pump(ctx, s, path, body, load, out)
			body.Close()
			if !again || ctx.Err() != nil {
				return
			}
			if body = s.reopen(ctx, path); body == nil {
				return
			}
		}
	}()
	return out, nil
}

// pump forwards loads for the events of one stream connection. It reports
// whether the stream should be reopened.
func pump[T any](ctx context.Context, s *Store, path string, body io.Reader, load func(context.Context) (T, error), out chan<- T) bool {
	reconnect := true
	err := readEvents(body, func(ev event) bool {
		switch ev.name {
		case "put", "patch":
			v, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				s.logger.Warn("Reload after change failed", zap.String("path", path), zap.Error(err))
				return true
			}
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		case "cancel":
			s.logger.Warn("Stream cancelled by database", zap.String("path", path), zap.String("reason", ev.data))
			reconnect = false
			return false
		case "auth_revoked":
			s.logger.Info("Stream credentials expired, reconnecting", zap.String("path", path))
			return false
		default:
			// keep-alive
			return true
		}
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("Stream ended", zap.String("path", path), zap.Error(err))
	}
	return reconnect
}

// reopen retries openStream until it succeeds, ctx ends or the database
// denies access. It returns nil when watching should stop.
func (s *Store) reopen(ctx context.Context, path string) io.ReadCloser {
	wait := s.reconnectMin
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		body, err := s.openStream(ctx, path)
		switch {
		case err == nil:
			s.logger.Debug("Stream reopened", zap.String("path", path))
			return body
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, store.ErrPermissionDenied):
			s.logger.Warn("Stream reopen denied", zap.String("path", path), zap.Error(err))
			return nil
		}
		wait = min(wait*2, s.reconnectMax)
		s.logger.Warn("Stream reopen failed", zap.String("path", path), zap.Duration("retry_in", wait), zap.Error(err))
	}
}

func (s *Store) WatchUserReports(ctx context.Context, uid string) (<-chan model.Collection, error) {
	return watchPath(ctx, s, "reports/"+uid, func(ctx context.Context) (model.Collection, error) {
		return s.UserReports(ctx, uid)
	})
}

func (s *Store) WatchAllReports(ctx context.Context) (<-chan map[string]model.Collection, error) {
	return watchPath(ctx, s, "reports", s.AllReports)
}

func (s *Store) WatchUser(ctx context.Context, uid string) (<-chan model.Profile, error) {
	return watchPath(ctx, s, "users/"+uid, func(ctx context.Context) (model.Profile, error) {
		p, err := s.User(ctx, uid)
		if errors.Is(err, store.ErrNotFound) {
			return model.Profile{UID: uid}, nil
		}
		return p, err
	})
}

func (s *Store) WatchAllUsers(ctx context.Context) (<-chan map[string]model.Profile, error) {
	return watchPath(ctx, s, "users", s.AllUsers)
}
