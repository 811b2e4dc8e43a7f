// Package firebase talks to Firebase Auth and the Realtime Database over
// their REST APIs.
package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/store"
)

// Store is a store.Store backed by the Realtime Database. Access rules are
// enforced by the database; a rejected request yields
// store.ErrPermissionDenied.
type Store struct {
	baseURL string
	ts      oauth2.TokenSource
	http    *resty.Client
	stream  *resty.Client
	loc     *time.Location
	logger  *zap.Logger

	// Stream reopen backoff.
	reconnectMin time.Duration
	reconnectMax time.Duration
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.AdminWriter = (*Store)(nil)
)

// NewStore returns a Store for databaseURL (e.g.
// https://project-default-rtdb.firebaseio.com) authenticated with ts.
func NewStore(databaseURL string, ts oauth2.TokenSource, loc *time.Location, logger *zap.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		baseURL: strings.TrimRight(databaseURL, "/"),
		ts:      ts,
		http: resty.New().
			SetTimeout(30*time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second).
			SetRetryMaxWaitTime(5*time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		stream: resty.New().
			SetHeader("Accept", "text/event-stream"),
		loc:          loc,
		logger:       logger,
		reconnectMin: time.Second,
		reconnectMax: 5 * time.Second,
	}
}

// serverTimestamp asks the database to fill in its own clock.
var serverTimestamp = map[string]string{".sv": "timestamp"}

// storedReportWrite shadows StoredReport.Timestamp with the server value
// placeholder.
type storedReportWrite struct {
	model.StoredReport
	Timestamp map[string]string `json:"timestamp"`
}

func (s *Store) url(path string) string {
	return s.baseURL + "/" + strings.Trim(path, "/") + ".json"
}

func (s *Store) request(ctx context.Context, c *resty.Client) (*resty.Request, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return nil, fmt.Errorf("obtaining ID token: %w: %w", store.ErrPermissionDenied, err)
	}
	return c.R().SetContext(ctx).SetQueryParam("auth", tok.AccessToken), nil
}

// statusError maps database responses onto the store error taxonomy.
func statusError(op string, resp *resty.Response) error {
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, store.ErrPermissionDenied)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w: status %d: %s", op, store.ErrUnavailable, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
}

// get decodes the value at path into out. A null value leaves out untouched
// and reports false.
func (s *Store) get(ctx context.Context, path string, out any) (bool, error) {
	req, err := s.request(ctx, s.http)
	if err != nil {
		return false, err
	}
	resp, err := req.Get(s.url(path))
	if err != nil {
		return false, fmt.Errorf("reading %s: %w: %w", path, store.ErrUnavailable, err)
	}
	if resp.IsError() {
		return false, statusError("reading "+path, resp)
	}
	body := resp.Body()
	if len(body) == 0 || string(body) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decoding %s: %w", path, err)
	}
	return true, nil
}

func (s *Store) put(ctx context.Context, path string, body any) error {
	req, err := s.request(ctx, s.http)
	if err != nil {
		return err
	}
	resp, err := req.SetBody(body).Put(s.url(path))
	if err != nil {
		return fmt.Errorf("writing %s: %w: %w", path, store.ErrUnavailable, err)
	}
	if resp.IsError() {
		return statusError("writing "+path, resp)
	}
	return nil
}

func (s *Store) patch(ctx context.Context, path string, body any) error {
	req, err := s.request(ctx, s.http)
	if err != nil {
		return err
	}
	resp, err := req.SetBody(body).Patch(s.url(path))
	if err != nil {
		return fmt.Errorf("updating %s: %w: %w", path, store.ErrUnavailable, err)
	}
	if resp.IsError() {
		return statusError("updating "+path, resp)
	}
	return nil
}

func (s *Store) decode(uid string, raw map[string]json.RawMessage) model.Collection {
	reports, errs := model.DecodeCollection(raw, s.loc)
	for _, err := range errs {
		s.logger.Warn("Skipping unreadable report", zap.String("uid", uid), zap.Error(err))
	}
	return reports
}

func (s *Store) UserReports(ctx context.Context, uid string) (model.Collection, error) {
	raw := map[string]json.RawMessage{}
	if _, err := s.get(ctx, "reports/"+uid, &raw); err != nil {
		return nil, err
	}
	return s.decode(uid, raw), nil
}

func (s *Store) AllReports(ctx context.Context) (map[string]model.Collection, error) {
	raw := map[string]map[string]json.RawMessage{}
	if _, err := s.get(ctx, "reports", &raw); err != nil {
		return nil, err
	}
	out := make(map[string]model.Collection, len(raw))
	for uid, reports := range raw {
		out[uid] = s.decode(uid, reports)
	}
	return out, nil
}

func (s *Store) User(ctx context.Context, uid string) (model.Profile, error) {
	var u model.StoredUser
	found, err := s.get(ctx, "users/"+uid, &u)
	if err != nil {
		return model.Profile{}, err
	}
	if !found {
		return model.Profile{}, fmt.Errorf("user %s: %w", uid, store.ErrNotFound)
	}
	return model.DecodeProfile(uid, u), nil
}

func (s *Store) AllUsers(ctx context.Context) (map[string]model.Profile, error) {
	raw := map[string]model.StoredUser{}
	if _, err := s.get(ctx, "users", &raw); err != nil {
		return nil, err
	}
	out := make(map[string]model.Profile, len(raw))
	for uid, u := range raw {
		out[uid] = model.DecodeProfile(uid, u)
	}
	return out, nil
}

// Researchers reads the global directory. It is stored as an array, or by
// older clients as a keyed object of labels or of label: true flags.
func (s *Store) Researchers(ctx context.Context) ([]string, error) {
	var raw json.RawMessage
	found, err := s.get(ctx, "researchers", &raw)
	if err != nil || !found {
		return nil, err
	}
	return model.NormalizeResearchers(decodeLabels(raw)), nil
}

func decodeLabels(raw json.RawMessage) []string {
	// Holes in sparse arrays decode as empty labels and are normalized away.
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil
	}
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var label string
		if err := json.Unmarshal(keyed[k], &label); err == nil {
			list = append(list, label)
			continue
		}
		var flag bool
		if err := json.Unmarshal(keyed[k], &flag); err == nil && flag {
			list = append(list, k)
		}
	}
	return list
}

// WriteReport replaces reports/{uid}/{key}; the database stamps the write.
func (s *Store) WriteReport(ctx context.Context, uid, key string, r model.Report) error {
	body := storedReportWrite{StoredReport: model.Encode(r), Timestamp: serverTimestamp}
	if err := s.put(ctx, "reports/"+uid+"/"+key, body); err != nil {
		return err
	}
	s.logger.Debug("Report written", zap.String("uid", uid), zap.String("key", key))
	return nil
}

func (s *Store) WriteActiveResearchers(ctx context.Context, uid string, labels []string) error {
	return s.put(ctx, "users/"+uid+"/activeResearchers", model.NormalizeResearchers(labels))
}

func (s *Store) WriteProfile(ctx context.Context, p model.Profile) error {
	p.ActiveResearchers = model.NormalizeResearchers(p.ActiveResearchers)
	return s.patch(ctx, "users/"+p.UID, model.EncodeProfile(p))
}

func (s *Store) WriteResearchers(ctx context.Context, labels []string) error {
	return s.put(ctx, "researchers", model.NormalizeResearchers(labels))
}
