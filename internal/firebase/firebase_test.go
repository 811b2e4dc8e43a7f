package firebase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/store"
)

func newTestStore(url string) *Store {
	return NewStore(url, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), time.UTC, zap.NewNop())
}

func TestUserReportsDecodesAndSkips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reports/u1.json", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("auth"))
		io.WriteString(w, `{
			"daily_2025-09-01": {"type":"daily","date":"2025-09-01","workStatus":"worked","entries":[{"researcher":"Alpha","hours":"4"}],"timestamp":1},
			"legacy": {"date":"2025-09-02","entries":[{"researcher":"Beta","hours":2}]},
			"weekly_bad": {"type":"weekly","weekRange":"soon"}
		}`)
	}))
	defer srv.Close()

	reports, err := newTestStore(srv.URL).UserReports(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "daily_2025-09-01", reports[0].Head().Key)
	assert.Equal(t, 4.0, reports[0].Head().Entries[0].Hours)
	assert.Equal(t, model.KindDaily, reports[1].Kind())
}

func TestPermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"Permission denied"}`)
	}))
	defer srv.Close()

	_, err := newTestStore(srv.URL).AllUsers(context.Background())
	require.ErrorIs(t, err, store.ErrPermissionDenied)
}

func TestUserNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "null")
	}))
	defer srv.Close()

	_, err := newTestStore(srv.URL).User(context.Background(), "u1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWriteReportUsesServerTimestamp(t *testing.T) {
	var (
		method, path string
		body         map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		io.WriteString(w, "{}")
	}))
	defer srv.Close()

	d := model.Daily{
		Header:     model.Header{Key: "daily_2025-09-01", Entries: []model.Entry{{Researcher: "Alpha", Hours: 3.5}}, Timestamp: 42},
		Date:       time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		WorkStatus: model.Worked,
	}
	require.NoError(t, newTestStore(srv.URL).WriteReport(context.Background(), "u1", d.Key, d))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/reports/u1/daily_2025-09-01.json", path)
	assert.Equal(t, map[string]any{".sv": "timestamp"}, body["timestamp"])
	assert.Equal(t, "daily", body["type"])
	assert.Equal(t, "2025-09-01", body["date"])
}

func TestResearchersEncodings(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"array", `["Beta","Alpha","other tasks"]`, []string{"Beta", "Alpha"}},
		{"sparse array", `[null,"Alpha",null,"Beta"]`, []string{"Alpha", "Beta"}},
		{"keyed labels", `{"-b":"Beta","-a":"Alpha"}`, []string{"Alpha", "Beta"}},
		{"flags", `{"Gamma":true,"Delta":false,"Alpha":true}`, []string{"Alpha", "Gamma"}},
		{"missing", `null`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			got, err := newTestStore(srv.URL).Researchers(context.Background())
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadEvents(t *testing.T) {
	stream := "event: put\ndata: {\"path\":\"/\",\"data\":null}\n\n" +
		": comment\n" +
		"event: keep-alive\ndata: null\n\n" +
		"event: patch\ndata: {\"path\":\"/a\",\n" +
		"data: \"data\":1}\n\n"

	var got []event
	err := readEvents(strings.NewReader(stream), func(ev event) bool {
		got = append(got, ev)
		return true
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "put", got[0].name)
	assert.Equal(t, `{"path":"/","data":null}`, got[0].data)
	assert.Equal(t, "keep-alive", got[1].name)
	assert.Equal(t, "{\"path\":\"/a\",\n\"data\":1}", got[2].data)
}

func TestWatchUserReports(t *testing.T) {
	var (
		mu      sync.Mutex
		current = `null`
	)
	next := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			mu.Lock()
			io.WriteString(w, current)
			mu.Unlock()
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, "event: put\ndata: {\"path\":\"/\",\"data\":null}\n\n")
		flusher.Flush()

		select {
		case <-next:
		case <-r.Context().Done():
			return
		}
		mu.Lock()
		current = `{"daily_2025-09-01":{"type":"daily","date":"2025-09-01","workStatus":"no-work"}}`
		mu.Unlock()
		io.WriteString(w, "event: keep-alive\ndata: null\n\n")
		io.WriteString(w, "event: put\ndata: {\"path\":\"/daily_2025-09-01\",\"data\":{}}\n\n")
		io.WriteString(w, "event: cancel\ndata: null\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	ch, err := newTestStore(srv.URL).WatchUserReports(context.Background(), "u1")
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Empty(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial delivery")
	}
	close(next)

	select {
	case got := <-ch:
		require.Len(t, got, 1)
		assert.Equal(t, model.NoWork, got[0].(model.Daily).WorkStatus)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery after change")
	}

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestWatchReconnects(t *testing.T) {
	tests := []struct {
		name string
		// ending is written after the first put of the first connection.
		ending string
	}{
		{"credentials revoked", "event: auth_revoked\ndata: \"credential is no longer valid\"\n\n"},
		{"connection dropped", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opens atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Accept") != "text/event-stream" {
					io.WriteString(w, `null`)
					return
				}
				n := opens.Add(1)
				w.Header().Set("Content-Type", "text/event-stream")
				io.WriteString(w, "event: put\ndata: {\"path\":\"/\",\"data\":null}\n\n")
				if n == 1 {
					io.WriteString(w, tt.ending)
					w.(http.Flusher).Flush()
					return
				}
				w.(http.Flusher).Flush()
				<-r.Context().Done()
			}))
			defer srv.Close()

			s := newTestStore(srv.URL)
			s.reconnectMin = 5 * time.Millisecond
			s.reconnectMax = 20 * time.Millisecond
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ch, err := s.WatchUserReports(ctx, "u1")
			require.NoError(t, err)
			for i := 0; i < 2; i++ {
				select {
				case _, ok := <-ch:
					require.True(t, ok, "channel closed before delivery %d", i+1)
				case <-time.After(2 * time.Second):
					t.Fatalf("no delivery %d", i+1)
				}
			}
			assert.GreaterOrEqual(t, opens.Load(), int32(2))

			cancel()
			select {
			case _, ok := <-ch:
				assert.False(t, ok, "channel should close when ctx ends")
			case <-time.After(2 * time.Second):
				t.Fatal("stream not closed after cancel")
			}
		})
	}
}

func TestWatchStopsWhenReopenDenied(t *testing.T) {
	var opens atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			io.WriteString(w, `null`)
			return
		}
		if opens.Add(1) > 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: put\ndata: {\"path\":\"/\",\"data\":null}\n\n")
		io.WriteString(w, "event: auth_revoked\ndata: null\n\n")
	}))
	defer srv.Close()

	s := newTestStore(srv.URL)
	s.reconnectMin = time.Millisecond
	ch, err := s.WatchAllUsers(context.Background())
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				assert.Equal(t, int32(2), opens.Load())
				return
			}
		case <-deadline:
			t.Fatal("watch kept running after the reopen was denied")
		}
	}
}

func TestWatchDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestStore(srv.URL).WatchAllReports(context.Background())
	require.ErrorIs(t, err, store.ErrPermissionDenied)
}

func newTestAuth(t *testing.T, handler http.HandlerFunc) (*Auth, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	path := filepath.Join(t.TempDir(), "auth", "session.json")
	a := NewAuth("api-key", path, zap.NewNop())
	a.identityURL = srv.URL + "/v1"
	a.tokenURL = srv.URL + "/v1/token"
	return a, path
}

func TestSignInAndRefresh(t *testing.T) {
	a, path := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "api-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/accounts:signInWithPassword":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "dana@example.org", body["email"])
			io.WriteString(w, `{"idToken":"id-1","refreshToken":"r-1","expiresIn":"3600","localId":"u1","email":"dana@example.org"}`)
		case "/v1/token":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "r-1", r.PostForm.Get("refresh_token"))
			io.WriteString(w, `{"access_token":"id-2","id_token":"id-2","expires_in":"3600","token_type":"Bearer","refresh_token":"r-2","user_id":"u1"}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	id, err := a.SignIn(ctx, "dana@example.org", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UID)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	ts, id, err := a.TokenSource(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UID)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "id-1", tok.AccessToken)

	// Expire the saved token and expect a refresh that is written back.
	sess, err := a.load()
	require.NoError(t, err)
	sess.Token.Expiry = time.Now().Add(-time.Minute)
	require.NoError(t, a.save(sess))

	ts, _, err = a.TokenSource(ctx)
	require.NoError(t, err)
	tok, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "id-2", tok.AccessToken)

	sess, err = a.load()
	require.NoError(t, err)
	assert.Equal(t, "id-2", sess.Token.AccessToken)
	assert.Equal(t, "r-2", sess.Token.RefreshToken)
	assert.Equal(t, "u1", sess.UID)

	require.NoError(t, a.SignOut())
	_, err = a.Current()
	require.ErrorIs(t, err, ErrNotSignedIn)
}

func TestSignInInvalidCredentials(t *testing.T) {
	a, _ := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS"}}`)
	})
	_, err := a.SignIn(context.Background(), "dana@example.org", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCorruptSessionFile(t *testing.T) {
	a, path := newTestAuth(t, http.NotFound)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := a.Current()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotSignedIn)
	assert.Contains(t, err.Error(), "corrupt session file")
}
