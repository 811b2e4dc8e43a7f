package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/store"
)

// fakeStore hands out watcher channels that the test feeds and that close
// when their context ends.
type fakeStore struct {
	admin bool

	mu         sync.Mutex
	reports    []chan model.Collection
	users      []chan model.Profile
	allReports []chan map[string]model.Collection
	allUsers   []chan map[string]model.Profile
	open       int
}

func closeOnDone[T any](ctx context.Context, f *fakeStore, ch chan T) {
	f.open++
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		f.open--
		f.mu.Unlock()
		close(ch)
	}()
}

func (f *fakeStore) openWatchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeStore) UserReports(context.Context, string) (model.Collection, error) { return nil, nil }
func (f *fakeStore) AllReports(context.Context) (map[string]model.Collection, error) {
	return nil, nil
}
func (f *fakeStore) User(_ context.Context, uid string) (model.Profile, error) {
	return model.Profile{UID: uid}, nil
}
func (f *fakeStore) AllUsers(context.Context) (map[string]model.Profile, error) {
	if !f.admin {
		return nil, store.ErrPermissionDenied
	}
	return map[string]model.Profile{}, nil
}
func (f *fakeStore) Researchers(context.Context) ([]string, error) { return nil, nil }

func (f *fakeStore) WatchUserReports(ctx context.Context, _ string) (<-chan model.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan model.Collection)
	f.reports = append(f.reports, ch)
	closeOnDone(ctx, f, ch)
	return ch, nil
}

func (f *fakeStore) WatchAllReports(ctx context.Context) (<-chan map[string]model.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan map[string]model.Collection)
	f.allReports = append(f.allReports, ch)
	closeOnDone(ctx, f, ch)
	return ch, nil
}

func (f *fakeStore) WatchUser(ctx context.Context, _ string) (<-chan model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan model.Profile)
	f.users = append(f.users, ch)
	closeOnDone(ctx, f, ch)
	return ch, nil
}

func (f *fakeStore) WatchAllUsers(ctx context.Context) (<-chan map[string]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan map[string]model.Profile)
	f.allUsers = append(f.allUsers, ch)
	closeOnDone(ctx, f, ch)
	return ch, nil
}

func (f *fakeStore) WriteReport(context.Context, string, string, model.Report) error { return nil }
func (f *fakeStore) WriteActiveResearchers(context.Context, string, []string) error { return nil }

func newController(t *testing.T) (*Controller, chan Snapshot) {
	t.Helper()
	changes := make(chan Snapshot, 16)
	c := NewController(zap.NewNop(), func(s Snapshot) { changes <- s })
	t.Cleanup(c.SignOut)
	return c, changes
}

func waitChange(t *testing.T, changes <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s := <-changes:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot change")
		return Snapshot{}
	}
}

func TestIsPrivileged(t *testing.T) {
	assert.False(t, IsPrivileged(context.Background(), &fakeStore{}))
	assert.True(t, IsPrivileged(context.Background(), &fakeStore{admin: true}))
}

func TestSignInRegularUser(t *testing.T) {
	c, changes := newController(t)
	st := &fakeStore{}

	require.NoError(t, c.SignIn(context.Background(), "u1", st))
	snap := c.Snapshot()
	assert.True(t, snap.Active())
	assert.Equal(t, "u1", snap.UID)
	assert.False(t, snap.Privileged)
	assert.Equal(t, 2, st.openWatchers())
	assert.Empty(t, st.allReports)

	st.reports[0] <- model.Collection{model.Daily{Header: model.Header{Key: "daily_2025-09-01"}}}
	got := waitChange(t, changes)
	require.Len(t, got.Reports, 1)
	assert.Equal(t, snap.ID, got.ID)
}

func TestSignInPrivilegedUser(t *testing.T) {
	c, changes := newController(t)
	st := &fakeStore{admin: true}

	require.NoError(t, c.SignIn(context.Background(), "admin", st))
	assert.True(t, c.Snapshot().Privileged)
	assert.Equal(t, 4, st.openWatchers())

	st.allUsers[0] <- map[string]model.Profile{"u1": {UID: "u1"}}
	got := waitChange(t, changes)
	assert.Contains(t, got.AllUsers, "u1")
}

func TestSwitchingIdentityTearsDownFirst(t *testing.T) {
	c, changes := newController(t)
	admin := &fakeStore{admin: true}
	user := &fakeStore{}

	require.NoError(t, c.SignIn(context.Background(), "admin", admin))
	first := c.Snapshot()
	admin.allReports[0] <- map[string]model.Collection{"u2": nil}
	waitChange(t, changes)

	require.NoError(t, c.SignIn(context.Background(), "u1", user))
	assert.Zero(t, admin.openWatchers(), "previous watchers must be stopped before SignIn returns")

	snap := c.Snapshot()
	assert.NotEqual(t, first.ID, snap.ID)
	assert.Equal(t, "u1", snap.UID)
	assert.False(t, snap.Privileged)
	assert.Nil(t, snap.AllReports, "privileged data must not leak into the new session")

	// A late delivery tagged with the old generation is dropped.
	accepted := c.deliver(first.Generation, func(s *Snapshot) { s.AllUsers = map[string]model.Profile{"x": {}} })
	assert.False(t, accepted)
	assert.Nil(t, c.Snapshot().AllUsers)
}

func TestSignOutStopsWatchers(t *testing.T) {
	c, _ := newController(t)
	st := &fakeStore{admin: true}
	require.NoError(t, c.SignIn(context.Background(), "admin", st))

	c.SignOut()
	assert.Zero(t, st.openWatchers())
	assert.False(t, c.Snapshot().Active())

	// Signing out twice is harmless.
	c.SignOut()
}

func TestConcurrentDeliveriesNotifyInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seqs []uint64
	)
	c := NewController(zap.NewNop(), func(s Snapshot) {
		mu.Lock()
		seqs = append(seqs, s.Seq)
		mu.Unlock()
	})
	t.Cleanup(c.SignOut)

	f := &fakeStore{admin: true}
	require.NoError(t, c.SignIn(context.Background(), "admin", f))

	const rounds = 50
	var wg sync.WaitGroup
	send := func(feed func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				feed()
			}
		}()
	}
	send(func() { f.reports[0] <- model.Collection{} })
	send(func() { f.users[0] <- model.Profile{UID: "admin"} })
	send(func() { f.allReports[0] <- map[string]model.Collection{} })
	send(func() { f.allUsers[0] <- map[string]model.Profile{} })
	wg.Wait()

	require.Eventually(t, func() bool { return c.Snapshot().Seq == 4*rounds }, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seqs)
	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1], "callback %d went back in time", i)
	}
}
