// Package session owns the live subscriptions of a signed-in identity.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/store"
)

// Snapshot is the latest state delivered for the current session. Values
// are replaced wholesale on every delivery and must not be mutated.
type Snapshot struct {
	ID         string
	UID        string
	Privileged bool
	Generation uint64
	Seq        uint64 // deliveries accepted in this session

	Reports    model.Collection
	Profile    model.Profile
	AllReports map[string]model.Collection
	AllUsers   map[string]model.Profile
}

// Active reports whether the snapshot belongs to a signed-in session.
func (s Snapshot) Active() bool { return s.ID != "" }

// IsPrivileged probes whether r may read every user's data. A successful
// AllUsers read means privileged; any error means not.
func IsPrivileged(ctx context.Context, r store.Reader) bool {
	_, err := r.AllUsers(ctx)
	return err == nil
}

// Controller switches between sessions. Deliveries from a previous session
// are dropped, so the snapshot never mixes two identities.
type Controller struct {
	logger   *zap.Logger
	onChange func(Snapshot)

	life sync.Mutex // serializes SignIn and SignOut
	wg   sync.WaitGroup

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	snap   Snapshot

	// notify orders onChange calls; notified is the newest snapshot passed.
	notify   sync.Mutex
	notified struct{ gen, seq uint64 }
}

// NewController returns a Controller. onChange, if set, is called after
// accepted deliveries with a copy of the snapshot. Calls never overlap and
// never go back in time: a snapshot overtaken by a newer one is skipped.
func NewController(logger *zap.Logger, onChange func(Snapshot)) *Controller {
	return &Controller{logger: logger, onChange: onChange}
}

// SignIn tears down any current session, probes privilege and attaches the
// watchers for uid. The session lives until SignOut or until ctx ends.
func (c *Controller) SignIn(ctx context.Context, uid string, st store.Store) error {
	c.life.Lock()
	defer c.life.Unlock()
	c.signOut()

	privileged := IsPrivileged(ctx, st)
	sctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.snap = Snapshot{ID: uuid.NewString(), UID: uid, Privileged: privileged, Generation: gen}
	c.mu.Unlock()

	reports, err := st.WatchUserReports(sctx, uid)
	if err != nil {
		c.signOut()
		return fmt.Errorf("watching reports for %s: %w", uid, err)
	}
	follow(c, gen, reports, func(s *Snapshot, v model.Collection) { s.Reports = v })

	profile, err := st.WatchUser(sctx, uid)
	if err != nil {
		c.signOut()
		return fmt.Errorf("watching profile for %s: %w", uid, err)
	}
	follow(c, gen, profile, func(s *Snapshot, v model.Profile) { s.Profile = v })

	if privileged {
		if all, err := st.WatchAllReports(sctx); err != nil {
			c.logger.Warn("Privileged reports watch failed", zap.String("uid", uid), zap.Error(err))
		} else {
			follow(c, gen, all, func(s *Snapshot, v map[string]model.Collection) { s.AllReports = v })
		}
		if users, err := st.WatchAllUsers(sctx); err != nil {
			c.logger.Warn("Privileged users watch failed", zap.String("uid", uid), zap.Error(err))
		} else {
			follow(c, gen, users, func(s *Snapshot, v map[string]model.Profile) { s.AllUsers = v })
		}
	}

	c.logger.Info("Session started",
		zap.String("session_id", c.Snapshot().ID),
		zap.String("uid", uid),
		zap.Bool("privileged", privileged),
	)
	return nil
}

// SignOut ends the current session and returns once every watcher has
// stopped.
func (c *Controller) SignOut() {
	c.life.Lock()
	defer c.life.Unlock()
	c.signOut()
}

func (c *Controller) signOut() {
	c.mu.Lock()
	cancel := c.cancel
	id := c.snap.ID
	c.cancel = nil
	c.gen++
	c.snap = Snapshot{}
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
	c.logger.Info("Session ended", zap.String("session_id", id))
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func follow[T any](c *Controller, gen uint64, ch <-chan T, apply func(*Snapshot, T)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for v := range ch {
			c.deliver(gen, func(s *Snapshot) { apply(s, v) })
		}
	}()
}

// deliver applies an update if it belongs to the current generation.
func (c *Controller) deliver(gen uint64, apply func(*Snapshot)) bool {
	c.mu.Lock()
	if gen != c.gen || c.cancel == nil {
		c.mu.Unlock()
		c.logger.Debug("Dropping stale delivery", zap.Uint64("generation", gen))
		return false
	}
	apply(&c.snap)
	c.snap.Seq++
	snap := c.snap
	c.mu.Unlock()

	if c.onChange != nil {
		c.publish(snap)
	}
	return true
}

func (c *Controller) publish(snap Snapshot) {
	c.notify.Lock()
	defer c.notify.Unlock()
	last := c.notified
	if snap.Generation < last.gen || (snap.Generation == last.gen && snap.Seq <= last.seq) {
		return
	}
	c.notified.gen, c.notified.seq = snap.Generation, snap.Seq
	c.onChange(snap)
}
