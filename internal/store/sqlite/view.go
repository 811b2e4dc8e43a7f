package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/store"
)

// View is the store seen by one identity. It implements store.Store and
// store.AdminWriter.
type View struct {
	s    *Store
	uid  string
	root bool
}

var (
	_ store.Store       = (*View)(nil)
	_ store.AdminWriter = (*View)(nil)
)

// UID returns the identity of the view; empty for the admin view.
func (v *View) UID() string { return v.uid }

func (v *View) requireAdmin(ctx context.Context) error {
	if v.root {
		return nil
	}
	ok, err := v.s.isAdmin(ctx, v.uid)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", v.uid, store.ErrPermissionDenied)
	}
	return nil
}

func (v *View) requireSelf(ctx context.Context, uid string) error {
	if v.root || uid == v.uid {
		return nil
	}
	return v.requireAdmin(ctx)
}

func (v *View) UserReports(ctx context.Context, uid string) (model.Collection, error) {
	if err := v.requireSelf(ctx, uid); err != nil {
		return nil, err
	}
	return v.s.userReports(ctx, uid)
}

func (v *View) AllReports(ctx context.Context) (map[string]model.Collection, error) {
	if err := v.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return v.s.allReports(ctx)
}

func (v *View) User(ctx context.Context, uid string) (model.Profile, error) {
	if err := v.requireSelf(ctx, uid); err != nil {
		return model.Profile{}, err
	}
	return v.s.user(ctx, uid)
}

func (v *View) AllUsers(ctx context.Context) (map[string]model.Profile, error) {
	if err := v.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return v.s.allUsers(ctx)
}

func (v *View) Researchers(ctx context.Context) ([]string, error) {
	return v.s.researchers(ctx)
}

func (v *View) WatchUserReports(ctx context.Context, uid string) (<-chan model.Collection, error) {
	if err := v.requireSelf(ctx, uid); err != nil {
		return nil, err
	}
	return watch(ctx, v.s, topicUserReports+uid, func(ctx context.Context) (model.Collection, error) {
		return v.s.userReports(ctx, uid)
	})
}

func (v *View) WatchAllReports(ctx context.Context) (<-chan map[string]model.Collection, error) {
	if err := v.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return watch(ctx, v.s, topicReports, v.s.allReports)
}

func (v *View) WatchUser(ctx context.Context, uid string) (<-chan model.Profile, error) {
	if err := v.requireSelf(ctx, uid); err != nil {
		return nil, err
	}
	return watch(ctx, v.s, topicUser+uid, func(ctx context.Context) (model.Profile, error) {
		p, err := v.s.user(ctx, uid)
		if errors.Is(err, store.ErrNotFound) {
			return model.Profile{UID: uid}, nil
		}
		return p, err
	})
}

func (v *View) WatchAllUsers(ctx context.Context) (<-chan map[string]model.Profile, error) {
	if err := v.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return watch(ctx, v.s, topicUsers, v.s.allUsers)
}

// WriteReport stores r under reports/{uid}/{key}. Users may only write their
// own reports.
func (v *View) WriteReport(ctx context.Context, uid, key string, r model.Report) error {
	if !v.root && uid != v.uid {
		return fmt.Errorf("writing reports of %s: %w", uid, store.ErrPermissionDenied)
	}
	return v.s.writeReport(ctx, uid, key, r)
}

func (v *View) WriteActiveResearchers(ctx context.Context, uid string, labels []string) error {
	if !v.root && uid != v.uid {
		return fmt.Errorf("writing settings of %s: %w", uid, store.ErrPermissionDenied)
	}
	return v.s.writeActiveResearchers(ctx, uid, labels)
}

func (v *View) WriteProfile(ctx context.Context, p model.Profile) error {
	if err := v.requireAdmin(ctx); err != nil {
		return err
	}
	return v.s.writeProfile(ctx, p)
}

func (v *View) WriteResearchers(ctx context.Context, labels []string) error {
	if err := v.requireAdmin(ctx); err != nil {
		return err
	}
	return v.s.writeResearchers(ctx, labels)
}
