// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile pushes locally recorded scans upstream when the device
// comes online. The Controller has no timer of its own: it acts only on
// connectivity transitions and on login.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/leafscan/internal/connectivity"
	"github.com/pdiddy/leafscan/internal/remote"
	"github.com/pdiddy/leafscan/internal/store"
	"github.com/pdiddy/leafscan/pkg/types"
)

// ErrSync reports a failed reconciliation step. It is recorded in the
// Report and logged, never returned to the user.
var ErrSync = errors.New("sync")

// Pusher sends one scan record to the remote history endpoint.
type Pusher interface {
	PushScan(ctx context.Context, rec types.ScanRecord) error
}

// Outcome is the result of pushing one pending record.
type Outcome struct {
	ID  string
	Err error
}

// Report summarizes one reconciliation pass.
type Report struct {
	// Triggered is false when the pass was skipped, as when offline or
	// with no user signed in.
	Triggered bool

	Claimed  int64
	Synced   int
	Failed   int
	Outcomes []Outcome

	// Err is set when the pass stopped before pushing, wrapping ErrSync.
	Err error
}

// Controller runs claim-then-push reconciliation against a local store.
type Controller struct {
	store  store.Store
	pusher Pusher
	log    logrus.FieldLogger

	// run serializes passes so two transitions never push the same
	// record concurrently.
	run sync.Mutex

	mu     sync.Mutex
	state  connectivity.State
	userID string
}

// New returns a Controller in the Unknown state. userID may be empty
// until Login.
func New(s store.Store, p Pusher, userID string, log logrus.FieldLogger) *Controller {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Controller{store: s, pusher: p, userID: userID, log: log}
}

// State returns the last connectivity state seen.
func (c *Controller) State() connectivity.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the signed-in user, or "" when anonymous.
func (c *Controller) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// HandleConnectivity records a connectivity notification. A transition
// into Online with a signed-in user runs a reconciliation pass; every
// other notification only updates the state.
func (c *Controller) HandleConnectivity(ctx context.Context, s connectivity.State) Report {
	c.mu.Lock()
	prev := c.state
	c.state = s
	userID := c.userID
	c.mu.Unlock()

	if s != connectivity.Online || prev == connectivity.Online {
		return Report{}
	}
	if userID == "" {
		c.log.Debug("online without a signed-in user, skipping reconciliation")
		return Report{}
	}
	c.log.WithField("from", prev).Info("connectivity restored")
	return c.Reconcile(ctx)
}

// Login sets the signed-in user and reconciles immediately when online.
func (c *Controller) Login(ctx context.Context, userID string) Report {
	c.mu.Lock()
	c.userID = userID
	online := c.state == connectivity.Online
	c.mu.Unlock()

	if !online || userID == "" {
		return Report{}
	}
	return c.Reconcile(ctx)
}

// Logout clears the signed-in user. Scans captured afterwards are
// anonymous until the next Login claims them.
func (c *Controller) Logout() {
	c.mu.Lock()
	c.userID = ""
	c.mu.Unlock()
}

// Run feeds connectivity events to HandleConnectivity until events is
// closed or ctx ends. Each triggered report goes to onReport when it is
// non-nil.
func (c *Controller) Run(ctx context.Context, events <-chan connectivity.Event, onReport func(Report)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r := c.HandleConnectivity(ctx, ev.State)
			if r.Triggered && onReport != nil {
				onReport(r)
			}
		}
	}
}

// Reconcile claims anonymous scans for the signed-in user and then pushes
// every pending scan, oldest first. A failed push leaves the record
// pending for the next pass. When anything changed, cached history views
// are invalidated.
func (c *Controller) Reconcile(ctx context.Context) Report {
	c.run.Lock()
	defer c.run.Unlock()

	userID := c.UserID()
	r := Report{Triggered: true}
	if userID == "" {
		r.Err = fmt.Errorf("%w: no signed-in user", ErrSync)
		c.finish(r)
		return r
	}
	log := c.log.WithField("user", userID)

	claimed, err := c.store.ClaimAnonymous(ctx, userID)
	if err != nil {
		r.Err = fmt.Errorf("%w: claiming anonymous scans: %w", ErrSync, err)
		c.finish(r)
		return r
	}
	r.Claimed = claimed

	pending, err := c.store.ListPendingScans(ctx, userID)
	if err != nil {
		r.Err = fmt.Errorf("%w: listing pending scans: %w", ErrSync, err)
		c.invalidate(ctx, r)
		c.finish(r)
		return r
	}

	for _, rec := range pending {
		if ctx.Err() != nil {
			break
		}
		if rec.UserID == "" {
			rec.UserID = userID
		}
		if err := c.pusher.PushScan(ctx, rec); err != nil {
			log.WithError(err).WithField("scan", rec.ID).Debug("push failed, leaving pending")
			r.Failed++
			r.Outcomes = append(r.Outcomes, Outcome{ID: rec.ID, Err: fmt.Errorf("%w: %w", ErrSync, err)})
			continue
		}
		if err := c.store.MarkSynced(ctx, rec.ID); err != nil {
			log.WithError(err).WithField("scan", rec.ID).Warn("pushed scan could not be marked synced")
			r.Failed++
			r.Outcomes = append(r.Outcomes, Outcome{ID: rec.ID, Err: fmt.Errorf("%w: %w", ErrSync, err)})
			continue
		}
		r.Synced++
		r.Outcomes = append(r.Outcomes, Outcome{ID: rec.ID})
	}

	c.invalidate(ctx, r)
	c.finish(r)
	return r
}

func (c *Controller) invalidate(ctx context.Context, r Report) {
	if r.Claimed == 0 && r.Synced == 0 {
		return
	}
	n, err := c.store.DeleteCachePrefix(context.WithoutCancel(ctx), remote.HistoryCachePrefix)
	if err != nil {
		c.log.WithError(err).Warn("invalidating cached history failed")
		return
	}
	c.log.WithField("entries", n).Debug("invalidated cached history")
}

// finish logs the outcome of a pass. Reconciliation errors stop here.
func (c *Controller) finish(r Report) {
	fields := logrus.Fields{
		"claimed": r.Claimed,
		"synced":  r.Synced,
		"failed":  r.Failed,
	}
	if r.Err != nil {
		c.log.WithFields(fields).WithError(r.Err).Warn("reconciliation incomplete")
		return
	}
	c.log.WithFields(fields).Info("reconciliation finished")
}
