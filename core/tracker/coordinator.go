package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/eagleeye/core"
)

const defaultSweepInterval = time.Minute

type (
	CoordinatorDeps struct {
		Local         *LocalStore
		Remote        RemoteClient // nil when no remote store is configured
		Logger        core.Logger
		SweepInterval time.Duration
	}

	// SyncState describes which store is active and how it is doing.
	SyncState struct {
		UsingCloud     bool     `json:"using_cloud"`
		Loaded         bool     `json:"loaded"`
		UserID         string   `json:"user_id,omitempty"`
		Email          string   `json:"email,omitempty"`
		SyncError      string   `json:"sync_error,omitempty"`
		LocalCorrupted []string `json:"local_corrupted,omitempty"`
	}

	// Coordinator owns the active collections and routes every read and write
	// to the local or the remote store.
	// The remote store is used iff a session exists and a RemoteClient is configured.
	Coordinator struct {
		local         *LocalStore
		remote        RemoteClient
		logger        core.Logger
		sweepInterval time.Duration

		mu               sync.RWMutex
		session          *Session
		cloudClasses     []Class
		cloudAssignments []Assignment
		cloudLoaded      bool
		syncErr          string
		generation       uint64        // bumped on every session change; stale reloads are dropped
		reloadSeq        uint64        // bumped when a reload starts
		appliedSeq       uint64        // seq of the newest reload whose outcome was applied
		loadedCh         chan struct{} // closed once the active collections are loaded
		baseCtx          context.Context
		cancel           context.CancelFunc

		wg sync.WaitGroup
	}
)

func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	interval := deps.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Coordinator{
		local:         deps.Local,
		remote:        deps.Remote,
		logger:        deps.Logger,
		sweepInterval: interval,
		baseCtx:       context.Background(),
	}
}

// Start launches the background work of the current mode (the overdue sweep loop).
// Background work stops when ctx is done or on Close.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.baseCtx = ctx
	c.startLifecycleLocked()
}

// Close stops all background work.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// SignIn switches to the user's remote data when a remote store is configured:
// it subscribes to the user's change feed, starts the sweep loop and loads everything.
// A failed initial load leaves the session in place with a sync error; Reload may be retried.
func (c *Coordinator) SignIn(ctx context.Context, sess Session) error {
	c.mu.Lock()
	c.session = &sess
	c.resetCloudLocked()
	lctx := c.startLifecycleLocked()
	remote := c.remote
	c.mu.Unlock()

	if remote == nil {
		c.logger.Warn("remote store not configured, staying on local data", sess)
		return nil
	}

	sub, err := remote.Subscribe(lctx, sess.UserID)
	if err != nil {
		c.logger.Error("subscribing to changes", errors.Wrap(err, "subscribing to changes"), sess)
	} else {
		c.wg.Add(1)
		go c.watch(lctx, sub)
	}

	return c.Reload(ctx)
}

// SignOut drops the session and the cloud collections and goes back to local data.
func (c *Coordinator) SignOut() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = nil
	c.resetCloudLocked()
	c.startLifecycleLocked()
}

// Session returns a copy of the current session, or nil.
func (c *Coordinator) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.session == nil {
		return nil
	}
	sess := *c.session
	return &sess
}

func (c *Coordinator) State() SyncState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := SyncState{
		UsingCloud:     c.usingCloudLocked(),
		Loaded:         c.loadedLocked(),
		SyncError:      c.syncErr,
		LocalCorrupted: c.local.Corrupted(),
	}
	if c.session != nil {
		state.UserID = c.session.UserID
		state.Email = c.session.Email
	}
	return state
}

// RepairLocal backs up the corrupted local records and resets them so they accept writes again.
// It returns the backup keys.
func (c *Coordinator) RepairLocal(ctx context.Context) ([]string, error) {
	backups, err := c.local.Repair(ctx)
	if err != nil {
		return backups, errors.Wrap(err, "repairing local data")
	}
	if len(backups) > 0 {
		c.logger.Warn("local records reset", backups)
	}
	return backups, nil
}

// DismissError clears the current sync error.
func (c *Coordinator) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.syncErr = ""
}

// Reload replaces the cloud collections with a fresh copy of the remote data.
// It does nothing on local data, which is always loaded.
// On failure the previous collections are kept and a sync error is set.
// The outcome of a reload is dropped when a reload started after it has already been applied.
func (c *Coordinator) Reload(ctx context.Context) error {
	c.mu.Lock()
	gen := c.generation
	cloud := c.usingCloudLocked()
	var userID string
	if cloud {
		userID = c.session.UserID
	}
	c.reloadSeq++
	seq := c.reloadSeq
	c.mu.Unlock()

	if !cloud {
		return nil
	}

	classes, assignments, err := newRemoteStore(c.remote, userID).FetchAll(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return nil // session changed meanwhile
	}
	if seq < c.appliedSeq {
		return nil // superseded
	}
	c.appliedSeq = seq
	if err != nil {
		c.syncErr = msgLoadFailed
		c.logger.Error(msgLoadFailed, errors.Wrap(err, "reloading cloud data"), *c.session)
		return newSyncError(msgLoadFailed, err)
	}
	c.cloudClasses = classes
	c.cloudAssignments = assignments
	c.syncErr = ""
	if !c.cloudLoaded {
		c.cloudLoaded = true
		close(c.loadedCh)
	}
	return nil
}

// Classes returns the active classes; empty until loaded.
func (c *Coordinator) Classes(ctx context.Context) ([]Class, error) {
	classes, _, err := c.snapshot(ctx)
	return classes, err
}

// Assignments returns the active assignments, unfiltered; empty until loaded.
func (c *Coordinator) Assignments(ctx context.Context) ([]Assignment, error) {
	_, assignments, err := c.snapshot(ctx)
	return assignments, err
}

// Visible returns the active assignments narrowed by filter and sorted by priority.
func (c *Coordinator) Visible(ctx context.Context, filter Filter) ([]Assignment, error) {
	_, assignments, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(assignments, nowFunc()), nil
}

// Counts returns the smart filter counters over all active assignments.
func (c *Coordinator) Counts(ctx context.Context) (map[SmartFilter]int, error) {
	_, assignments, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return SmartCounts(assignments, nowFunc()), nil
}

func (c *Coordinator) snapshot(ctx context.Context) ([]Class, []Assignment, error) {
	c.mu.RLock()
	cloud, loaded := c.usingCloudLocked(), c.loadedLocked()
	classes := append([]Class{}, c.cloudClasses...)
	assignments := append([]Assignment{}, c.cloudAssignments...)
	c.mu.RUnlock()

	if !loaded {
		return []Class{}, []Assignment{}, nil
	}
	if cloud {
		return classes, assignments, nil
	}
	classes, assignments, err := c.local.FetchAll(ctx)
	return classes, assignments, errors.Wrap(err, "fetching local data")
}

// Mutations

func (c *Coordinator) CreateClass(ctx context.Context, nc NewClass) (Class, error) {
	store, cloud := c.activeStore()
	cls, err := store.CreateClass(ctx, Class{Name: nc.Name, Color: nc.Color, IsArchived: nc.IsArchived})
	if err != nil {
		return Class{}, c.fail(cloud, msgSaveClassFailed, err, "creating class")
	}
	return cls, c.afterWrite(ctx, cloud)
}

func (c *Coordinator) UpdateClass(ctx context.Context, id string, uc UpdateClass) error {
	store, cloud := c.activeStore()
	if err := store.UpdateClass(ctx, id, uc); err != nil {
		return c.fail(cloud, msgUpdateClassFailed, err, "updating class")
	}
	return c.afterWrite(ctx, cloud)
}

// DeleteClass deletes the class along with its assignments.
func (c *Coordinator) DeleteClass(ctx context.Context, id string) error {
	store, cloud := c.activeStore()
	if err := store.DeleteClass(ctx, id); err != nil {
		return c.fail(cloud, msgDeleteClassFailed, err, "deleting class")
	}
	return c.afterWrite(ctx, cloud)
}

func (c *Coordinator) CreateAssignment(ctx context.Context, na NewAssignment) (Assignment, error) {
	store, cloud := c.activeStore()
	asg, err := store.CreateAssignment(ctx, na.Assignment())
	if err != nil {
		return Assignment{}, c.fail(cloud, msgSaveAssignmentFailed, err, "creating assignment")
	}
	return asg, c.afterWrite(ctx, cloud)
}

func (c *Coordinator) UpdateAssignment(ctx context.Context, id string, ua UpdateAssignment) error {
	ua.normalize()
	store, cloud := c.activeStore()
	if err := store.UpdateAssignment(ctx, id, ua); err != nil {
		return c.fail(cloud, msgSaveAssignmentFailed, err, "updating assignment")
	}
	return c.afterWrite(ctx, cloud)
}

// SetStatus moves an assignment to status; "completed" also sets progress to 100.
func (c *Coordinator) SetStatus(ctx context.Context, id string, status Status) error {
	if !status.Editable() {
		return core.NewValidationError(nil, core.FieldError{Field: "status", Error: editableStatusText})
	}
	store, cloud := c.activeStore()
	if err := store.UpdateAssignment(ctx, id, StatusUpdate(status)); err != nil {
		return c.fail(cloud, msgUpdateAssignmentFailed, err, "updating assignment status")
	}
	return c.afterWrite(ctx, cloud)
}

func (c *Coordinator) DeleteAssignment(ctx context.Context, id string) error {
	store, cloud := c.activeStore()
	if err := store.DeleteAssignment(ctx, id); err != nil {
		return c.fail(cloud, msgDeleteAssignmentFailed, err, "deleting assignment")
	}
	return c.afterWrite(ctx, cloud)
}

// Lifecycle

// startLifecycleLocked cancels the background work of the previous session and starts the new one.
func (c *Coordinator) startLifecycleLocked() context.Context {
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	c.loadedCh = make(chan struct{})
	if !c.usingCloudLocked() {
		close(c.loadedCh) // local data is loaded at open
	}

	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.sweepLoop(ctx, c.loadedCh)
	return ctx
}

// watch reloads everything on each change event until ctx is done.
func (c *Coordinator) watch(ctx context.Context, sub Subscription) {
	defer c.wg.Done()
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("unsubscribing from changes", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := c.Reload(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn(fmt.Sprintf("reload after %s on %s failed", ev.Op, ev.Table), err)
			}
		}
	}
}

func (c *Coordinator) resetCloudLocked() {
	c.cloudClasses = nil
	c.cloudAssignments = nil
	c.cloudLoaded = false
	c.syncErr = ""
}

func (c *Coordinator) usingCloudLocked() bool {
	return c.session != nil && c.remote != nil
}

func (c *Coordinator) loadedLocked() bool {
	if c.usingCloudLocked() {
		return c.cloudLoaded
	}
	return true
}

func (c *Coordinator) activeStore() (Store, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.usingCloudLocked() {
		return newRemoteStore(c.remote, c.session.UserID), true
	}
	return c.local, false
}

// fail turns a store error into the error returned to callers.
// Remote failures other than missing rows become a dismissable sync error.
func (c *Coordinator) fail(cloud bool, msg string, err error, action string) error {
	if IsNotFound(err) {
		return err
	}
	if !cloud {
		return errors.Wrap(err, action)
	}

	c.mu.Lock()
	c.syncErr = msg
	var args []interface{}
	if c.session != nil {
		args = append(args, *c.session)
	}
	c.mu.Unlock()

	c.logger.Error(msg, append([]interface{}{errors.Wrap(err, action)}, args...)...)
	return newSyncError(msg, err)
}

// afterWrite reloads the remote data; local writes are already visible.
func (c *Coordinator) afterWrite(ctx context.Context, cloud bool) error {
	if !cloud {
		return nil
	}
	return c.Reload(ctx)
}
