package tracker_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/eagleeye/core"
	"github.com/trezcool/eagleeye/core/tracker"
	dummydb "github.com/trezcool/eagleeye/storage/database/dummy"
	memkv "github.com/trezcool/eagleeye/storage/local/memory"
	testutil "github.com/trezcool/eagleeye/tests"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

var errConnReset = errors.New("connection reset by peer")

func newCoordinator(t *testing.T, kv tracker.KVStore, remote tracker.RemoteClient) (*tracker.Coordinator, *tracker.LocalStore, *testutil.Logger) {
	t.Helper()
	logger := testutil.NewLogger()
	local, err := tracker.OpenLocalStore(context.Background(), kv, logger)
	require.NoError(t, err)

	c := tracker.NewCoordinator(tracker.CoordinatorDeps{
		Local:         local,
		Remote:        remote,
		Logger:        logger,
		SweepInterval: time.Hour,
	})
	c.Start(context.Background())
	t.Cleanup(c.Close)
	return c, local, logger
}

func waitLogged(t *testing.T, logger *testutil.Logger, msg string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, entry := range logger.Messages() {
			if strings.Contains(entry, msg) {
				return true
			}
		}
		return false
	}, waitFor, tick, "never logged %q", msg)
}

func statusesByTitle(assignments []tracker.Assignment) map[string]tracker.Status {
	res := make(map[string]tracker.Status, len(assignments))
	for _, asg := range assignments {
		res[asg.Title] = asg.Status
	}
	return res
}

func TestCoordinator_local(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newCoordinator(t, memkv.Open(), nil)

	assert.Equal(t, tracker.SyncState{Loaded: true}, c.State())
	classes, err := c.Classes(ctx)
	require.NoError(t, err)
	assert.Equal(t, tracker.DefaultClasses, classes)

	cls, err := c.CreateClass(ctx, tracker.NewClass{Name: "Chemistry", Color: "#14B8A6"})
	require.NoError(t, err)
	assert.NotEmpty(t, cls.ID)

	asg, err := c.CreateAssignment(ctx, tracker.NewAssignment{
		Title: "Lab report", ClassID: cls.ID, DueAt: time.Now().Add(2 * time.Hour),
		EstimatedDurationMin: 45, IsImportant: true, Status: tracker.StatusInProgress, ProgressPct: 30,
	})
	require.NoError(t, err)

	visible, err := c.Visible(ctx, tracker.Filter{Smart: tracker.SmartImportant})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, asg.ID, visible[0].ID)

	counts, err := c.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[tracker.SmartImportant])
	assert.Equal(t, 0, counts[tracker.SmartUrgent])

	require.NoError(t, c.SetStatus(ctx, asg.ID, tracker.StatusCompleted))
	assignments, err := c.Assignments(ctx)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, tracker.StatusCompleted, assignments[0].Status)
	assert.Equal(t, 100, assignments[0].ProgressPct)

	err = c.SetStatus(ctx, asg.ID, tracker.StatusOverdue)
	assert.IsType(t, &core.ValidationError{}, err)
	assert.True(t, tracker.IsNotFound(c.SetStatus(ctx, "nope", tracker.StatusInProgress)))

	require.NoError(t, c.DeleteClass(ctx, cls.ID))
	assignments, err = c.Assignments(ctx)
	require.NoError(t, err)
	assert.Empty(t, assignments)

	// local data does not check class ids; a missing status starts as not_started
	orphan, err := c.CreateAssignment(ctx, tracker.NewAssignment{Title: "Orphan", ClassID: cls.ID, DueAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusNotStarted, orphan.Status)
	assert.Zero(t, orphan.ProgressPct)
}

func TestCoordinator_corruptedLocalData(t *testing.T) {
	ctx := context.Background()
	kv := memkv.Open()
	testutil.WriteLocal(t, kv, []tracker.Class{{ID: "1", Name: "English", Color: "#3B82F6"}}, nil)
	raw := []byte(`[{"id": "a1",`)
	require.NoError(t, kv.Set(ctx, tracker.AssignmentsKey, raw))

	c, _, _ := newCoordinator(t, kv, nil)
	assert.Equal(t, []string{tracker.AssignmentsKey}, c.State().LocalCorrupted)

	_, err := c.CreateAssignment(ctx, tracker.NewAssignment{Title: "Essay", ClassID: "1", DueAt: time.Now().Add(time.Hour)})
	assert.True(t, tracker.IsCorrupted(err))
	stored, _, err := kv.Get(ctx, tracker.AssignmentsKey)
	require.NoError(t, err)
	assert.Equal(t, raw, stored)

	backups, err := c.RepairLocal(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{tracker.AssignmentsKey + tracker.BackupSuffix}, backups)
	assert.Empty(t, c.State().LocalCorrupted)
	backup, ok, err := kv.Get(ctx, tracker.AssignmentsKey+tracker.BackupSuffix)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, raw, backup)

	_, err = c.CreateAssignment(ctx, tracker.NewAssignment{Title: "Essay", ClassID: "1", DueAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
}

func TestCoordinator_SignIn_withoutRemote(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newCoordinator(t, memkv.Open(), nil)

	require.NoError(t, c.SignIn(ctx, tracker.Session{UserID: "u1", Email: "jane@example.com"}))
	assert.Equal(t, tracker.SyncState{Loaded: true, UserID: "u1", Email: "jane@example.com"}, c.State())

	classes, err := c.Classes(ctx)
	require.NoError(t, err)
	assert.Equal(t, tracker.DefaultClasses, classes)
}

func TestCoordinator_cloud(t *testing.T) {
	ctx := context.Background()
	remote := dummydb.Open()
	chem := testutil.CreateClass(t, remote, "u1", testutil.NewClass("Chemistry").Build())
	testutil.CreateAssignment(t, remote, "u1", testutil.NewAssignment("Lab report").InClass(chem.ID).Build())

	c, local, _ := newCoordinator(t, memkv.Open(), remote)
	require.NoError(t, c.SignIn(ctx, tracker.Session{UserID: "u1", Email: "jane@example.com"}))

	assert.Equal(t, tracker.SyncState{UsingCloud: true, Loaded: true, UserID: "u1", Email: "jane@example.com"}, c.State())
	classes, err := c.Classes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []tracker.Class{chem}, classes)

	t.Run("writes go to the remote store", func(t *testing.T) {
		_, err := c.CreateAssignment(ctx, tracker.NewAssignment{
			Title: "Essay", ClassID: chem.ID, DueAt: time.Now().Add(24 * time.Hour), EstimatedDurationMin: 60,
		})
		require.NoError(t, err)

		// the write's own reload is applied before it returns
		assignments, err := c.Assignments(ctx)
		require.NoError(t, err)
		assert.Len(t, assignments, 2)

		stored, err := remote.SelectAssignments(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, stored, 2)

		_, localAssignments, err := local.FetchAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, localAssignments)
	})

	t.Run("remote changes trigger a reload", func(t *testing.T) {
		testutil.CreateClass(t, remote, "u1", testutil.NewClass("Physics").Build())
		testutil.CreateClass(t, remote, "u2", testutil.NewClass("Art").Build())

		assert.Eventually(t, func() bool {
			classes, err := c.Classes(ctx)
			return err == nil && len(classes) == 2
		}, waitFor, tick)
	})

	t.Run("sign out goes back to local data", func(t *testing.T) {
		require.Equal(t, 1, remote.Subscribers("u1"))
		c.SignOut()

		assert.Equal(t, tracker.SyncState{Loaded: true}, c.State())
		classes, err := c.Classes(ctx)
		require.NoError(t, err)
		assert.Equal(t, tracker.DefaultClasses, classes)
		assert.Eventually(t, func() bool { return remote.Subscribers("u1") == 0 }, waitFor, tick)
	})
}

func TestCoordinator_cloudFailures(t *testing.T) {
	ctx := context.Background()
	remote := dummydb.Open()
	chem := testutil.CreateClass(t, remote, "u1", testutil.NewClass("Chemistry").Build())
	testutil.CreateAssignment(t, remote, "u1", testutil.NewAssignment("Lab report").InClass(chem.ID).
		DueAt(time.Now().Add(-time.Hour)).WithStatus(tracker.StatusInProgress).Build())
	testutil.CreateAssignment(t, remote, "u1", testutil.NewAssignment("Reading").InClass(chem.ID).
		DueAt(time.Now().Add(-time.Hour)).WithStatus(tracker.StatusCompleted).Build())
	testutil.CreateAssignment(t, remote, "u1", testutil.NewAssignment("Essay").InClass(chem.ID).Build())

	// no change feed: only the coordinator's own calls reload
	remote.Fault(dummydb.OpSubscribe, errConnReset)

	c, _, logger := newCoordinator(t, memkv.Open(), remote)
	require.NoError(t, c.SignIn(ctx, tracker.Session{UserID: "u1"}))
	waitLogged(t, logger, "1 assignment(s) marked overdue")

	t.Run("first sweep after load", func(t *testing.T) {
		assignments, err := c.Assignments(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]tracker.Status{
			"Lab report": tracker.StatusOverdue,
			"Reading":    tracker.StatusCompleted,
			"Essay":      tracker.StatusNotStarted,
		}, statusesByTitle(assignments))
	})

	t.Run("failed write", func(t *testing.T) {
		remote.Fault(dummydb.OpInsertClass, errConnReset)
		defer remote.Fault(dummydb.OpInsertClass, nil)

		_, err := c.CreateClass(ctx, tracker.NewClass{Name: "Physics", Color: "#000000"})
		var syncErr *tracker.SyncError
		require.True(t, errors.As(err, &syncErr))
		assert.Equal(t, "Failed to save class", syncErr.Message)
		assert.Equal(t, errConnReset, errors.Cause(syncErr.Err))
		assert.Equal(t, "Failed to save class", c.State().SyncError)

		c.DismissError()
		assert.Empty(t, c.State().SyncError)
	})

	t.Run("missing rows are not sync errors", func(t *testing.T) {
		err := c.DeleteAssignment(ctx, uuid.NewString())
		assert.True(t, tracker.IsNotFound(err))
		assert.Empty(t, c.State().SyncError)
	})

	t.Run("failed reload keeps the collections", func(t *testing.T) {
		before, err := c.Assignments(ctx)
		require.NoError(t, err)

		remote.Fault(dummydb.OpSelectAssignments, errConnReset)
		err = c.Reload(ctx)
		var syncErr *tracker.SyncError
		require.True(t, errors.As(err, &syncErr))
		assert.Equal(t, "Failed to load data from cloud", syncErr.Message)

		state := c.State()
		assert.True(t, state.Loaded)
		assert.Equal(t, "Failed to load data from cloud", state.SyncError)
		after, err := c.Assignments(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)

		remote.Fault(dummydb.OpSelectAssignments, nil)
		require.NoError(t, c.Reload(ctx))
		assert.Empty(t, c.State().SyncError)
	})
}

// gatedRemote holds SelectClasses until gate is closed.
type gatedRemote struct {
	*dummydb.DB
	gate chan struct{}
}

func (r gatedRemote) SelectClasses(ctx context.Context, userID string) ([]tracker.Class, error) {
	select {
	case <-r.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.DB.SelectClasses(ctx, userID)
}

func TestCoordinator_staleReload(t *testing.T) {
	ctx := context.Background()
	remote := gatedRemote{DB: dummydb.Open(), gate: make(chan struct{})}
	testutil.CreateClass(t, remote, "u1", testutil.NewClass("Chemistry").Build())

	c, _, _ := newCoordinator(t, memkv.Open(), remote)

	done := make(chan error, 1)
	go func() { done <- c.SignIn(ctx, tracker.Session{UserID: "u1"}) }()
	require.Eventually(t, func() bool { return c.State().UsingCloud }, waitFor, tick)

	// nothing is loaded, nothing is swept
	assert.False(t, c.State().Loaded)
	classes, err := c.Classes(ctx)
	require.NoError(t, err)
	assert.Empty(t, classes)
	_, err = c.Sweep(ctx)
	assert.Equal(t, tracker.ErrNotLoaded, err)

	c.SignOut()
	close(remote.gate)
	require.NoError(t, <-done)

	assert.Equal(t, tracker.SyncState{Loaded: true}, c.State())
	classes, err = c.Classes(ctx)
	require.NoError(t, err)
	assert.Equal(t, tracker.DefaultClasses, classes)
}

// slowRemote holds the first SelectAssignments call after arm, once the rows have been read.
type slowRemote struct {
	*dummydb.DB
	armed   chan struct{}
	entered chan struct{}
	release chan struct{}
}

func (r *slowRemote) SelectAssignments(ctx context.Context, userID string) ([]tracker.Assignment, error) {
	assignments, err := r.DB.SelectAssignments(ctx, userID)
	select {
	case <-r.armed:
		close(r.entered)
		<-r.release
	default:
	}
	return assignments, err
}

func (r *slowRemote) arm() {
	r.armed <- struct{}{}
}

func TestCoordinator_outOfOrderReloads(t *testing.T) {
	ctx := context.Background()
	remote := &slowRemote{
		DB:      dummydb.Open(),
		armed:   make(chan struct{}, 1),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	chem := testutil.CreateClass(t, remote, "u1", testutil.NewClass("Chemistry").Build())
	testutil.CreateAssignment(t, remote, "u1", testutil.NewAssignment("Lab report").InClass(chem.ID).Build())
	remote.Fault(dummydb.OpSubscribe, errConnReset)
	remote.Fault(dummydb.OpMarkOverdue, errConnReset)

	c, _, _ := newCoordinator(t, memkv.Open(), remote)
	require.NoError(t, c.SignIn(ctx, tracker.Session{UserID: "u1"}))

	// an older reload read one row and is held
	remote.arm()
	done := make(chan error, 1)
	go func() { done <- c.Reload(ctx) }()
	<-remote.entered

	_, err := c.CreateAssignment(ctx, tracker.NewAssignment{
		Title: "Essay", ClassID: chem.ID, DueAt: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	assignments, err := c.Assignments(ctx)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	close(remote.release)
	require.NoError(t, <-done)

	assignments, err = c.Assignments(ctx)
	require.NoError(t, err)
	assert.Len(t, assignments, 2)
}

func TestCoordinator_periodicSweep(t *testing.T) {
	ctx := context.Background()
	kv := memkv.Open()
	due := time.Now().Add(300 * time.Millisecond)
	testutil.WriteLocal(t, kv,
		[]tracker.Class{{ID: "1", Name: "English", Color: "#3B82F6"}},
		[]tracker.Assignment{
			testutil.NewAssignment("Essay").WithID("a1").InClass("1").DueAt(due).WithStatus(tracker.StatusInProgress).Build(),
		},
	)

	logger := testutil.NewLogger()
	local, err := tracker.OpenLocalStore(ctx, kv, logger)
	require.NoError(t, err)
	c := tracker.NewCoordinator(tracker.CoordinatorDeps{
		Local:         local,
		Logger:        logger,
		SweepInterval: 20 * time.Millisecond,
	})
	c.Start(ctx)
	t.Cleanup(c.Close)

	// the first sweep finds nothing past due
	assignments, err := c.Assignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusInProgress, statusesByTitle(assignments)["Essay"])

	// a later tick marks it without any caller involvement
	waitLogged(t, logger, "1 assignment(s) marked overdue")
	assert.True(t, time.Now().After(due))
	assignments, err = c.Assignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusOverdue, statusesByTitle(assignments)["Essay"])
}

func TestCoordinator_localSweep(t *testing.T) {
	ctx := context.Background()
	kv := memkv.Open()
	testutil.WriteLocal(t, kv,
		[]tracker.Class{{ID: "1", Name: "English", Color: "#3B82F6"}},
		[]tracker.Assignment{
			testutil.NewAssignment("Essay").WithID("a1").InClass("1").
				DueAt(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)).WithStatus(tracker.StatusInProgress).Build(),
			testutil.NewAssignment("Reading").WithID("a2").InClass("1").
				DueAt(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)).WithStatus(tracker.StatusCompleted).Build(),
		},
	)

	c, _, logger := newCoordinator(t, kv, nil)
	waitLogged(t, logger, "1 assignment(s) marked overdue")

	assignments, err := c.Assignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]tracker.Status{
		"Essay":   tracker.StatusOverdue,
		"Reading": tracker.StatusCompleted,
	}, statusesByTitle(assignments))

	marked, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, marked)

	// completing an overdue assignment sticks
	require.NoError(t, c.SetStatus(ctx, "a1", tracker.StatusCompleted))
	_, err = c.Sweep(ctx)
	require.NoError(t, err)
	assignments, err = c.Assignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusCompleted, statusesByTitle(assignments)["Essay"])
}
