package tracker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// RemoteClient talks to the hosted store. Every call is scoped to one user's rows.
// Inserts return the stored row with its server-assigned id; ids passed in are ignored.
type RemoteClient interface {
	SelectClasses(ctx context.Context, userID string) ([]Class, error)         // created_at ASC
	SelectAssignments(ctx context.Context, userID string) ([]Assignment, error) // due_at ASC
	// Exists reports whether the user has at least one row in table.
	Exists(ctx context.Context, table, userID string) (bool, error)
	InsertClass(ctx context.Context, userID string, cls Class) (Class, error)
	InsertAssignment(ctx context.Context, userID string, asg Assignment) (Assignment, error)
	UpdateClass(ctx context.Context, userID, id string, uc UpdateClass) error
	UpdateAssignment(ctx context.Context, userID, id string, ua UpdateAssignment) error
	DeleteClass(ctx context.Context, userID, id string) error
	DeleteAssignment(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, table, userID string) error
	MarkOverdue(ctx context.Context, userID string, now time.Time) (int, error)
	// Subscribe opens a change feed delivering events for the user's rows only.
	Subscribe(ctx context.Context, userID string) (Subscription, error)
}

// remoteStore binds a RemoteClient to the signed-in user.
type remoteStore struct {
	client RemoteClient
	userID string
}

var _ Store = (*remoteStore)(nil) // interface compliance check

func newRemoteStore(client RemoteClient, userID string) *remoteStore {
	return &remoteStore{client: client, userID: userID}
}

// FetchAll issues both selects concurrently; either failing fails the whole load.
func (s *remoteStore) FetchAll(ctx context.Context) ([]Class, []Assignment, error) {
	var (
		classes     []Class
		assignments []Assignment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		classes, err = s.client.SelectClasses(gctx, s.userID)
		return errors.Wrap(err, "selecting classes")
	})
	g.Go(func() error {
		var err error
		assignments, err = s.client.SelectAssignments(gctx, s.userID)
		return errors.Wrap(err, "selecting assignments")
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if classes == nil {
		classes = []Class{}
	}
	if assignments == nil {
		assignments = []Assignment{}
	}
	return classes, assignments, nil
}

func (s *remoteStore) CreateClass(ctx context.Context, cls Class) (Class, error) {
	return s.client.InsertClass(ctx, s.userID, cls)
}

func (s *remoteStore) UpdateClass(ctx context.Context, id string, uc UpdateClass) error {
	return s.client.UpdateClass(ctx, s.userID, id, uc)
}

func (s *remoteStore) DeleteClass(ctx context.Context, id string) error {
	return s.client.DeleteClass(ctx, s.userID, id)
}

func (s *remoteStore) CreateAssignment(ctx context.Context, asg Assignment) (Assignment, error) {
	return s.client.InsertAssignment(ctx, s.userID, asg)
}

func (s *remoteStore) UpdateAssignment(ctx context.Context, id string, ua UpdateAssignment) error {
	return s.client.UpdateAssignment(ctx, s.userID, id, ua)
}

func (s *remoteStore) DeleteAssignment(ctx context.Context, id string) error {
	return s.client.DeleteAssignment(ctx, s.userID, id)
}

func (s *remoteStore) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	return s.client.MarkOverdue(ctx, s.userID, now)
}

func (s *remoteStore) Subscribe(ctx context.Context) (Subscription, error) {
	return s.client.Subscribe(ctx, s.userID)
}
