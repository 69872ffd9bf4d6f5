package tracker

import (
	"context"
	"time"
)

// Change feed tables
const (
	TableClasses     = "classes"
	TableAssignments = "assignments"
)

type (
	// Store is the active backend of the Coordinator: the on-device LocalStore
	// or the remote store bound to the signed-in user.
	Store interface {
		// FetchAll returns all classes (creation order) and assignments (due date order).
		FetchAll(ctx context.Context) ([]Class, []Assignment, error)
		CreateClass(ctx context.Context, cls Class) (Class, error)
		UpdateClass(ctx context.Context, id string, uc UpdateClass) error
		DeleteClass(ctx context.Context, id string) error
		CreateAssignment(ctx context.Context, asg Assignment) (Assignment, error)
		UpdateAssignment(ctx context.Context, id string, ua UpdateAssignment) error
		DeleteAssignment(ctx context.Context, id string) error
		// MarkOverdue sets status "overdue" on every non-completed assignment due before now.
		MarkOverdue(ctx context.Context, now time.Time) (int, error)
		Subscribe(ctx context.Context) (Subscription, error)
	}

	// Subscription is a live change feed. Events is closed after Unsubscribe.
	Subscription interface {
		Events() <-chan ChangeEvent
		Unsubscribe() error
	}

	// ChangeEvent notifies that a row of Table changed; receivers reload everything.
	ChangeEvent struct {
		Table string `json:"table"`
		Op    string `json:"op"` // INSERT, UPDATE, DELETE
	}
)

// idleSubscription never fires.
type idleSubscription struct {
	ch chan ChangeEvent
}

var _ Subscription = (*idleSubscription)(nil) // interface compliance check

func newIdleSubscription() *idleSubscription {
	return &idleSubscription{ch: make(chan ChangeEvent)}
}

func (s *idleSubscription) Events() <-chan ChangeEvent { return s.ch }

func (s *idleSubscription) Unsubscribe() error { return nil }
