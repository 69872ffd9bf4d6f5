package dummydb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/eagleeye/core/tracker"
)

// Operations that can be made to fail with DB.Fault.
const (
	OpSelectClasses     = "SelectClasses"
	OpSelectAssignments = "SelectAssignments"
	OpExists            = "Exists"
	OpInsertClass       = "InsertClass"
	OpInsertAssignment  = "InsertAssignment"
	OpUpdateClass       = "UpdateClass"
	OpUpdateAssignment  = "UpdateAssignment"
	OpDeleteClass       = "DeleteClass"
	OpDeleteAssignment  = "DeleteAssignment"
	OpDeleteAll         = "DeleteAll"
	OpMarkOverdue       = "MarkOverdue"
	OpSubscribe         = "Subscribe"
)

const eventBuffer = 16

var (
	nowFunc = time.Now // mockable

	errUnknownTable = errors.New("unknown table")
)

type (
	// DB is an in-memory remote store with the same semantics as the Postgres one.
	DB struct {
		classes     *classTable
		assignments *assignmentTable
		feed        *feed
		faults      *faults
	}

	classRow struct {
		tracker.Class
		userID    string
		createdAt time.Time
		seq       int
	}

	classTable struct {
		sync.RWMutex
		table map[string]*classRow
		seq   int
	}

	assignmentRow struct {
		tracker.Assignment
		userID string
		seq    int
	}

	assignmentTable struct {
		sync.RWMutex
		table map[string]*assignmentRow
		seq   int
	}

	faults struct {
		sync.RWMutex
		table map[string]func(row interface{}) error
	}
)

var _ tracker.RemoteClient = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{
		classes:     &classTable{table: make(map[string]*classRow)},
		assignments: &assignmentTable{table: make(map[string]*assignmentRow)},
		feed:        &feed{subs: make(map[string]map[*subscription]struct{})},
		faults:      &faults{table: make(map[string]func(interface{}) error)},
	}
}

// Fault makes op fail with err; a nil err clears the fault.
func (db *DB) Fault(op string, err error) {
	if err == nil {
		db.FaultFunc(op, nil)
		return
	}
	db.FaultFunc(op, func(interface{}) error { return err })
}

// FaultFunc makes op fail whenever fn returns an error. fn receives the row being written
// (tracker.Class or tracker.Assignment) or nil.
func (db *DB) FaultFunc(op string, fn func(row interface{}) error) {
	db.faults.Lock()
	defer db.faults.Unlock()

	if fn == nil {
		delete(db.faults.table, op)
		return
	}
	db.faults.table[op] = fn
}

func (db *DB) fault(op string, row interface{}) error {
	db.faults.RLock()
	defer db.faults.RUnlock()

	if fn, ok := db.faults.table[op]; ok {
		return fn(row)
	}
	return nil
}

func (db *DB) SelectClasses(_ context.Context, userID string) ([]tracker.Class, error) {
	if err := db.fault(OpSelectClasses, nil); err != nil {
		return nil, err
	}

	db.classes.RLock()
	defer db.classes.RUnlock()

	rows := make([]*classRow, 0)
	for _, row := range db.classes.table {
		if row.userID == userID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].createdAt.Equal(rows[j].createdAt) {
			return rows[i].createdAt.Before(rows[j].createdAt)
		}
		return rows[i].seq < rows[j].seq
	})

	classes := make([]tracker.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.Class)
	}
	return classes, nil
}

func (db *DB) SelectAssignments(_ context.Context, userID string) ([]tracker.Assignment, error) {
	if err := db.fault(OpSelectAssignments, nil); err != nil {
		return nil, err
	}

	db.assignments.RLock()
	defer db.assignments.RUnlock()

	rows := make([]*assignmentRow, 0)
	for _, row := range db.assignments.table {
		if row.userID == userID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].DueAt.Equal(rows[j].DueAt) {
			return rows[i].DueAt.Before(rows[j].DueAt)
		}
		return rows[i].seq < rows[j].seq
	})

	assignments := make([]tracker.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, row.Assignment)
	}
	return assignments, nil
}

func (db *DB) Exists(_ context.Context, table, userID string) (bool, error) {
	if err := db.fault(OpExists, nil); err != nil {
		return false, err
	}

	switch table {
	case tracker.TableClasses:
		db.classes.RLock()
		defer db.classes.RUnlock()
		for _, row := range db.classes.table {
			if row.userID == userID {
				return true, nil
			}
		}
	case tracker.TableAssignments:
		db.assignments.RLock()
		defer db.assignments.RUnlock()
		for _, row := range db.assignments.table {
			if row.userID == userID {
				return true, nil
			}
		}
	default:
		return false, errors.Wrap(errUnknownTable, table)
	}
	return false, nil
}

func (db *DB) InsertClass(_ context.Context, userID string, cls tracker.Class) (tracker.Class, error) {
	if err := db.fault(OpInsertClass, cls); err != nil {
		return tracker.Class{}, err
	}

	db.classes.Lock()
	db.classes.seq++
	cls.ID = uuid.NewString()
	db.classes.table[cls.ID] = &classRow{Class: cls, userID: userID, createdAt: nowFunc().UTC(), seq: db.classes.seq}
	db.classes.Unlock()

	db.feed.publish(userID, tracker.TableClasses, "INSERT")
	return cls, nil
}

func (db *DB) InsertAssignment(_ context.Context, userID string, asg tracker.Assignment) (tracker.Assignment, error) {
	if err := db.fault(OpInsertAssignment, asg); err != nil {
		return tracker.Assignment{}, err
	}
	if !db.ownsClass(userID, asg.ClassID) {
		return tracker.Assignment{}, tracker.ErrClassNotFound
	}

	now := nowFunc().UTC()
	asg.ID = uuid.NewString()
	asg.DueAt = asg.DueAt.UTC()
	asg.CreatedAt = now
	asg.UpdatedAt = now
	if asg.Status == "" {
		asg.Status = tracker.StatusNotStarted
	}

	db.assignments.Lock()
	db.assignments.seq++
	db.assignments.table[asg.ID] = &assignmentRow{Assignment: asg, userID: userID, seq: db.assignments.seq}
	db.assignments.Unlock()

	db.feed.publish(userID, tracker.TableAssignments, "INSERT")
	return asg, nil
}

func (db *DB) UpdateClass(_ context.Context, userID, id string, uc tracker.UpdateClass) error {
	if err := db.fault(OpUpdateClass, nil); err != nil {
		return err
	}

	db.classes.Lock()
	row, ok := db.classes.table[id]
	if !ok || row.userID != userID {
		db.classes.Unlock()
		return tracker.ErrClassNotFound
	}
	row.Class = uc.Apply(row.Class)
	db.classes.Unlock()

	db.feed.publish(userID, tracker.TableClasses, "UPDATE")
	return nil
}

func (db *DB) UpdateAssignment(_ context.Context, userID, id string, ua tracker.UpdateAssignment) error {
	if err := db.fault(OpUpdateAssignment, nil); err != nil {
		return err
	}
	if ua.ClassID != nil && !db.ownsClass(userID, *ua.ClassID) {
		return tracker.ErrClassNotFound
	}

	db.assignments.Lock()
	row, ok := db.assignments.table[id]
	if !ok || row.userID != userID {
		db.assignments.Unlock()
		return tracker.ErrAssignmentNotFound
	}
	row.Assignment = ua.Apply(row.Assignment)
	row.UpdatedAt = nowFunc().UTC()
	db.assignments.Unlock()

	db.feed.publish(userID, tracker.TableAssignments, "UPDATE")
	return nil
}

// DeleteClass cascades to the class' assignments.
func (db *DB) DeleteClass(_ context.Context, userID, id string) error {
	if err := db.fault(OpDeleteClass, nil); err != nil {
		return err
	}

	db.classes.Lock()
	row, ok := db.classes.table[id]
	if !ok || row.userID != userID {
		db.classes.Unlock()
		return tracker.ErrClassNotFound
	}
	delete(db.classes.table, id)
	db.classes.Unlock()

	var cascaded bool
	db.assignments.Lock()
	for asgID, asg := range db.assignments.table {
		if asg.ClassID == id {
			delete(db.assignments.table, asgID)
			cascaded = true
		}
	}
	db.assignments.Unlock()

	db.feed.publish(userID, tracker.TableClasses, "DELETE")
	if cascaded {
		db.feed.publish(userID, tracker.TableAssignments, "DELETE")
	}
	return nil
}

func (db *DB) DeleteAssignment(_ context.Context, userID, id string) error {
	if err := db.fault(OpDeleteAssignment, nil); err != nil {
		return err
	}

	db.assignments.Lock()
	row, ok := db.assignments.table[id]
	if !ok || row.userID != userID {
		db.assignments.Unlock()
		return tracker.ErrAssignmentNotFound
	}
	delete(db.assignments.table, id)
	db.assignments.Unlock()

	db.feed.publish(userID, tracker.TableAssignments, "DELETE")
	return nil
}

func (db *DB) DeleteAll(_ context.Context, table, userID string) error {
	if err := db.fault(OpDeleteAll, table); err != nil {
		return err
	}

	var deleted int
	switch table {
	case tracker.TableClasses:
		db.classes.Lock()
		for id, row := range db.classes.table {
			if row.userID == userID {
				delete(db.classes.table, id)
				deleted++
			}
		}
		db.classes.Unlock()
	case tracker.TableAssignments:
		db.assignments.Lock()
		for id, row := range db.assignments.table {
			if row.userID == userID {
				delete(db.assignments.table, id)
				deleted++
			}
		}
		db.assignments.Unlock()
	default:
		return errors.Wrap(errUnknownTable, table)
	}

	if deleted > 0 {
		db.feed.publish(userID, table, "DELETE")
	}
	return nil
}

func (db *DB) MarkOverdue(_ context.Context, userID string, now time.Time) (int, error) {
	if err := db.fault(OpMarkOverdue, nil); err != nil {
		return 0, err
	}

	var marked int
	db.assignments.Lock()
	for _, row := range db.assignments.table {
		if row.userID == userID && row.IsPastDue(now) {
			row.Status = tracker.StatusOverdue
			row.UpdatedAt = nowFunc().UTC()
			marked++
		}
	}
	db.assignments.Unlock()

	if marked > 0 {
		db.feed.publish(userID, tracker.TableAssignments, "UPDATE")
	}
	return marked, nil
}

func (db *DB) Subscribe(_ context.Context, userID string) (tracker.Subscription, error) {
	if err := db.fault(OpSubscribe, nil); err != nil {
		return nil, err
	}
	return db.feed.subscribe(userID), nil
}

// Subscribers returns the number of live subscriptions of the user.
func (db *DB) Subscribers(userID string) int {
	db.feed.Lock()
	defer db.feed.Unlock()

	return len(db.feed.subs[userID])
}

func (db *DB) ownsClass(userID, classID string) bool {
	db.classes.RLock()
	defer db.classes.RUnlock()

	row, ok := db.classes.table[classID]
	return ok && row.userID == userID
}
