package tracker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/eagleeye/core"
)

// Local store keys
const (
	ClassesKey     = "eagleeye-classes"
	AssignmentsKey = "eagleeye-assignments"

	// BackupSuffix names the copy of a corrupted record kept by Repair.
	BackupSuffix = ".corrupted"
)

var (
	nowFunc   = time.Now       // mockable
	newIDFunc = uuid.NewString // mockable
)

//go:generate mockgen -source=local.go -destination=mock_kv_test.go -package=tracker

// KVStore persists raw records on the device.
type KVStore interface {
	// Get returns ok=false when key was never set.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// LocalStore keeps both collections in memory and writes every change through to a KVStore.
// A record that fails to parse is never overwritten: writes to it fail with ErrCorruptedData until Repair.
type LocalStore struct {
	mu          sync.RWMutex
	kv          KVStore
	classes     []Class
	assignments []Assignment
	corrupted   map[string]bool
}

var _ Store = (*LocalStore)(nil) // interface compliance check

// OpenLocalStore loads both records once.
// A missing classes record is seeded with DefaultClasses; a missing assignments record starts empty.
// A corrupted record is logged and replaced in memory by its default; the stored bytes are kept
// and the record stays read-only until Repair.
func OpenLocalStore(ctx context.Context, kv KVStore, logger core.Logger) (*LocalStore, error) {
	s := &LocalStore{kv: kv, corrupted: make(map[string]bool)}

	classes, corrupted, err := loadRecord(ctx, kv, ClassesKey, DefaultClasses, logger)
	if err != nil {
		return nil, err
	}
	s.corrupted[ClassesKey] = corrupted

	assignments, corrupted, err := loadRecord(ctx, kv, AssignmentsKey, []Assignment{}, logger)
	if err != nil {
		return nil, err
	}
	s.corrupted[AssignmentsKey] = corrupted

	s.classes, s.assignments = classes, assignments
	return s, nil
}

func loadRecord[T any](ctx context.Context, kv KVStore, key string, defaults []T, logger core.Logger) ([]T, bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %s", key)
	}
	if !ok {
		items := append([]T{}, defaults...)
		if err = writeRecord(ctx, kv, key, items); err != nil {
			return nil, false, err
		}
		return items, false, nil
	}

	var items []T
	if err = json.Unmarshal(raw, &items); err != nil {
		logger.Error("corrupted local record, using defaults until repaired", errors.Wrapf(err, "parsing %s", key))
		return append([]T{}, defaults...), true, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, false, nil
}

func writeRecord(ctx context.Context, kv KVStore, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	return errors.Wrapf(kv.Set(ctx, key, data), "writing %s", key)
}

// write persists value under key unless the stored record is corrupted.
func (s *LocalStore) write(ctx context.Context, key string, value interface{}) error {
	if s.corrupted[key] {
		return errors.Wrap(ErrCorruptedData, key)
	}
	return writeRecord(ctx, s.kv, key, value)
}

// Corrupted returns the keys whose stored record failed to parse.
func (s *LocalStore) Corrupted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for _, key := range []string{ClassesKey, AssignmentsKey} {
		if s.corrupted[key] {
			keys = append(keys, key)
		}
	}
	return keys
}

// Repair copies every corrupted record to "<key>.corrupted" and resets it to what is shown in memory.
// It returns the backup keys.
func (s *LocalStore) Repair(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backups := make([]string, 0, 2)
	for _, key := range []string{ClassesKey, AssignmentsKey} {
		if !s.corrupted[key] {
			continue
		}
		raw, _, err := s.kv.Get(ctx, key)
		if err != nil {
			return backups, errors.Wrapf(err, "reading %s", key)
		}
		if err = s.kv.Set(ctx, key+BackupSuffix, raw); err != nil {
			return backups, errors.Wrapf(err, "backing up %s", key)
		}

		var value interface{} = s.assignments
		if key == ClassesKey {
			value = s.classes
		}
		if err = writeRecord(ctx, s.kv, key, value); err != nil {
			return backups, err
		}
		s.corrupted[key] = false
		backups = append(backups, key+BackupSuffix)
	}
	return backups, nil
}

func (s *LocalStore) FetchAll(_ context.Context) ([]Class, []Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Class{}, s.classes...), append([]Assignment{}, s.assignments...), nil
}

func (s *LocalStore) CreateClass(ctx context.Context, cls Class) (Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cls.ID = newIDFunc()
	classes := append(append([]Class{}, s.classes...), cls)
	if err := s.write(ctx, ClassesKey, classes); err != nil {
		return Class{}, err
	}
	s.classes = classes
	return cls, nil
}

func (s *LocalStore) UpdateClass(ctx context.Context, id string, uc UpdateClass) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.classIndex(id)
	if idx < 0 {
		return ErrClassNotFound
	}
	classes := append([]Class{}, s.classes...)
	classes[idx] = uc.Apply(classes[idx])
	if err := s.write(ctx, ClassesKey, classes); err != nil {
		return err
	}
	s.classes = classes
	return nil
}

// DeleteClass removes the class and the assignments filed under it.
// The classes record is written first; it is restored when the cascade cannot be written.
func (s *LocalStore) DeleteClass(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.classIndex(id)
	if idx < 0 {
		return ErrClassNotFound
	}
	if s.corrupted[AssignmentsKey] {
		return errors.Wrap(ErrCorruptedData, AssignmentsKey)
	}
	classes := make([]Class, 0, len(s.classes)-1)
	classes = append(classes, s.classes[:idx]...)
	classes = append(classes, s.classes[idx+1:]...)

	assignments := make([]Assignment, 0, len(s.assignments))
	for _, asg := range s.assignments {
		if asg.ClassID != id {
			assignments = append(assignments, asg)
		}
	}

	if err := s.write(ctx, ClassesKey, classes); err != nil {
		return err
	}
	if len(assignments) != len(s.assignments) {
		if err := s.write(ctx, AssignmentsKey, assignments); err != nil {
			if rErr := s.write(ctx, ClassesKey, s.classes); rErr != nil {
				s.classes = classes // the stored classes no longer hold the class
				return errors.Wrapf(err, "restoring %s failed (%v)", ClassesKey, rErr)
			}
			return err
		}
		s.assignments = assignments
	}
	s.classes = classes
	return nil
}

func (s *LocalStore) CreateAssignment(ctx context.Context, asg Assignment) (Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowFunc().UTC()
	asg.ID = newIDFunc()
	asg.CreatedAt = now
	asg.UpdatedAt = now
	if asg.Status == StatusCompleted {
		asg.ProgressPct = 100
	}
	assignments := append(append([]Assignment{}, s.assignments...), asg)
	if err := s.write(ctx, AssignmentsKey, assignments); err != nil {
		return Assignment{}, err
	}
	s.assignments = assignments
	return asg, nil
}

func (s *LocalStore) UpdateAssignment(ctx context.Context, id string, ua UpdateAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.assignmentIndex(id)
	if idx < 0 {
		return ErrAssignmentNotFound
	}
	assignments := append([]Assignment{}, s.assignments...)
	asg := ua.Apply(assignments[idx])
	asg.UpdatedAt = nowFunc().UTC()
	assignments[idx] = asg
	if err := s.write(ctx, AssignmentsKey, assignments); err != nil {
		return err
	}
	s.assignments = assignments
	return nil
}

func (s *LocalStore) DeleteAssignment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.assignmentIndex(id)
	if idx < 0 {
		return ErrAssignmentNotFound
	}
	assignments := make([]Assignment, 0, len(s.assignments)-1)
	assignments = append(assignments, s.assignments[:idx]...)
	assignments = append(assignments, s.assignments[idx+1:]...)
	if err := s.write(ctx, AssignmentsKey, assignments); err != nil {
		return err
	}
	s.assignments = assignments
	return nil
}

// MarkOverdue returns the number of assignments that switched to overdue.
// The record is only written when something changed.
func (s *LocalStore) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int
	assignments := append([]Assignment{}, s.assignments...)
	for i, asg := range assignments {
		if asg.IsPastDue(now) && asg.Status != StatusOverdue {
			assignments[i].Status = StatusOverdue
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.write(ctx, AssignmentsKey, assignments); err != nil {
		return 0, err
	}
	s.assignments = assignments
	return changed, nil
}

func (s *LocalStore) Subscribe(_ context.Context) (Subscription, error) {
	return newIdleSubscription(), nil
}

func (s *LocalStore) classIndex(id string) int {
	for i, cls := range s.classes {
		if cls.ID == id {
			return i
		}
	}
	return -1
}

func (s *LocalStore) assignmentIndex(id string) int {
	for i, asg := range s.assignments {
		if asg.ID == id {
			return i
		}
	}
	return -1
}
