package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/eagleeye/core"
	"github.com/trezcool/eagleeye/core/tracker"
)

// ClassBuilder provides fluent API for creating test classes.
type ClassBuilder struct {
	class tracker.Class
}

func NewClass(name string) *ClassBuilder {
	return &ClassBuilder{class: tracker.Class{Name: name, Color: "#3B82F6"}}
}

func (b *ClassBuilder) WithID(id string) *ClassBuilder {
	b.class.ID = id
	return b
}

func (b *ClassBuilder) WithColor(color string) *ClassBuilder {
	b.class.Color = color
	return b
}

func (b *ClassBuilder) Archived() *ClassBuilder {
	b.class.IsArchived = true
	return b
}

func (b *ClassBuilder) Build() tracker.Class {
	return b.class
}

// AssignmentBuilder provides fluent API for creating test assignments.
type AssignmentBuilder struct {
	asg tracker.Assignment
}

func NewAssignment(title string) *AssignmentBuilder {
	now := time.Now().UTC()
	return &AssignmentBuilder{
		asg: tracker.Assignment{
			Title:                title,
			DueAt:                now.Add(24 * time.Hour),
			EstimatedDurationMin: 60,
			Status:               tracker.StatusNotStarted,
			CreatedAt:            now,
			UpdatedAt:            now,
		},
	}
}

func (b *AssignmentBuilder) WithID(id string) *AssignmentBuilder {
	b.asg.ID = id
	return b
}

func (b *AssignmentBuilder) InClass(classID string) *AssignmentBuilder {
	b.asg.ClassID = classID
	return b
}

func (b *AssignmentBuilder) DueAt(due time.Time) *AssignmentBuilder {
	b.asg.DueAt = due
	return b
}

func (b *AssignmentBuilder) WithDuration(min int) *AssignmentBuilder {
	b.asg.EstimatedDurationMin = min
	return b
}

func (b *AssignmentBuilder) Important() *AssignmentBuilder {
	b.asg.IsImportant = true
	return b
}

func (b *AssignmentBuilder) Urgent() *AssignmentBuilder {
	b.asg.IsUrgent = true
	return b
}

func (b *AssignmentBuilder) WithStatus(s tracker.Status) *AssignmentBuilder {
	b.asg.Status = s
	if s == tracker.StatusCompleted {
		b.asg.ProgressPct = 100
	}
	return b
}

func (b *AssignmentBuilder) WithProgress(pct int) *AssignmentBuilder {
	b.asg.ProgressPct = pct
	return b
}

func (b *AssignmentBuilder) WithNotes(notes string) *AssignmentBuilder {
	b.asg.Notes = notes
	return b
}

func (b *AssignmentBuilder) Build() tracker.Assignment {
	return b.asg
}

// WriteLocal stores raw local records, bypassing the LocalStore.
// A nil slice leaves its key untouched.
func WriteLocal(t *testing.T, kv tracker.KVStore, classes []tracker.Class, assignments []tracker.Assignment) {
	t.Helper()
	if classes != nil {
		writeJSON(t, kv, tracker.ClassesKey, classes)
	}
	if assignments != nil {
		writeJSON(t, kv, tracker.AssignmentsKey, assignments)
	}
}

func writeJSON(t *testing.T, kv tracker.KVStore, key string, value interface{}) {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("writeJSON() failed: %v", err)
	}
	if err = kv.Set(context.Background(), key, data); err != nil {
		t.Fatalf("writeJSON() failed: %v", err)
	}
}

// CreateClass inserts a class for userID in the remote store.
func CreateClass(t *testing.T, remote tracker.RemoteClient, userID string, cls tracker.Class) tracker.Class {
	t.Helper()
	cls, err := remote.InsertClass(context.Background(), userID, cls)
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return cls
}

// CreateAssignment inserts an assignment for userID in the remote store.
func CreateAssignment(t *testing.T, remote tracker.RemoteClient, userID string, asg tracker.Assignment) tracker.Assignment {
	t.Helper()
	asg, err := remote.InsertAssignment(context.Background(), userID, asg)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return asg
}

// Logger records log entries in memory.
type Logger struct {
	mu      sync.Mutex
	entries []string
}

var _ core.Logger = (*Logger)(nil) // interface compliance check

func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) record(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, fmt.Sprintf("%s: %s %v", level, msg, args))
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.record("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.record("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.record("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.record("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.record("FATAL", msg, args) }

// Messages returns a copy of the recorded entries.
func (l *Logger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string{}, l.entries...)
}
