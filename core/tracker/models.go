package tracker

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/eagleeye/core"
)

type Status string

// Statuses
const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusAlmostDone Status = "almost_done"
	StatusCompleted  Status = "completed"
	StatusOverdue    Status = "overdue" // set by the sweeper only
)

var Statuses = []Status{StatusNotStarted, StatusInProgress, StatusAlmostDone, StatusCompleted, StatusOverdue}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Editable reports whether users may set the status themselves.
func (s Status) Editable() bool {
	return s != StatusOverdue && s.Valid()
}

const (
	MinDurationMin = 5
	MaxDurationMin = 1440
)

type Class struct {
	ID         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	Color      string `json:"color" db:"color"`
	IsArchived bool   `json:"is_archived" db:"is_archived"`
}

type Assignment struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	ClassID              string    `json:"class_id"`
	DueAt                time.Time `json:"due_at"`
	EstimatedDurationMin int       `json:"estimated_duration_min"`
	IsImportant          bool      `json:"is_important"`
	IsUrgent             bool      `json:"is_urgent"`
	Status               Status    `json:"status"`
	Notes                string    `json:"notes"`
	ProgressPct          int       `json:"progress_pct"`
	CreatedAt            time.Time `json:"created_at"` // UTC
	UpdatedAt            time.Time `json:"updated_at"` // UTC
}

// IsPastDue reports whether the sweeper would mark `a` as overdue at `now`.
func (a Assignment) IsPastDue(now time.Time) bool {
	return a.Status != StatusCompleted && a.DueAt.Before(now)
}

// Session identifies the signed-in user of the remote store.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name       string `json:"name" validate:"required,max=100"`
	Color      string `json:"color" validate:"required,rgbhex"`
	IsArchived bool   `json:"is_archived"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Color = core.CleanString(nc.Color)
	return validate.Struct(nc)
}

// UpdateClass defines what information may be provided to modify an existing Class.
type UpdateClass struct {
	Name       *string `json:"name" validate:"omitempty,min=1,max=100"`
	Color      *string `json:"color" validate:"omitempty,rgbhex"`
	IsArchived *bool   `json:"is_archived"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	if uc.Name != nil {
		name := core.CleanString(*uc.Name)
		uc.Name = &name
	}
	return validate.Struct(uc)
}

// Apply returns `cls` with the provided changes.
func (uc UpdateClass) Apply(cls Class) Class {
	if uc.Name != nil {
		cls.Name = *uc.Name
	}
	if uc.Color != nil {
		cls.Color = *uc.Color
	}
	if uc.IsArchived != nil {
		cls.IsArchived = *uc.IsArchived
	}
	return cls
}

// NewAssignment contains information needed to create a new Assignment.
type NewAssignment struct {
	Title                string    `json:"title" validate:"required,max=200"`
	ClassID              string    `json:"class_id" validate:"required"`
	DueAt                time.Time `json:"due_at"`
	EstimatedDurationMin int       `json:"estimated_duration_min" validate:"min=5,max=1440"`
	IsImportant          bool      `json:"is_important"`
	IsUrgent             bool      `json:"is_urgent"`
	Status               Status    `json:"status" validate:"omitempty,editablestatus"`
	Notes                string    `json:"notes" validate:"max=5000"`
	ProgressPct          int       `json:"progress_pct" validate:"min=0,max=100"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.ClassID = core.CleanString(na.ClassID)
	na.Notes = core.CleanString(na.Notes)
	if na.Status == "" {
		na.Status = StatusNotStarted
	}
	if err := validate.Struct(na); err != nil {
		return err
	}
	if na.Status == StatusCompleted {
		na.ProgressPct = 100
	}
	return nil
}

// Assignment builds the Assignment to store; ids and timestamps are left to the store.
// A missing status is not_started and a completed one has full progress.
func (na NewAssignment) Assignment() Assignment {
	if na.Status == "" {
		na.Status = StatusNotStarted
	}
	if na.Status == StatusCompleted {
		na.ProgressPct = 100
	}
	return Assignment{
		Title:                na.Title,
		ClassID:              na.ClassID,
		DueAt:                na.DueAt.UTC(),
		EstimatedDurationMin: na.EstimatedDurationMin,
		IsImportant:          na.IsImportant,
		IsUrgent:             na.IsUrgent,
		Status:               na.Status,
		Notes:                na.Notes,
		ProgressPct:          na.ProgressPct,
	}
}

// UpdateAssignment defines what information may be provided to modify an existing Assignment.
// nil fields are left unchanged.
type UpdateAssignment struct {
	Title                *string    `json:"title" validate:"omitempty,min=1,max=200"`
	ClassID              *string    `json:"class_id" validate:"omitempty,min=1"`
	DueAt                *time.Time `json:"due_at"`
	EstimatedDurationMin *int       `json:"estimated_duration_min" validate:"omitempty,min=5,max=1440"`
	IsImportant          *bool      `json:"is_important"`
	IsUrgent             *bool      `json:"is_urgent"`
	Status               *Status    `json:"status" validate:"omitempty,editablestatus"`
	Notes                *string    `json:"notes" validate:"omitempty,max=5000"`
	ProgressPct          *int       `json:"progress_pct" validate:"omitempty,min=0,max=100"`
}

func (ua *UpdateAssignment) Validate(validate *validator.Validate) error {
	if ua.Title != nil {
		title := core.CleanString(*ua.Title)
		ua.Title = &title
	}
	if ua.Notes != nil {
		notes := core.CleanString(*ua.Notes)
		ua.Notes = &notes
	}
	if err := validate.Struct(ua); err != nil {
		return err
	}
	ua.normalize()
	return nil
}

// normalize forces full progress on completion.
func (ua *UpdateAssignment) normalize() {
	if ua.Status != nil && *ua.Status == StatusCompleted {
		full := 100
		ua.ProgressPct = &full
	}
	if ua.DueAt != nil {
		due := ua.DueAt.UTC()
		ua.DueAt = &due
	}
}

// StatusUpdate builds the change applied when only the status moves.
func StatusUpdate(status Status) UpdateAssignment {
	ua := UpdateAssignment{Status: &status}
	ua.normalize()
	return ua
}

// Apply returns `a` with the provided changes.
func (ua UpdateAssignment) Apply(a Assignment) Assignment {
	if ua.Title != nil {
		a.Title = *ua.Title
	}
	if ua.ClassID != nil {
		a.ClassID = *ua.ClassID
	}
	if ua.DueAt != nil {
		a.DueAt = *ua.DueAt
	}
	if ua.EstimatedDurationMin != nil {
		a.EstimatedDurationMin = *ua.EstimatedDurationMin
	}
	if ua.IsImportant != nil {
		a.IsImportant = *ua.IsImportant
	}
	if ua.IsUrgent != nil {
		a.IsUrgent = *ua.IsUrgent
	}
	if ua.Status != nil {
		a.Status = *ua.Status
	}
	if ua.Notes != nil {
		a.Notes = *ua.Notes
	}
	if ua.ProgressPct != nil {
		a.ProgressPct = *ua.ProgressPct
	}
	return a
}

// Empty reports whether no field is set.
func (ua UpdateAssignment) Empty() bool {
	return ua.Title == nil && ua.ClassID == nil && ua.DueAt == nil && ua.EstimatedDurationMin == nil &&
		ua.IsImportant == nil && ua.IsUrgent == nil && ua.Status == nil && ua.Notes == nil && ua.ProgressPct == nil
}
