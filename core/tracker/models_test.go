package tracker

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/eagleeye/core"
)

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

// failedTags maps each failing field to its failing tag.
func failedTags(t *testing.T, err error) map[string]string {
	t.Helper()
	if err == nil {
		return nil
	}
	vErrs, ok := err.(validator.ValidationErrors)
	require.True(t, ok, "unexpected error type %T: %v", err, err)
	tags := make(map[string]string, len(vErrs))
	for _, vErr := range vErrs {
		tags[vErr.Field()] = vErr.Tag()
	}
	return tags
}

func TestStatus_Editable(t *testing.T) {
	for _, s := range Statuses {
		assert.Equal(t, s != StatusOverdue, s.Editable(), s)
	}
	assert.False(t, Status("done").Editable())
	assert.False(t, Status("").Valid())
}

func TestNewAssignment_Validate(t *testing.T) {
	validate := newValidator()
	due := time.Date(2024, 3, 15, 17, 0, 0, 0, time.UTC)
	valid := func() NewAssignment {
		return NewAssignment{Title: " Essay ", ClassID: "1", DueAt: due, EstimatedDurationMin: 60}
	}

	tests := []struct {
		name     string
		mutate   func(na *NewAssignment)
		wantTags map[string]string
		check    func(t *testing.T, na NewAssignment)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, na NewAssignment) {
				assert.Equal(t, "Essay", na.Title)
				assert.Equal(t, StatusNotStarted, na.Status)
				assert.Equal(t, 0, na.ProgressPct)
			},
		},
		{name: "no title", mutate: func(na *NewAssignment) { na.Title = "   " }, wantTags: map[string]string{"title": "required"}},
		{name: "no class", mutate: func(na *NewAssignment) { na.ClassID = "" }, wantTags: map[string]string{"class_id": "required"}},
		{name: "no due date", mutate: func(na *NewAssignment) { na.DueAt = time.Time{} }, wantTags: map[string]string{"due_at": "required"}},
		{name: "duration too short", mutate: func(na *NewAssignment) { na.EstimatedDurationMin = 4 }, wantTags: map[string]string{"estimated_duration_min": "min"}},
		{name: "duration min", mutate: func(na *NewAssignment) { na.EstimatedDurationMin = MinDurationMin }},
		{name: "duration max", mutate: func(na *NewAssignment) { na.EstimatedDurationMin = MaxDurationMin }},
		{name: "duration too long", mutate: func(na *NewAssignment) { na.EstimatedDurationMin = 1441 }, wantTags: map[string]string{"estimated_duration_min": "max"}},
		{name: "negative progress", mutate: func(na *NewAssignment) { na.ProgressPct = -1 }, wantTags: map[string]string{"progress_pct": "min"}},
		{name: "progress over 100", mutate: func(na *NewAssignment) { na.ProgressPct = 101 }, wantTags: map[string]string{"progress_pct": "max"}},
		{name: "overdue is not settable", mutate: func(na *NewAssignment) { na.Status = StatusOverdue }, wantTags: map[string]string{"status": editableStatusTag}},
		{name: "unknown status", mutate: func(na *NewAssignment) { na.Status = "done" }, wantTags: map[string]string{"status": editableStatusTag}},
		{
			name:   "completed forces full progress",
			mutate: func(na *NewAssignment) { na.Status = StatusCompleted; na.ProgressPct = 40 },
			check:  func(t *testing.T, na NewAssignment) { assert.Equal(t, 100, na.ProgressPct) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			na := valid()
			if tt.mutate != nil {
				tt.mutate(&na)
			}
			err := na.Validate(validate)
			assert.Equal(t, tt.wantTags, failedTags(t, err))
			if tt.check != nil {
				tt.check(t, na)
			}
		})
	}
}

func TestUpdateAssignment(t *testing.T) {
	validate := newValidator()
	strPtr := func(s string) *string { return &s }
	intPtr := func(i int) *int { return &i }
	statusPtr := func(s Status) *Status { return &s }

	orig := Assignment{
		ID: "a1", Title: "Essay", ClassID: "1", EstimatedDurationMin: 60,
		Status: StatusInProgress, ProgressPct: 40, Notes: "draft",
	}

	tests := []struct {
		name     string
		data     UpdateAssignment
		wantTags map[string]string
		want     Assignment
	}{
		{name: "nothing", data: UpdateAssignment{}, want: orig},
		{
			name: "title and notes are cleaned",
			data: UpdateAssignment{Title: strPtr(" Final essay "), Notes: strPtr(" ")},
			want: func() Assignment { a := orig; a.Title = "Final essay"; a.Notes = ""; return a }(),
		},
		{name: "empty title", data: UpdateAssignment{Title: strPtr(" ")}, wantTags: map[string]string{"title": "min"}},
		{name: "bad duration", data: UpdateAssignment{EstimatedDurationMin: intPtr(0)}, wantTags: map[string]string{"estimated_duration_min": "min"}},
		{name: "overdue", data: UpdateAssignment{Status: statusPtr(StatusOverdue)}, wantTags: map[string]string{"status": editableStatusTag}},
		{name: "zero due date", data: UpdateAssignment{DueAt: &time.Time{}}, wantTags: map[string]string{"due_at": "required"}},
		{
			name: "completed forces full progress",
			data: UpdateAssignment{Status: statusPtr(StatusCompleted), ProgressPct: intPtr(40)},
			want: func() Assignment { a := orig; a.Status = StatusCompleted; a.ProgressPct = 100; return a }(),
		},
		{
			name: "progress kept on other statuses",
			data: UpdateAssignment{Status: statusPtr(StatusAlmostDone)},
			want: func() Assignment { a := orig; a.Status = StatusAlmostDone; return a }(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate(validate)
			assert.Equal(t, tt.wantTags, failedTags(t, err))
			if err == nil {
				assert.Equal(t, tt.want, tt.data.Apply(orig))
			}
		})
	}
}

func TestUpdateAssignment_Apply_completed(t *testing.T) {
	done := Assignment{ID: "a1", Status: StatusCompleted, ProgressPct: 100}
	progress := 40

	got := UpdateAssignment{ProgressPct: &progress}.Apply(done)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 40, got.ProgressPct)
}

func TestNewAssignment_Assignment(t *testing.T) {
	due := time.Date(2024, 3, 15, 17, 0, 0, 0, time.FixedZone("WAT", 3600))

	asg := NewAssignment{Title: "Essay", ClassID: "1", DueAt: due, ProgressPct: 30}.Assignment()
	assert.Equal(t, StatusNotStarted, asg.Status)
	assert.Equal(t, 30, asg.ProgressPct)
	assert.Equal(t, time.UTC, asg.DueAt.Location())
	assert.True(t, due.Equal(asg.DueAt))

	asg = NewAssignment{Title: "Essay", ClassID: "1", Status: StatusCompleted, ProgressPct: 30}.Assignment()
	assert.Equal(t, StatusCompleted, asg.Status)
	assert.Equal(t, 100, asg.ProgressPct)
}

func TestStatusUpdate(t *testing.T) {
	ua := StatusUpdate(StatusCompleted)
	require.NotNil(t, ua.ProgressPct)
	assert.Equal(t, 100, *ua.ProgressPct)

	ua = StatusUpdate(StatusInProgress)
	assert.Nil(t, ua.ProgressPct)
	assert.False(t, ua.Empty())
	assert.True(t, UpdateAssignment{}.Empty())
}

func TestClassInputs(t *testing.T) {
	validate := newValidator()

	nc := NewClass{Name: " Chemistry ", Color: "#14B8A6"}
	require.NoError(t, nc.Validate(validate))
	assert.Equal(t, "Chemistry", nc.Name)

	nc = NewClass{Name: "Chemistry", Color: "teal"}
	assert.Equal(t, map[string]string{"color": "rgbhex"}, failedTags(t, nc.Validate(validate)))

	archived := true
	name := "Chem"
	uc := UpdateClass{Name: &name, IsArchived: &archived}
	require.NoError(t, uc.Validate(validate))
	assert.Equal(t,
		Class{ID: "x", Name: "Chem", Color: "#14B8A6", IsArchived: true},
		uc.Apply(Class{ID: "x", Name: "Chemistry", Color: "#14B8A6"}),
	)
}

func TestAssignment_IsPastDue(t *testing.T) {
	now := time.Now()
	past := Assignment{DueAt: now.Add(-time.Minute), Status: StatusInProgress}
	assert.True(t, past.IsPastDue(now))

	past.Status = StatusCompleted
	assert.False(t, past.IsPastDue(now))

	future := Assignment{DueAt: now.Add(time.Minute), Status: StatusNotStarted}
	assert.False(t, future.IsPastDue(now))
}
