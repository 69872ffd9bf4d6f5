package tracker

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/eagleeye/core"
)

type SmartFilter string

// Smart filters
const (
	SmartToday     SmartFilter = "today"
	SmartOverdue   SmartFilter = "overdue"
	SmartImportant SmartFilter = "important"
	SmartUrgent    SmartFilter = "urgent"
	SmartDoNow     SmartFilter = "doNow"     // important, urgent and due by the end of today
	SmartQuickWins SmartFilter = "quickWins" // 30 minutes or less and not completed
)

var SmartFilters = []SmartFilter{SmartToday, SmartOverdue, SmartImportant, SmartUrgent, SmartDoNow, SmartQuickWins}

const quickWinMaxMin = 30

// Filter narrows the assignment list. Zero fields are not applied; set fields are ANDed.
type Filter struct {
	Search  string      `query:"search" json:"search"`
	ClassID string      `query:"class" json:"class"`
	Status  Status      `query:"status" json:"status" validate:"omitempty,oneof=not_started in_progress almost_done completed overdue"`
	Smart   SmartFilter `query:"smart" json:"smart" validate:"omitempty,oneof=today overdue important urgent doNow quickWins"`
}

func (f *Filter) Clean() {
	f.Search = core.CleanString(f.Search)
	f.ClassID = core.CleanString(f.ClassID)
}

func (f *Filter) Validate(validate *validator.Validate) error {
	f.Clean()
	return validate.Struct(f)
}

// Apply returns the matching assignments sorted by PriorityScore (highest first), then by due date.
// Calendar days are those of now's location. The input is left untouched.
func (f Filter) Apply(assignments []Assignment, now time.Time) []Assignment {
	search := strings.ToLower(f.Search)
	match := smartPredicate(f.Smart, now)

	filtered := make([]Assignment, 0, len(assignments))
	for _, asg := range assignments {
		if search != "" &&
			!strings.Contains(strings.ToLower(asg.Title), search) &&
			!strings.Contains(strings.ToLower(asg.Notes), search) {
			continue
		}
		if f.ClassID != "" && asg.ClassID != f.ClassID {
			continue
		}
		if f.Status != "" && asg.Status != f.Status {
			continue
		}
		if match != nil && !match(asg) {
			continue
		}
		filtered = append(filtered, asg)
	}
	SortByPriority(filtered)
	return filtered
}

// PriorityScore weighs importance (2), urgency (1) and being overdue (2).
func PriorityScore(a Assignment) int {
	var score int
	if a.IsImportant {
		score += 2
	}
	if a.IsUrgent {
		score++
	}
	if a.Status == StatusOverdue {
		score += 2
	}
	return score
}

// SortByPriority sorts in place by descending PriorityScore, then ascending due date.
func SortByPriority(assignments []Assignment) {
	sort.SliceStable(assignments, func(i, j int) bool {
		si, sj := PriorityScore(assignments[i]), PriorityScore(assignments[j])
		if si != sj {
			return si > sj
		}
		return assignments[i].DueAt.Before(assignments[j].DueAt)
	})
}

// SmartCounts returns how many assignments each smart filter would keep.
func SmartCounts(assignments []Assignment, now time.Time) map[SmartFilter]int {
	counts := make(map[SmartFilter]int, len(SmartFilters))
	for _, sf := range SmartFilters {
		match := smartPredicate(sf, now)
		counts[sf] = 0
		for _, asg := range assignments {
			if match(asg) {
				counts[sf]++
			}
		}
	}
	return counts
}

func smartPredicate(sf SmartFilter, now time.Time) func(Assignment) bool {
	loc := now.Location()
	y, m, d := now.Date()
	startOfTomorrow := time.Date(y, m, d+1, 0, 0, 0, 0, loc)

	switch sf {
	case SmartToday:
		return func(a Assignment) bool {
			ay, am, ad := a.DueAt.In(loc).Date()
			return ay == y && am == m && ad == d
		}
	case SmartOverdue:
		return func(a Assignment) bool { return a.Status == StatusOverdue }
	case SmartImportant:
		return func(a Assignment) bool { return a.IsImportant }
	case SmartUrgent:
		return func(a Assignment) bool { return a.IsUrgent }
	case SmartDoNow:
		return func(a Assignment) bool {
			return a.IsImportant && a.IsUrgent && !a.DueAt.After(startOfTomorrow)
		}
	case SmartQuickWins:
		return func(a Assignment) bool {
			return a.EstimatedDurationMin <= quickWinMaxMin && a.Status != StatusCompleted
		}
	}
	return nil
}
