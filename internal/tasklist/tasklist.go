// Package tasklist derives the ordered, filtered sequence of tasks a user sees.
// Everything here is pure: inputs are never mutated and no I/O happens.
package tasklist

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"taskwise/internal/model"
)

// Status names a status filter bucket.
type Status string

const (
	StatusAll         Status = "all"
	StatusPastDue     Status = "past-due"
	StatusDueToday    Status = "due-today"
	StatusDueThisWeek Status = "due-this-week"
	StatusUpcoming    Status = "upcoming"
	StatusCompleted   Status = "completed"
)

// Statuses lists every status filter in display order.
func Statuses() []Status {
	return []Status{StatusAll, StatusPastDue, StatusDueToday, StatusDueThisWeek, StatusUpcoming, StatusCompleted}
}

func ParseStatus(raw string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", "-")
	if key == "" {
		return StatusAll, nil
	}
	for _, s := range Statuses() {
		if string(s) == key {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status filter %q", raw)
}

// View is a requested display: three independent filters ANDed together.
// Empty Priority or Category means "all".
type View struct {
	Status   Status
	Priority model.Priority
	Category model.Category
}

// Less reports whether a orders strictly before b.
//
// Incomplete tasks come first, then higher priority rank, then earlier due
// date, then earlier creation time.
func Less(a, b model.Task) bool {
	return compare(a, b) < 0
}

func compare(a, b model.Task) int {
	if a.Completed != b.Completed {
		if a.Completed {
			return 1
		}
		return -1
	}
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		if ra > rb {
			return -1
		}
		return 1
	}
	if c := a.DueDate.Compare(b.DueDate); c != 0 {
		return c
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

// Sort returns a new slice in display order. Full ties keep input order.
func Sort(tasks []model.Task) []model.Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, compare)
	return out
}

// Filter returns the tasks matching view, preserving input order.
func Filter(tasks []model.Task, view View, now time.Time) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if Match(t, view, now) {
			out = append(out, t)
		}
	}
	return out
}

// Apply filters then sorts: the exact sequence to display.
func Apply(tasks []model.Task, view View, now time.Time) []model.Task {
	return Sort(Filter(tasks, view, now))
}

// Match reports whether t belongs to view at instant now.
func Match(t model.Task, view View, now time.Time) bool {
	return MatchStatus(t, view.Status, now) &&
		(view.Priority == "" || (t.Priority.Valid() && t.Priority == view.Priority)) &&
		(view.Category == "" || (t.Category.Valid() && t.Category == view.Category))
}

// MatchStatus evaluates one status bucket. Calendar-day comparisons use the
// location of now.
func MatchStatus(t model.Task, status Status, now time.Time) bool {
	switch status {
	case StatusAll, "":
		return true
	case StatusCompleted:
		return t.Completed
	}
	if t.Completed {
		return false
	}

	today := startOfDay(now)
	due := t.DueDate.In(now.Location())

	switch status {
	case StatusPastDue:
		return due.Before(now) && due.Before(today)
	case StatusDueToday:
		return sameDay(due, now)
	case StatusDueThisWeek:
		return !due.Before(today) && due.Before(startOfNextWeek(now))
	case StatusUpcoming:
		return due.After(now)
	default:
		return false
	}
}

// IsPastDue is the past-due bucket predicate, shared with analytics.
func IsPastDue(t model.Task, now time.Time) bool {
	return MatchStatus(t, StatusPastDue, now)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// startOfNextWeek is the next Monday 00:00; weeks start on Monday.
func startOfNextWeek(now time.Time) time.Time {
	sinceMonday := (int(now.Weekday()) + 6) % 7
	return startOfDay(now).AddDate(0, 0, 7-sinceMonday)
}
