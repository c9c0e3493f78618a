// Package analytics aggregates a user's task collection into summary stats.
package analytics

import (
	"sort"
	"time"

	"taskwise/internal/model"
	"taskwise/internal/tasklist"
)

type Bucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// DayCount is the number of completed tasks whose due date falls on Date
// (YYYY-MM-DD in the zone of now).
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Stats struct {
	Total                int        `json:"totalTasks"`
	Completed            int        `json:"completedTasks"`
	Pending              int        `json:"pendingTasks"`
	Overdue              int        `json:"overdueTasks"`
	CompletionRate       float64    `json:"completionRate"`
	PriorityDistribution []Bucket   `json:"priorityDistribution"`
	CategoryDistribution []Bucket   `json:"categoryDistribution"`
	CompletionTrend      []DayCount `json:"completionTrend"`
}

// Compute derives Stats at instant now. Overdue uses the past-due bucket of
// the list engine, so tasks due earlier today are not overdue.
func Compute(tasks []model.Task, now time.Time) Stats {
	s := Stats{Total: len(tasks)}

	byPriority := make(map[model.Priority]int)
	byCategory := make(map[model.Category]int)
	byDay := make(map[string]int)
	for _, t := range tasks {
		byPriority[t.Priority]++
		byCategory[t.Category]++
		if t.Completed {
			s.Completed++
			byDay[t.DueDate.In(now.Location()).Format(time.DateOnly)]++
		}
		if tasklist.IsPastDue(t, now) {
			s.Overdue++
		}
	}
	s.Pending = s.Total - s.Completed
	if s.Total > 0 {
		s.CompletionRate = float64(s.Completed) / float64(s.Total) * 100
	}

	for _, p := range model.Priorities() {
		s.PriorityDistribution = append(s.PriorityDistribution, Bucket{Name: string(p), Value: byPriority[p]})
	}
	for _, c := range model.Categories() {
		s.CategoryDistribution = append(s.CategoryDistribution, Bucket{Name: string(c), Value: byCategory[c]})
	}

	s.CompletionTrend = make([]DayCount, 0, len(byDay))
	for day, n := range byDay {
		s.CompletionTrend = append(s.CompletionTrend, DayCount{Date: day, Count: n})
	}
	sort.Slice(s.CompletionTrend, func(i, j int) bool { return s.CompletionTrend[i].Date < s.CompletionTrend[j].Date })
	return s
}
