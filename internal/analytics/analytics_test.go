package analytics

import (
	"testing"
	"time"

	"taskwise/internal/model"
)

var now = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

func TestComputeEmpty(t *testing.T) {
	s := Compute(nil, now)
	if s.Total != 0 || s.CompletionRate != 0 {
		t.Fatalf("stats = %+v", s)
	}
	if len(s.PriorityDistribution) != 5 || len(s.CategoryDistribution) != 4 {
		t.Fatal("distributions must list every enum value")
	}
	if s.CompletionTrend == nil || len(s.CompletionTrend) != 0 {
		t.Fatal("trend must be an empty, non-nil slice")
	}
}

func TestCompute(t *testing.T) {
	tasks := []model.Task{
		{Priority: model.PriorityCritical, Category: model.CategoryWork, DueDate: now.AddDate(0, 0, -2)},
		{Priority: model.PriorityHigh, Category: model.CategoryWork, DueDate: now.Add(-2 * time.Hour)},
		{Priority: model.PriorityHigh, Category: model.CategoryHealth, DueDate: now.AddDate(0, 0, -3), Completed: true},
		{Priority: model.PriorityLow, Category: model.CategoryStudy, DueDate: now.AddDate(0, 0, -3), Completed: true},
		{Priority: model.PriorityVeryLow, Category: model.CategoryPersonal, DueDate: now.AddDate(0, 0, 1), Completed: true},
	}
	s := Compute(tasks, now)

	if s.Total != 5 || s.Completed != 3 || s.Pending != 2 || s.Overdue != 1 {
		t.Fatalf("counts = %+v", s)
	}
	if s.CompletionRate != 60 {
		t.Fatalf("rate = %v", s.CompletionRate)
	}

	wantPriority := []Bucket{{"Critical", 1}, {"High", 2}, {"Medium", 0}, {"Low", 1}, {"Very Low", 1}}
	for i, b := range wantPriority {
		if s.PriorityDistribution[i] != b {
			t.Errorf("priority[%d] = %+v, want %+v", i, s.PriorityDistribution[i], b)
		}
	}
	if s.CategoryDistribution[0] != (Bucket{"Work", 2}) {
		t.Errorf("category[0] = %+v", s.CategoryDistribution[0])
	}

	wantTrend := []DayCount{{"2025-10-12", 2}, {"2025-10-16", 1}}
	if len(s.CompletionTrend) != len(wantTrend) {
		t.Fatalf("trend = %+v", s.CompletionTrend)
	}
	for i, d := range wantTrend {
		if s.CompletionTrend[i] != d {
			t.Errorf("trend[%d] = %+v, want %+v", i, s.CompletionTrend[i], d)
		}
	}
}
