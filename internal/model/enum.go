package model

import (
	"fmt"
	"strings"
)

// Priority is drawn from a closed, ordered enumeration.
type Priority string

const (
	PriorityCritical Priority = "Critical"
	PriorityHigh     Priority = "High"
	PriorityMedium   Priority = "Medium"
	PriorityLow      Priority = "Low"
	PriorityVeryLow  Priority = "Very Low"
)

// Priorities lists every priority from highest to lowest rank.
func Priorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityVeryLow}
}

// Rank orders priorities, Critical=5 down to Very Low=1. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 5
	case PriorityHigh:
		return 4
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 2
	case PriorityVeryLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// ParsePriority accepts the canonical names case-insensitively, plus
// "very-low", "very_low" and "verylow".
func ParsePriority(raw string) (Priority, error) {
	key := normalizeEnum(raw)
	for _, p := range Priorities() {
		if normalizeEnum(string(p)) == key {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", raw)
}

// Category is drawn from a closed, unordered enumeration.
type Category string

const (
	CategoryWork     Category = "Work"
	CategoryPersonal Category = "Personal"
	CategoryHealth   Category = "Health"
	CategoryStudy    Category = "Study"
)

func Categories() []Category {
	return []Category{CategoryWork, CategoryPersonal, CategoryHealth, CategoryStudy}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryWork, CategoryPersonal, CategoryHealth, CategoryStudy:
		return true
	default:
		return false
	}
}

func ParseCategory(raw string) (Category, error) {
	key := normalizeEnum(raw)
	for _, c := range Categories() {
		if normalizeEnum(string(c)) == key {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", raw)
}

func normalizeEnum(s string) string {
	r := strings.NewReplacer(" ", "", "-", "", "_", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(s)))
}
