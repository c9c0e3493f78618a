// Package routine turns a free-text routine description into candidate
// tasks with the help of a completion service, and suggests priorities.
package routine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"taskwise/internal/model"
)

const (
	DefaultMinLength = 20
	DefaultMaxLength = 1000

	// maxDurationMinutes bounds a suggested task length to one day.
	maxDurationMinutes = 24 * 60

	// CurrentTimeLayout renders "now" for the model, e.g.
	// "Sunday, September 28, 2025, 12:10 PM IST".
	CurrentTimeLayout = "Monday, January 2, 2006, 3:04 PM MST"
)

var (
	ErrInputTooShort   = errors.New("routine description is too short")
	ErrInputTooLong    = errors.New("routine description is too long")
	ErrCompletion      = errors.New("completion service failed")
	ErrInvalidResponse = errors.New("completion response does not match the schema")
	ErrNoTasks         = errors.New("no tasks were found in the routine")
	ErrNoFutureTasks   = errors.New("every suggested task was due in the past")
)

// Candidate is one parsed task awaiting batch creation.
type Candidate struct {
	Title       string
	Description string
	Priority    model.Priority
	Category    model.Category
	Duration    time.Duration // zero when not estimated
	DueDate     time.Time
}

// Task converts the candidate into a new task owned by userID.
func (c Candidate) Task(userID string) model.Task {
	return model.Task{
		UserID:      userID,
		Title:       c.Title,
		Description: c.Description,
		Priority:    c.Priority,
		Category:    c.Category,
		DueDate:     c.DueDate,
	}
}

// Result holds the surviving candidates in the order the model returned them
// and how many were dropped for not being due strictly after now.
type Result struct {
	Tasks     []Candidate
	Discarded int
}

type Option func(*Converter)

func WithLengthBounds(lo, hi int) Option {
	return func(c *Converter) { c.minLen, c.maxLen = lo, hi }
}

// WithLocation sets the zone "now" is rendered in for the model.
func WithLocation(loc *time.Location) Option { return func(c *Converter) { c.loc = loc } }

type Converter struct {
	completer Completer
	minLen    int
	maxLen    int
	loc       *time.Location
}

func NewConverter(completer Completer, opts ...Option) *Converter {
	c := &Converter{
		completer: completer,
		minLen:    DefaultMinLength,
		maxLen:    DefaultMaxLength,
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert asks the completer for tasks and keeps only those due after now.
// The completer is never trusted to respect that rule itself.
func (c *Converter) Convert(ctx context.Context, description string, now time.Time) (Result, error) {
	text := strings.TrimSpace(description)
	switch n := utf8.RuneCountInString(text); {
	case n < c.minLen:
		return Result{}, fmt.Errorf("%w: %d characters, need at least %d", ErrInputTooShort, n, c.minLen)
	case n > c.maxLen:
		return Result{}, fmt.Errorf("%w: %d characters, at most %d", ErrInputTooLong, n, c.maxLen)
	}

	out, err := c.completer.Complete(ctx, routineSystemPrompt, routinePrompt(text, now.In(c.loc)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	candidates, err := parseRoutineResponse(out)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return Result{}, ErrNoTasks
	}

	res := Result{Tasks: make([]Candidate, 0, len(candidates))}
	for _, cand := range candidates {
		if !cand.DueDate.After(now) {
			res.Discarded++
			continue
		}
		res.Tasks = append(res.Tasks, cand)
	}
	if len(res.Tasks) == 0 {
		return res, fmt.Errorf("%w: %d discarded", ErrNoFutureTasks, res.Discarded)
	}
	return res, nil
}

const routineSystemPrompt = `You convert descriptions of daily routines into task lists. ` +
	`Reply with a single JSON object and nothing else.`

func routinePrompt(description string, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("Current date and time: ")
	sb.WriteString(now.Format(CurrentTimeLayout))
	sb.WriteString(`

Rules:
1. Every dueDate must be strictly later than the current date and time.
2. A stated time that has already passed today moves to the same time tomorrow.
3. If the routine is for "today" and it is already after 6 PM, plan it for tomorrow.
4. Tasks without a time are spread through the rest of the day in a sensible order.
5. Meetings and work are High or Critical, chores Medium, leisure Low.

Answer with exactly this JSON shape:
{"tasks":[{"title":"string","description":"string, optional","priority":"Critical|High|Medium|Low|Very Low","category":"Work|Personal|Health|Study","duration":minutes as a number, optional,"dueDate":"RFC 3339 UTC timestamp, e.g. 2025-09-28T09:00:00Z"}]}

Routine:
"`)
	sb.WriteString(description)
	sb.WriteString(`"`)
	return sb.String()
}

type rawTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Category    string   `json:"category"`
	Duration    *float64 `json:"duration"`
	DueDate     string   `json:"dueDate"`
}

type rawRoutine struct {
	Tasks *[]rawTask `json:"tasks"`
}

func parseRoutineResponse(out string) ([]Candidate, error) {
	var raw rawRoutine
	if err := decodeStrict(out, &raw); err != nil {
		return nil, err
	}
	if raw.Tasks == nil {
		return nil, fmt.Errorf("%w: missing tasks", ErrInvalidResponse)
	}

	candidates := make([]Candidate, 0, len(*raw.Tasks))
	for i, rt := range *raw.Tasks {
		cand, err := rt.candidate()
		if err != nil {
			return nil, fmt.Errorf("%w: task %d: %v", ErrInvalidResponse, i, err)
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

func (rt rawTask) candidate() (Candidate, error) {
	title := strings.TrimSpace(rt.Title)
	if title == "" {
		return Candidate{}, errors.New("empty title")
	}
	priority := model.Priority(rt.Priority)
	if !priority.Valid() {
		return Candidate{}, fmt.Errorf("priority %q", rt.Priority)
	}
	category := model.Category(rt.Category)
	if !category.Valid() {
		return Candidate{}, fmt.Errorf("category %q", rt.Category)
	}
	due, err := time.Parse(time.RFC3339, rt.DueDate)
	if err != nil {
		return Candidate{}, fmt.Errorf("dueDate %q: %v", rt.DueDate, err)
	}
	var duration time.Duration
	if rt.Duration != nil {
		if *rt.Duration < 0 {
			return Candidate{}, fmt.Errorf("negative duration %v", *rt.Duration)
		}
		if *rt.Duration > maxDurationMinutes {
			return Candidate{}, fmt.Errorf("duration %v exceeds a day", *rt.Duration)
		}
		duration = time.Duration(*rt.Duration * float64(time.Minute))
	}
	return Candidate{
		Title:       title,
		Description: strings.TrimSpace(rt.Description),
		Priority:    priority,
		Category:    category,
		Duration:    duration,
		DueDate:     due,
	}, nil
}

// decodeStrict accepts exactly one JSON object with no unknown fields. A
// surrounding markdown code fence is the only tolerated wrapping.
func decodeStrict(out string, v any) error {
	body := strings.TrimSpace(out)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after object", ErrInvalidResponse)
	}
	return nil
}
