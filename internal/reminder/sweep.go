// Package reminder implements the periodic sweep that pushes a reminder for
// every task falling due inside the lookahead window.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"taskwise/internal/metrics"
	"taskwise/internal/model"
	"taskwise/internal/push"
)

const DefaultLookahead = 24 * time.Hour

const (
	skipOptedOut  = "opted_out"
	skipNoAddress = "no_address"
)

type TaskStore interface {
	ListReminderCandidates(ctx context.Context, from, to time.Time) ([]model.Task, error)
	MarkReminderSent(ctx context.Context, taskID string, dueDate time.Time) (bool, error)
}

type Preferences interface {
	NotificationsEnabled(ctx context.Context, userID string) (bool, error)
}

type Registry interface {
	ResolveAddress(ctx context.Context, userID string) (string, bool, error)
	RemoveAddress(ctx context.Context, address string) error
}

// Report summarises one run. Candidates = Sent + Skipped + Failed.
type Report struct {
	Candidates int
	Sent       int
	Skipped    int
	Failed     int
}

type Option func(*Sweep)

func WithLookahead(d time.Duration) Option { return func(s *Sweep) { s.lookahead = d } }

func WithMetrics(m metrics.SweepMetrics) Option { return func(s *Sweep) { s.metrics = m } }

func WithLogger(log *zap.Logger) Option { return func(s *Sweep) { s.log = log } }

func WithNow(now func() time.Time) Option { return func(s *Sweep) { s.now = now } }

type Sweep struct {
	tasks     TaskStore
	prefs     Preferences
	registry  Registry
	sender    push.Sender
	lookahead time.Duration
	metrics   metrics.SweepMetrics
	log       *zap.Logger
	now       func() time.Time
}

func NewSweep(tasks TaskStore, prefs Preferences, registry Registry, sender push.Sender, opts ...Option) *Sweep {
	s := &Sweep{
		tasks:     tasks,
		prefs:     prefs,
		registry:  registry,
		sender:    sender,
		lookahead: DefaultLookahead,
		metrics:   metrics.Nop{},
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes every candidate once. Only the candidate query can fail the
// run; per-task failures are logged and counted.
func (s *Sweep) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() { s.metrics.SweepDuration(time.Since(start)) }()

	now := s.now()
	candidates, err := s.tasks.ListReminderCandidates(ctx, now, now.Add(s.lookahead))
	if err != nil {
		return Report{}, fmt.Errorf("query reminder candidates: %w", err)
	}
	s.metrics.CandidatesFound(len(candidates))

	report := Report{Candidates: len(candidates)}
	for _, task := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		skip, err := s.process(ctx, task, now)
		log := s.log.With(zap.String("task_id", task.ID), zap.String("user_id", task.UserID))
		switch {
		case err != nil:
			report.Failed++
			s.metrics.ReminderFailed()
			log.Warn("reminder failed", zap.Error(err))
		case skip != "":
			report.Skipped++
			s.metrics.ReminderSkipped(skip)
			log.Debug("reminder skipped", zap.String("reason", skip))
		default:
			report.Sent++
			s.metrics.ReminderSent()
			log.Info("reminder sent")
		}
	}

	s.log.Info("reminder sweep finished",
		zap.Int("candidates", report.Candidates),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// process returns a skip reason, an error, or neither when a push went out.
func (s *Sweep) process(ctx context.Context, task model.Task, now time.Time) (string, error) {
	enabled, err := s.prefs.NotificationsEnabled(ctx, task.UserID)
	if err != nil {
		return "", fmt.Errorf("load preference: %w", err)
	}
	if !enabled {
		return skipOptedOut, nil
	}

	address, ok, err := s.registry.ResolveAddress(ctx, task.UserID)
	if err != nil {
		return "", fmt.Errorf("resolve address: %w", err)
	}
	if !ok {
		return skipNoAddress, nil
	}

	if err := s.sender.Send(ctx, address, Message(task, now)); err != nil {
		if errors.Is(err, push.ErrInvalidAddress) {
			if rmErr := s.registry.RemoveAddress(ctx, address); rmErr != nil {
				s.log.Warn("remove stale push address", zap.String("user_id", task.UserID), zap.Error(rmErr))
			} else {
				s.log.Info("removed stale push address", zap.String("user_id", task.UserID))
			}
		}
		return "", fmt.Errorf("send push: %w", err)
	}

	marked, err := s.tasks.MarkReminderSent(ctx, task.ID, task.DueDate)
	if err != nil {
		return "", fmt.Errorf("mark sent: %w", err)
	}
	if !marked {
		// Completed, deleted or rescheduled while the push was in flight.
		s.log.Debug("task changed during sweep", zap.String("task_id", task.ID))
	}
	return "", nil
}

// Message is the push payload for task at instant now.
func Message(task model.Task, now time.Time) push.Message {
	return push.Message{
		Title: "Task Reminder",
		Body:  fmt.Sprintf("Your task %q is due %s.", task.Title, humanize.RelTime(task.DueDate, now, "ago", "from now")),
		Tag:   task.ID,
	}
}
