// Package notify fires a notification at each task's due time, keeping the
// armed timers in step with the live task list.
package notify

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskwise/internal/live"
	"taskwise/internal/model"
)

// Notification is keyed by Tag; the task id is used so one task never shows
// two notifications.
type Notification struct {
	Tag   string
	Title string
	Body  string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

func WithLogger(log *zap.Logger) Option { return func(s *Scheduler) { s.log = log } }

// WithNotifyTimeout bounds each Notify call.
func WithNotifyTimeout(d time.Duration) Option { return func(s *Scheduler) { s.notifyTimeout = d } }

type entry struct {
	timer Timer
	gen   uint64
}

// Scheduler owns the registry of armed timers for one user. It starts
// disabled.
type Scheduler struct {
	notifier      Notifier
	clock         Clock
	log           *zap.Logger
	notifyTimeout time.Duration

	mu      sync.Mutex
	enabled bool
	gen     uint64
	timers  map[string]entry
	tasks   []model.Task // last snapshot, re-armed on Enable
}

func NewScheduler(notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		notifier:      notifier,
		clock:         realClock{},
		log:           zap.NewNop(),
		notifyTimeout: 30 * time.Second,
		timers:        make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enable arms timers for the last reconciled snapshot.
func (s *Scheduler) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return
	}
	s.enabled = true
	s.rearmLocked()
}

// Disable cancels every outstanding timer.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	s.cancelAllLocked()
}

func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Reconcile replaces the tracked task list: every timer is cancelled, then
// one is armed per incomplete task due strictly in the future. tasks is not
// retained or modified.
func (s *Scheduler) Reconcile(tasks []model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = slices.Clone(tasks)
	if !s.enabled {
		return
	}
	s.rearmLocked()
}

// Scheduled lists task ids with an armed timer, sorted.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run reconciles on every snapshot until the channel closes or ctx is done,
// then disables the scheduler.
func (s *Scheduler) Run(ctx context.Context, snapshots <-chan live.Snapshot) {
	defer s.Disable()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			s.Reconcile(snap.Tasks)
		}
	}
}

func (s *Scheduler) rearmLocked() {
	s.cancelAllLocked()
	now := s.clock.Now()
	for _, t := range s.tasks {
		if t.Completed || !t.DueDate.After(now) {
			continue
		}
		s.armLocked(t, t.DueDate.Sub(now))
	}
}

func (s *Scheduler) armLocked(t model.Task, d time.Duration) {
	gen := s.gen
	n := Notification{
		Tag:   t.ID,
		Title: "Task Reminder: " + t.Title,
		Body:  "Your task is due now.",
	}
	id := t.ID
	timer := s.clock.AfterFunc(d, func() { s.fire(id, gen, n) })
	s.timers[id] = entry{timer: timer, gen: gen}
}

// cancelAllLocked stops every timer and bumps the generation, so a callback
// already racing past Stop sees it is stale and does nothing.
func (s *Scheduler) cancelAllLocked() {
	for id, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, id)
	}
	s.gen++
}

func (s *Scheduler) fire(id string, gen uint64, n Notification) {
	s.mu.Lock()
	e, ok := s.timers[id]
	if !ok || e.gen != gen || gen != s.gen || !s.enabled {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn("notification failed", zap.String("task_id", id), zap.Error(err))
		return
	}
	s.log.Debug("notification fired", zap.String("task_id", id))
}
