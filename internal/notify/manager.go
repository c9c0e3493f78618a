package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"taskwise/internal/live"
)

// Subscriber opens a live snapshot stream for one user.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (*live.Subscription, error)
}

type session struct {
	sched  *Scheduler
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager keeps one enabled Scheduler per opted-in user, each fed by its own
// live subscription.
type Manager struct {
	hub  Subscriber
	log  *zap.Logger
	opts []Option

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(hub Subscriber, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		hub:      hub,
		log:      log,
		opts:     append([]Option{WithLogger(log)}, opts...),
		sessions: make(map[string]*session),
	}
}

// Enable starts a session for userID. The session outlives ctx's
// cancellation; it ends on Disable or Close. Enabling twice is a no-op.
func (m *Manager) Enable(ctx context.Context, userID string, notifier Notifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[userID]; ok {
		return nil
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := m.hub.Subscribe(sessCtx, userID)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", userID, err)
	}

	sched := NewScheduler(notifier, m.opts...)
	sched.Enable()
	sess := &session{sched: sched, cancel: cancel, done: make(chan struct{})}
	m.sessions[userID] = sess

	go func() {
		defer close(sess.done)
		defer sub.Close()
		sched.Run(sessCtx, sub.C())
	}()
	m.log.Info("notification session started", zap.String("user_id", userID))
	return nil
}

// Disable stops the user's session and cancels all its timers.
func (m *Manager) Disable(userID string) {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if !ok {
		return
	}
	sess.sched.Disable()
	sess.cancel()
	<-sess.done
	m.log.Info("notification session stopped", zap.String("user_id", userID))
}

func (m *Manager) Active(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

// Scheduled lists the task ids armed for userID.
func (m *Manager) Scheduled(userID string) []string {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.sched.Scheduled()
}

// Close stops every session.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Disable(id)
	}
}
