// Package live turns store writes into a stream of full per-user snapshots.
package live

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"taskwise/internal/model"
)

// Snapshot is a complete, point-in-time copy of one user's tasks. Consumers
// must treat Tasks as read-only.
type Snapshot struct {
	UserID string
	Tasks  []model.Task
	At     time.Time
}

// Loader reads a user's full task collection.
type Loader interface {
	ListByUser(ctx context.Context, userID string) ([]model.Task, error)
}

// Hub fans snapshots out to subscribers. Publish is called after every write.
type Hub struct {
	loader Loader
	now    func() time.Time

	publishMu sync.Mutex // serializes load+deliver so snapshots never go backwards

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub(loader Loader) *Hub {
	return &Hub{
		loader: loader,
		now:    time.Now,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription delivers snapshots until closed. Only the latest undelivered
// snapshot is kept: a slow reader skips intermediate states.
type Subscription struct {
	hub    *Hub
	userID string
	ch     chan Snapshot
	mu     sync.Mutex
	closed bool
	once   sync.Once
	done   chan struct{}
}

func (s *Subscription) C() <-chan Snapshot { return s.ch }

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch: // drop the stale one
	default:
	}
	s.ch <- snap
}

// Subscribe registers a subscriber and delivers the current snapshot before
// returning. The subscription closes when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	sub := &Subscription{
		hub:    h,
		userID: userID,
		ch:     make(chan Snapshot, 1),
		done:   make(chan struct{}),
	}

	h.publishMu.Lock()
	snap, err := h.load(ctx, userID)
	if err != nil {
		h.publishMu.Unlock()
		return nil, err
	}
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()
	sub.deliver(snap)
	h.publishMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Publish reloads the user's tasks and delivers them to every subscriber of
// that user. Users without subscribers cost nothing.
func (h *Hub) Publish(ctx context.Context, userID string) error {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	subs := h.subscribers(userID)
	if len(subs) == 0 {
		return nil
	}
	snap, err := h.load(ctx, userID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		sub.deliver(Snapshot{UserID: snap.UserID, Tasks: slices.Clone(snap.Tasks), At: snap.At})
	}
	return nil
}

// Subscribers counts live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	return len(h.subscribers(userID))
}

func (h *Hub) load(ctx context.Context, userID string) (Snapshot, error) {
	tasks, err := h.loader.ListByUser(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return Snapshot{UserID: userID, Tasks: tasks, At: h.now()}, nil
}

func (h *Hub) subscribers(userID string) []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Subscription, 0, len(h.subs[userID]))
	for sub := range h.subs[userID] {
		out = append(out, sub)
	}
	return out
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sub.userID], sub)
	if len(h.subs[sub.userID]) == 0 {
		delete(h.subs, sub.userID)
	}
}
