// Package memory provides an in-process store implementing the plans,
// subscriptions and notifications repositories.
//
// Units of work are serialized: Begin waits for the previous unit to finish,
// works on a private copy of the data and Commit publishes the copy. Reads
// outside a unit of work see the last committed state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/domain"
	"github.com/google/uuid"
)

type state struct {
	plans         map[string]domain.Plan
	subscriptions map[string]*domain.Subscription
	notifications []domain.SubscriptionNotification
}

func newState() *state {
	return &state{
		plans:         make(map[string]domain.Plan),
		subscriptions: make(map[string]*domain.Subscription),
	}
}

func (s *state) clone() *state {
	c := &state{
		plans:         make(map[string]domain.Plan, len(s.plans)),
		subscriptions: make(map[string]*domain.Subscription, len(s.subscriptions)),
		notifications: append([]domain.SubscriptionNotification(nil), s.notifications...),
	}
	for id, p := range s.plans {
		c.plans[id] = p
	}
	for id, sub := range s.subscriptions {
		c.subscriptions[id] = sub.Clone()
	}
	return c
}

// Store is the in-memory store.
type Store struct {
	mu sync.RWMutex
	st *state

	// writer is a one-slot semaphore held by the active writer.
	writer chan struct{}
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		st:     newState(),
		writer: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// acquire waits for the writer slot or ctx.
func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.writer <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for store: %w", ctx.Err())
	}
}

func (s *Store) release() {
	<-s.writer
}

// write runs fn against a private copy and publishes it when fn succeeds.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(work); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

func newID() string {
	return uuid.NewString()
}

func sortSubscriptions(subs []domain.Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].EndDate.Equal(subs[j].EndDate) {
			return subs[i].EndDate.Before(subs[j].EndDate)
		}
		return subs[i].ID < subs[j].ID
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
