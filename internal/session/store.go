// Package session keeps live chat and wizard sessions addressable by id.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Store is a concurrency-safe in-memory registry. Sessions idle longer than
// TTL are never returned; they are swept on Put and IDs.
type Store[T any] struct {
	TTL time.Duration
	Now func() time.Time

	mu    sync.Mutex
	items map[string]*entry[T]
}

type entry[T any] struct {
	value    T
	lastSeen time.Time
	created  time.Time
}

func NewStore[T any](ttl time.Duration) *Store[T] {
	return &Store[T]{TTL: ttl, Now: time.Now, items: make(map[string]*entry[T])}
}

func (s *Store[T]) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Put stores v under a fresh id and returns the id.
func (s *Store[T]) Put(v T) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = make(map[string]*entry[T])
	}
	now := s.now()
	s.evictLocked(now)
	s.items[id] = &entry[T]{value: v, lastSeen: now, created: now}
	return id
}

func (s *Store[T]) Get(id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, ok := s.items[id]
	if !ok || s.expired(e, now) {
		delete(s.items, id)
		var zero T
		return zero, ErrNotFound
	}
	e.lastSeen = now
	return e.value, nil
}

func (s *Store[T]) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// IDs lists live session ids, oldest first.
func (s *Store[T]) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(s.now())
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.items[ids[i]], s.items[ids[j]]
		if a.created.Equal(b.created) {
			return ids[i] < ids[j]
		}
		return a.created.Before(b.created)
	})
	return ids
}

// Len counts live sessions.
func (s *Store[T]) Len() int {
	return len(s.IDs())
}

func (s *Store[T]) expired(e *entry[T], now time.Time) bool {
	return s.TTL > 0 && now.Sub(e.lastSeen) > s.TTL
}

func (s *Store[T]) evictLocked(now time.Time) {
	for id, e := range s.items {
		if s.expired(e, now) {
			delete(s.items, id)
		}
	}
}
