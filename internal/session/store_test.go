package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	s := NewStore[string](0)
	id := s.Put("a")
	v, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	s.Delete(id)
	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIdleSessionsExpire(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore[int](time.Minute)
	s.Now = func() time.Time { return now }

	old := s.Put(1)
	now = now.Add(30 * time.Second)
	kept := s.Put(2)
	_, err := s.Get(old) // touch keeps it alive
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	s.Put(3)
	_, err = s.Get(old)
	assert.NoError(t, err)
	_, err = s.Get(kept)
	assert.NoError(t, err)

	now = now.Add(2 * time.Minute)
	s.Put(4)
	_, err = s.Get(old)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, s.IDs(), 1)
}

func TestGetDropsIdleSessionWithoutPut(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore[string](time.Minute)
	s.Now = func() time.Time { return now }

	id := s.Put("chat")
	now = now.Add(time.Hour)

	_, err := s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, s.IDs())
	assert.Zero(t, s.Len())
}

func TestIDsSkipsIdleSessions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore[int](time.Minute)
	s.Now = func() time.Time { return now }

	first := s.Put(1)
	now = now.Add(50 * time.Second)
	second := s.Put(2)
	assert.Equal(t, []string{first, second}, s.IDs())

	now = now.Add(30 * time.Second)
	assert.Equal(t, []string{second}, s.IDs())
	assert.Equal(t, 1, s.Len())
}
