package api

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_Expiry(t *testing.T) {
	// GIVEN: A store with a controllable clock
	s := NewInMemoryIdempotencyStore(time.Hour)
	defer s.Stop()
	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.Set("k", &CachedResponse{StatusCode: http.StatusCreated, Body: []byte("{}")})
	_, ok := s.Get("k")
	require.True(t, ok)

	// WHEN: The TTL passes
	clock = clock.Add(time.Hour + time.Second)

	// THEN: The entry is gone, and a sweep drops the rest
	_, ok = s.Get("k")
	assert.False(t, ok)
	assert.Zero(t, s.Len())

	s.Set("a", &CachedResponse{})
	clock = clock.Add(2 * time.Hour)
	s.sweep()
	assert.Zero(t, s.Len())
}

func TestCleanupInterval(t *testing.T) {
	assert.Equal(t, time.Minute, cleanupInterval(0))
	assert.Equal(t, 15*time.Minute, cleanupInterval(time.Hour))
	assert.Equal(t, time.Hour, cleanupInterval(48*time.Hour))
}

func TestIdempotency_ScopedByMethodAndPath(t *testing.T) {
	// GIVEN: A counting handler behind the middleware
	store := NewInMemoryIdempotencyStore(time.Hour)
	defer store.Stop()
	var calls atomic.Int32
	h := Idempotency(store, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(r.URL.Path))
	}))

	send := func(path, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if key != "" {
			req.Header.Set(IdempotencyHeader, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	// WHEN: The same key hits two paths, then one path again, then no key
	send("/a", "k")
	send("/b", "k")
	replay := send("/a", "k")
	send("/a", "")

	// THEN: Only the repeat on /a was served from cache
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "/a", replay.Body.String())
}
