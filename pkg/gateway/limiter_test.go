package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	cl := newClientLimiter(1, 2, time.Minute, 0)
	cl.now = func() time.Time { return now }

	ok, _ := cl.Allow("a")
	assert.True(t, ok)
	ok, _ = cl.Allow("a")
	assert.True(t, ok)

	ok, retry := cl.Allow("a")
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, time.Second)

	// a refused request does not consume a token
	now = now.Add(time.Second)
	ok, _ = cl.Allow("a")
	assert.True(t, ok)
}

func TestClientLimiter_EvictsIdle(t *testing.T) {
	now := time.Unix(1000, 0)
	cl := newClientLimiter(1, 1, time.Minute, 0)
	cl.now = func() time.Time { return now }

	cl.Allow("a")
	cl.Allow("b")
	assert.Equal(t, 2, cl.Len())

	now = now.Add(2 * time.Minute)
	cl.Allow("c")
	assert.Equal(t, 1, cl.Len())
}

func TestClientLimiter_CapsTrackedClients(t *testing.T) {
	now := time.Unix(1000, 0)
	cl := newClientLimiter(1, 1, time.Hour, 3)
	cl.now = func() time.Time { return now }

	for _, key := range []string{"a", "b", "c"} {
		cl.Allow(key)
		now = now.Add(time.Millisecond)
	}
	cl.Allow("a")
	cl.Allow("d")
	assert.Equal(t, 3, cl.Len())

	// "b" was the least recently seen and got a fresh bucket back
	ok, _ := cl.Allow("b")
	assert.True(t, ok)
	assert.Equal(t, 3, cl.Len())

	// "a" kept its spent bucket
	ok, _ = cl.Allow("a")
	assert.False(t, ok)
}

func TestClientLimiter_Disabled(t *testing.T) {
	cl := newClientLimiter(0, 0, 0, 0)
	assert.Nil(t, cl)
	for range 100 {
		ok, _ := cl.Allow("a")
		assert.True(t, ok)
	}
}

func TestInFlight(t *testing.T) {
	f := newInFlight(1)
	assert.True(t, f.TryAcquire())
	assert.False(t, f.TryAcquire())
	f.Release()
	assert.True(t, f.TryAcquire())

	var unbounded *inFlight
	assert.True(t, unbounded.TryAcquire())
	unbounded.Release()
}
