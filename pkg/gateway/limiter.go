package gateway

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// HeaderRetryAfter is the retry-after header (seconds).
const HeaderRetryAfter = "Retry-After"

// DefaultMaxClients bounds the number of tracked client buckets.
const DefaultMaxClients = 10000

// clientLimiter holds one token bucket per client key. Buckets idle for
// longer than ttl are dropped; at maxClients the least recently seen bucket
// makes room for a new one.
type clientLimiter struct {
	mu         sync.Mutex
	clients    map[string]*clientBucket
	limit      rate.Limit
	burst      int
	ttl        time.Duration
	maxClients int
	now        func() time.Time
	lastGC     time.Time
}

type clientBucket struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// newClientLimiter returns nil when rps is not positive, which disables
// per-client limiting.
func newClientLimiter(rps float64, burst int, ttl time.Duration, maxClients int) *clientLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	return &clientLimiter{
		clients:    make(map[string]*clientBucket),
		limit:      rate.Limit(rps),
		burst:      burst,
		ttl:        ttl,
		maxClients: maxClients,
		now:        time.Now,
	}
}

// Allow takes a token for key. When none is available it reports how long
// until one will be.
func (cl *clientLimiter) Allow(key string) (bool, time.Duration) {
	if cl == nil {
		return true, 0
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.now()
	cl.evictIdle(now)

	c, ok := cl.clients[key]
	if !ok {
		if len(cl.clients) >= cl.maxClients {
			cl.evictOldest()
		}
		c = &clientBucket{bucket: rate.NewLimiter(cl.limit, cl.burst)}
		cl.clients[key] = c
	}
	c.lastSeen = now

	r := c.bucket.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// evictIdle sweeps at most once per ttl.
func (cl *clientLimiter) evictIdle(now time.Time) {
	if cl.ttl <= 0 || now.Sub(cl.lastGC) < cl.ttl {
		return
	}
	cl.lastGC = now
	for key, c := range cl.clients {
		if now.Sub(c.lastSeen) > cl.ttl {
			delete(cl.clients, key)
		}
	}
}

func (cl *clientLimiter) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, c := range cl.clients {
		if oldestKey == "" || c.lastSeen.Before(oldest) {
			oldestKey, oldest = key, c.lastSeen
		}
	}
	delete(cl.clients, oldestKey)
}

func (cl *clientLimiter) Len() int {
	if cl == nil {
		return 0
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.clients)
}

// inFlight bounds concurrent suggestion requests without queueing.
type inFlight struct {
	sem *semaphore.Weighted
}

func newInFlight(n int) *inFlight {
	if n <= 0 {
		return nil
	}
	return &inFlight{sem: semaphore.NewWeighted(int64(n))}
}

func (f *inFlight) TryAcquire() bool {
	if f == nil {
		return true
	}
	return f.sem.TryAcquire(1)
}

func (f *inFlight) Release() {
	if f != nil {
		f.sem.Release(1)
	}
}
