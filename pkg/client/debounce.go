package client

import (
	"context"
	"sync"
	"time"
)

// Response is the outcome of one fired request, tagged with the sequence
// number it was issued under.
type Response[T any] struct {
	Seq   uint64
	Input string
	Value T
	Err   error
}

// Debouncer fires fn once input has been quiet for the configured interval.
// At most one request is in flight: firing cancels the previous one, and a
// response whose sequence is older than the newest issued is dropped.
type Debouncer[T any] struct {
	quiet time.Duration
	fn    func(ctx context.Context, input string) (T, error)

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	cancel  context.CancelFunc
	out     chan Response[T]
	closed  bool
	dropped uint64
}

// NewDebouncer creates a debouncer calling fn.
func NewDebouncer[T any](quiet time.Duration, fn func(ctx context.Context, input string) (T, error)) *Debouncer[T] {
	return &Debouncer[T]{
		quiet: quiet,
		fn:    fn,
		out:   make(chan Response[T], 1),
	}
}

// Results delivers responses newest-wins; an unread response is discarded as
// soon as a newer request fires.
func (d *Debouncer[T]) Results() <-chan Response[T] {
	return d.out
}

// Input records the latest input and restarts the quiet interval.
func (d *Debouncer[T]) Input(input string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.quiet <= 0 {
		d.fireLocked(input)
		return
	}
	d.timer = time.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.closed {
			d.fireLocked(input)
		}
	})
}

// Seq is the sequence number of the newest issued request.
func (d *Debouncer[T]) Seq() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}

// Dropped counts stale responses discarded so far.
func (d *Debouncer[T]) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *Debouncer[T]) fireLocked(input string) {
	if d.cancel != nil {
		d.cancel()
	}
	// an unread response belongs to an older sequence now
	select {
	case <-d.out:
		d.dropped++
	default:
	}
	d.seq++
	seq := d.seq
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	go func() {
		defer cancel()
		v, err := d.fn(ctx, input)
		d.deliver(Response[T]{Seq: seq, Input: input, Value: v, Err: err})
	}()
}

func (d *Debouncer[T]) deliver(r Response[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || r.Seq != d.seq {
		d.dropped++
		return
	}
	select {
	case <-d.out:
	default:
	}
	d.out <- r
}

// Close stops the timer, cancels the in-flight request and closes Results.
func (d *Debouncer[T]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
	close(d.out)
}
