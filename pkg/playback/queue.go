// Package playback provides the building blocks shared by speech platforms
// that render audio themselves: a serial job queue with interrupt, PCM
// helpers and the [Sink] contract for speaker output.
//
// The [Queue] is what makes a platform's CancelAll possible. Every utterance
// becomes a [Job]; jobs run strictly one after another in FIFO order, and
// [Queue.Interrupt] stops the running job and drops everything queued behind
// it.
package playback

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrClosed is returned by [Queue.Enqueue] after [Queue.Close].
var ErrClosed = errors.New("playback: queue closed")

// Job is one unit of serial playback, usually one utterance.
type Job struct {
	// ID identifies the job in logs.
	ID string

	// Run synthesizes and plays the job. It must return promptly once ctx
	// is cancelled.
	Run func(ctx context.Context) error

	// Done is called exactly once with the outcome: nil, the error returned
	// by Run, or [context.Canceled] when the job was interrupted or dropped.
	// May be nil.
	Done func(error)
}

// QueueOption configures a [Queue] during construction.
type QueueOption func(*Queue)

// WithGap sets the base silence gap inserted between consecutive jobs.
// Jitter of ±1/6 of the gap is applied automatically. The default is no gap.
func WithGap(d time.Duration) QueueOption {
	return func(q *Queue) { q.gap = d }
}

// pending is a queued job together with the context it runs under.
type pending struct {
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
}

// Queue runs [Job]s one at a time on a background goroutine.
//
// All exported methods are safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	queue   []*pending
	gap     time.Duration
	current *pending // running job, or nil
	closed  bool

	notify  chan struct{} // signalled when a job is enqueued
	done    chan struct{} // closed by Close to stop the dispatch goroutine
	stopped chan struct{} // closed when the dispatch goroutine has exited
}

// NewQueue creates a [Queue] and starts its dispatch goroutine. Call
// [Queue.Close] to stop it.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	go q.dispatch()
	return q
}

// Enqueue appends j behind everything already queued. The job's Run receives
// a context derived from ctx that is also cancelled by [Queue.Interrupt].
func (q *Queue) Enqueue(ctx context.Context, j Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	jctx, cancel := context.WithCancel(ctx)
	q.queue = append(q.queue, &pending{job: j, ctx: jctx, cancel: cancel})

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Interrupt cancels the running job and drops every queued one. Dropped jobs
// complete with [context.Canceled] before Interrupt returns; the running job
// completes as soon as its Run returns.
func (q *Queue) Interrupt() {
	q.mu.Lock()
	dropped := q.interruptLocked()
	q.mu.Unlock()

	complete(dropped, context.Canceled)
}

// Len returns the number of queued jobs, not counting the running one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Busy reports whether a job is running.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

// Close interrupts playback, completes every queued job with
// [context.Canceled] and waits for the dispatch goroutine to exit. Close is
// idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return nil
	}
	q.closed = true
	dropped := q.interruptLocked()
	q.mu.Unlock()

	complete(dropped, context.Canceled)
	close(q.done)
	<-q.stopped
	return nil
}

// interruptLocked cancels the running job and empties the queue, returning
// the removed jobs. Must be called with q.mu held.
func (q *Queue) interruptLocked() []*pending {
	if q.current != nil {
		q.current.cancel()
	}
	dropped := q.queue
	q.queue = nil
	return dropped
}

// complete reports err to every job in ps.
func complete(ps []*pending, err error) {
	for _, p := range ps {
		p.cancel()
		if p.job.Done != nil {
			p.job.Done(err)
		}
	}
}

// dispatch is the background goroutine that pulls jobs from the queue and
// runs them until [Queue.Close] is called.
func (q *Queue) dispatch() {
	defer close(q.stopped)

	var lastPlayed bool

	gapTimer := time.NewTimer(0)
	if !gapTimer.Stop() {
		<-gapTimer.C
	}
	defer gapTimer.Stop()

	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}

		for {
			p, ok := q.dequeue()
			if !ok {
				break
			}

			if lastPlayed {
				if gap := q.gapWithJitter(); gap > 0 {
					gapTimer.Reset(gap)
					select {
					case <-p.ctx.Done():
						if !gapTimer.Stop() {
							<-gapTimer.C
						}
					case <-gapTimer.C:
					}
				}
			}

			err := q.run(p)
			lastPlayed = true

			q.mu.Lock()
			if q.current == p {
				q.current = nil
			}
			q.mu.Unlock()

			complete([]*pending{p}, err)
		}
	}
}

// dequeue pops the oldest job and marks it as running.
func (q *Queue) dequeue() (*pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		return nil, false
	}
	p := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	q.current = p
	return p, true
}

// run executes p and normalises the outcome: a job whose context ended is
// reported as cancelled whatever Run returned.
func (q *Queue) run(p *pending) error {
	if p.ctx.Err() != nil {
		return context.Canceled
	}
	err := p.job.Run(p.ctx)
	if p.ctx.Err() != nil {
		return context.Canceled
	}
	return err
}

// gapWithJitter returns the configured gap with ±1/6 jitter applied.
func (q *Queue) gapWithJitter() time.Duration {
	q.mu.Lock()
	base := q.gap
	q.mu.Unlock()

	if base <= 0 {
		return 0
	}
	jitterRange := base / 6
	if jitterRange <= 0 {
		return base
	}
	return base + time.Duration(rand.Int64N(int64(2*jitterRange+1))) - jitterRange
}
