package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"personabot/internal/models"
)

// ErrDispatcherBusy is returned by Submit when the inbound queue is full.
var ErrDispatcherBusy = errors.New("dispatcher queue is full")

// Handler processes one event to completion.
type Handler interface {
	HandleEvent(ctx context.Context, ev models.Event) (models.Response, error)
}

// Job is one inbound event awaiting processing. Result must be buffered; the
// worker never blocks on delivery.
type Job struct {
	Ctx    context.Context
	Event  models.Event
	Result chan models.Response

	stop bool
}

type userQueue struct {
	jobs     []Job
	enqueued bool // in the ready list
	running  bool // a job is on a worker right now
}

// Dispatcher fans events out to an elastic worker pool while keeping each
// user's events strictly serial: a user re-enters the ready list only after
// their in-flight job finishes, never while it runs. Users take turns through
// an LRU ready list so one chatty user cannot starve the rest.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
	wake     chan struct{} // pump wakeup when finish() readmits a user

	mu        sync.Mutex
	queues    map[int64]*userQueue
	ready     *list.List // user ids, least recently served first
	positions map[int64]*list.Element
}

// NewDispatcher builds the dispatcher and starts its pump.
func NewDispatcher(minWorkers, maxWorkers, queueSize int, handler Handler, idleTimeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		jobQueue:  make(chan Job, queueSize),
		wake:      make(chan struct{}, 1),
		queues:    make(map[int64]*userQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
	}
	d.pool = newJobChannelPool(minWorkers, maxWorkers, idleTimeout, handler, d.finish)

	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit hands one job to the dispatcher without blocking.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case d.jobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// CancelUser drops the user's queued backlog. Each dropped job gets a noop
// response so its submitter is not left waiting. An in-flight job is not
// touched here; cancellation of suspended collaborator calls is the session
// layer's business.
func (d *Dispatcher) CancelUser(userID int64) {
	d.mu.Lock()
	q := d.queues[userID]
	var dropped []Job
	if q != nil {
		dropped = q.jobs
		q.jobs = nil
		if q.enqueued {
			q.enqueued = false
			if elem, ok := d.positions[userID]; ok {
				d.ready.Remove(elem)
				delete(d.positions, userID)
			}
		}
		if !q.running {
			delete(d.queues, userID)
		}
	}
	d.mu.Unlock()

	for _, job := range dropped {
		deliver(job, models.Response{})
	}
}

func (d *Dispatcher) run() {
	for {
		if !d.dispatchOne() {
			// Nothing ready: wait for new work or for a finishing job to
			// readmit a user with backlog.
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.wake:
			}
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	userID := job.Event.UserID

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[userID]
	if q == nil {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued || q.running {
		return
	}
	q.enqueued = true
	d.positions[userID] = d.ready.PushBack(userID)
}

// dispatchOne serves the least recently served ready user. The user leaves
// the ready list until finish() readmits them, which is what keeps per-user
// processing serial.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	userID := elem.Value.(int64)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.enqueued = false
	q.running = true
	d.ready.Remove(elem)
	delete(d.positions, userID)
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	debugLog("[dispatcher] assign %s event for user %d", job.Event.Kind, userID)
	workerChan <- job
	return true
}

// finish is called by a worker when a job completes. Only now may the user's
// next job be dispatched, and the pump may be asleep on an empty queue, so
// readmission must wake it.
func (d *Dispatcher) finish(userID int64) {
	d.mu.Lock()
	q := d.queues[userID]
	if q == nil {
		d.mu.Unlock()
		return
	}
	q.running = false
	if len(q.jobs) == 0 {
		delete(d.queues, userID)
		d.mu.Unlock()
		return
	}
	q.enqueued = true
	d.positions[userID] = d.ready.PushBack(userID)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func deliver(job Job, resp models.Response) {
	if job.Result == nil {
		return
	}
	select {
	case job.Result <- resp:
	default:
	}
}
