package sim

import (
	"container/heap"
	"time"
)

// Event is one scheduled callback.
type Event struct {
	at    time.Duration
	seq   uint64
	name  string
	fire  func()
	index int
}

// eventQueue orders events by time, then by scheduling order.
type eventQueue []*Event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*Event)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Scheduler owns virtual time. Events run one at a time, in order.
type Scheduler struct {
	now   time.Duration
	seq   uint64
	queue eventQueue

	// OnFire, when set, observes each event just before it runs.
	OnFire func(at time.Duration, name string)
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Now() time.Duration {
	return s.now
}

func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// At schedules fn at absolute virtual time at. Times in the past run at now.
func (s *Scheduler) At(at time.Duration, name string, fn func()) *Event {
	if at < s.now {
		at = s.now
	}
	s.seq++
	e := &Event{at: at, seq: s.seq, name: name, fire: fn}
	heap.Push(&s.queue, e)
	return e
}

func (s *Scheduler) After(d time.Duration, name string, fn func()) *Event {
	return s.At(s.now+d, name, fn)
}

// Cancel removes a pending event. Already-fired events are ignored.
func (s *Scheduler) Cancel(e *Event) {
	if e == nil || e.index < 0 {
		return
	}
	heap.Remove(&s.queue, e.index)
}

// Step fires the earliest event and reports whether one was pending.
func (s *Scheduler) Step() bool {
	if s.queue.Len() == 0 {
		return false
	}
	e := heap.Pop(&s.queue).(*Event)
	s.now = e.at
	if s.OnFire != nil {
		s.OnFire(e.at, e.name)
	}
	e.fire()
	return true
}

// Peek returns the time of the earliest pending event.
func (s *Scheduler) Peek() (time.Duration, bool) {
	if s.queue.Len() == 0 {
		return 0, false
	}
	return s.queue[0].at, true
}

// timer is the sender's one-shot retransmission timer on virtual time.
type timer struct {
	sched   *Scheduler
	pending *Event
	onFire  func()
}

func (t *timer) Arm(d time.Duration) {
	t.Cancel()
	t.pending = t.sched.After(d, "timer", func() {
		t.pending = nil
		t.onFire()
	})
}

func (t *timer) Cancel() {
	if t.pending != nil {
		t.sched.Cancel(t.pending)
		t.pending = nil
	}
}
