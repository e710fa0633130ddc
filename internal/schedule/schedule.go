package schedule

import "time"

type ID int

// Func receives the time the event was due, which can be earlier than the
// time RunDue was called with.
type Func func(due time.Time)

type event struct {
	id       ID
	owner    string
	due      time.Time
	interval time.Duration
	seq      uint64
	fn       Func
}

// Scheduler is a list of future events keyed by wall-clock time. It is not
// safe for concurrent use; the owner drains it from a single goroutine.
type Scheduler struct {
	events map[ID]*event
	nextID ID
	seq    uint64
}

func New() *Scheduler {
	return &Scheduler{events: make(map[ID]*event)}
}

// At schedules fn to run once at due.
func (s *Scheduler) At(due time.Time, owner string, fn Func) ID {
	return s.add(due, 0, owner, fn)
}

// Every schedules fn at first and then every interval until cancelled.
// A non-positive interval makes it a one-shot event.
func (s *Scheduler) Every(first time.Time, interval time.Duration, owner string, fn Func) ID {
	if interval < 0 {
		interval = 0
	}
	return s.add(first, interval, owner, fn)
}

func (s *Scheduler) add(due time.Time, interval time.Duration, owner string, fn Func) ID {
	s.nextID++
	s.seq++
	s.events[s.nextID] = &event{
		id:       s.nextID,
		owner:    owner,
		due:      due,
		interval: interval,
		seq:      s.seq,
		fn:       fn,
	}
	return s.nextID
}

func (s *Scheduler) Cancel(id ID) bool {
	if _, ok := s.events[id]; !ok {
		return false
	}
	delete(s.events, id)
	return true
}

// CancelOwner removes every event scheduled for owner and returns how many
// were pending.
func (s *Scheduler) CancelOwner(owner string) int {
	removed := 0
	for id, e := range s.events {
		if e.owner == owner {
			delete(s.events, id)
			removed++
		}
	}
	return removed
}

func (s *Scheduler) CancelAll() {
	clear(s.events)
}

func (s *Scheduler) Pending() int {
	return len(s.events)
}

func (s *Scheduler) PendingFor(owner string) int {
	count := 0
	for _, e := range s.events {
		if e.owner == owner {
			count++
		}
	}
	return count
}

// RunDue runs every event due at or before now in (due, insertion) order.
// Callbacks may schedule or cancel events; newly scheduled events that are
// already due run in the same call.
func (s *Scheduler) RunDue(now time.Time) int {
	ran := 0
	for {
		next := s.earliestDue(now)
		if next == nil {
			return ran
		}

		due := next.due
		if next.interval > 0 {
			s.seq++
			next.due = next.due.Add(next.interval)
			next.seq = s.seq
		} else {
			delete(s.events, next.id)
		}

		next.fn(due)
		ran++
	}
}

func (s *Scheduler) earliestDue(now time.Time) *event {
	var best *event
	for _, e := range s.events {
		if e.due.After(now) {
			continue
		}
		if best == nil || e.due.Before(best.due) || (e.due.Equal(best.due) && e.seq < best.seq) {
			best = e
		}
	}
	return best
}
