package loop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

// timer is a scheduled callback. The Go timer only posts the callback; it
// always runs on the loop.
type timer struct {
	id        uint64
	interval  time.Duration
	repeating bool
	callback  func()
	t         *time.Timer
}

type timerSet struct {
	mu     sync.Mutex
	timers map[uint64]*timer
	nextID atomic.Uint64
}

func (s *timerSet) init() {
	s.timers = make(map[uint64]*timer)
}

func (s *timerSet) get(id uint64) (*timer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	return t, ok
}

func (s *timerSet) remove(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return false
	}
	t.t.Stop()
	delete(s.timers, id)
	return true
}

func (s *timerSet) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.t.Stop()
		delete(s.timers, id)
	}
}

func (s *timerSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// AfterFunc runs fn on the loop once d has elapsed and returns the timer id.
func (l *Loop) AfterFunc(d time.Duration, fn func()) uint64 {
	return l.schedule(d, false, fn)
}

// Every runs fn on the loop every d until the timer is stopped.
func (l *Loop) Every(d time.Duration, fn func()) uint64 {
	if d <= 0 {
		d = time.Millisecond
	}
	return l.schedule(d, true, fn)
}

func (l *Loop) schedule(d time.Duration, repeating bool, fn func()) uint64 {
	t := &timer{
		id:        l.timers.nextID.Add(1),
		interval:  d,
		repeating: repeating,
		callback:  fn,
	}

	// Registered before arming so a zero delay cannot fire ahead of add.
	l.timers.mu.Lock()
	l.timers.timers[t.id] = t
	t.t = time.AfterFunc(d, func() { l.fire(t.id) })
	l.timers.mu.Unlock()
	return t.id
}

// fire runs on the timer goroutine and hands the callback to the loop.
func (l *Loop) fire(id uint64) {
	posted := l.Post(func() {
		t, ok := l.timers.get(id)
		if !ok {
			// Stopped after the callback was queued.
			return
		}
		if !t.repeating {
			l.timers.remove(id)
		}
		if t.callback != nil {
			shared.SafeCall(l.logger, "timer", t.callback)
		}
		if t.repeating {
			l.timers.mu.Lock()
			if _, alive := l.timers.timers[id]; alive {
				t.t.Reset(t.interval)
			}
			l.timers.mu.Unlock()
		}
	})
	if !posted {
		l.timers.remove(id)
	}
}

// StopTimer cancels a timer. It reports false for unknown or finished timers.
func (l *Loop) StopTimer(id uint64) bool {
	return l.timers.remove(id)
}

// Timers returns the number of pending timers.
func (l *Loop) Timers() int {
	return l.timers.len()
}
