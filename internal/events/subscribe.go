package events

import (
	"sync"
)

// subscription is one (callback, filter) pair with its own ordered delivery
// queue. A dedicated worker drains the queue so one slow or panicking
// subscriber never delays the others.
type subscription struct {
	stream *Stream
	cb     Callback
	filter map[EventType]struct{} // nil matches everything

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []delivery
	closed bool
}

type delivery struct {
	event Event
	done  func()
}

// Subscribe registers a callback, optionally restricted to the given event
// kinds, and returns its unsubscribe function. The same callback may be
// subscribed multiple times; each registration is revoked independently.
// Unsubscribing is idempotent and safe from within the callback itself.
func (s *Stream) Subscribe(cb Callback, filter ...EventType) func() {
	sub := &subscription{stream: s, cb: cb}
	sub.cond = sync.NewCond(&sub.mu)
	if len(filter) > 0 {
		sub.filter = make(map[EventType]struct{}, len(filter))
		for _, t := range filter {
			sub.filter[t] = struct{}{}
		}
	}

	s.subMu.Lock()
	s.subs = append(s.subs, sub)
	s.subMu.Unlock()
	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			for i, candidate := range s.subs {
				if candidate == sub {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					break
				}
			}
			s.subMu.Unlock()
			sub.close()
		})
	}
}

// Emit fans the event out to every matching subscription. Each delivery is
// an independently tracked unit of work; emission order is preserved per
// subscriber.
func (s *Stream) Emit(ev Event) {
	s.subMu.RLock()
	subs := make([]*subscription, len(s.subs))
	copy(subs, s.subs)
	s.subMu.RUnlock()

	for _, sub := range subs {
		if !sub.wants(ev.Type) {
			continue
		}
		sub.enqueue(ev, s.tracker.Begin())
	}
}

func (sub *subscription) wants(t EventType) bool {
	if sub.filter == nil {
		return true
	}
	_, ok := sub.filter[t]
	return ok
}

func (sub *subscription) enqueue(ev Event, done func()) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		done()
		return
	}
	sub.queue = append(sub.queue, delivery{event: ev, done: done})
	sub.cond.Signal()
	sub.mu.Unlock()
}

func (sub *subscription) close() {
	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		sub.cond.Signal()
	}
	sub.mu.Unlock()
}

func (sub *subscription) run() {
	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.closed {
			sub.cond.Wait()
		}
		if len(sub.queue) == 0 && sub.closed {
			sub.mu.Unlock()
			return
		}
		next := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()
		sub.deliver(next)
	}
}

// deliver isolates subscriber failures: a panic is logged and the remaining
// deliveries proceed.
func (sub *subscription) deliver(d delivery) {
	defer d.done()
	defer func() {
		if r := recover(); r != nil {
			sub.stream.logger.Error("subscriber panicked", "event", d.event.Type, "err", r)
		}
	}()
	sub.cb(d.event)
}
