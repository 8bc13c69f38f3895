package flow

import (
	"sync"

	"github.com/google/uuid"

	"signet/pkg/oauth"
)

// Notification announces a change of the current user: Profile is the
// signed-in user, or nil after sign-out. Exactly one notification is emitted
// per transition between SignedOut and SignedIn; intermediate states are not
// announced.
type Notification struct {
	Profile *oauth.UserProfile
}

// hub delivers notifications to subscribers in order without ever blocking
// the flow. Each subscriber gets its own queue drained by its own goroutine,
// so a slow observer delays nobody.
type hub struct {
	mu   sync.Mutex
	subs map[string]*subscriber
}

func newHub() *hub {
	return &hub{
		subs: make(map[string]*subscriber),
	}
}

// subscribe registers a new observer and returns its id and channel. The
// channel is closed on unsubscribe or hub close.
func (h *hub) subscribe() (string, <-chan Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.NewString()
	sub := newSubscriber()
	h.subs[id] = sub
	return id, sub.out
}

// unsubscribe removes an observer; its channel is closed and any queued
// notifications are dropped.
func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}

// publish enqueues a notification for every subscriber. Never blocks.
func (h *hub) publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		sub.push(n)
	}
}

// close shuts down every subscriber.
func (h *hub) close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// subscriber is one observer's ordered queue plus its delivery goroutine.
type subscriber struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Notification
	closed bool
	stop   chan struct{}
	out    chan Notification
}

func newSubscriber() *subscriber {
	s := &subscriber{
		stop: make(chan struct{}),
		out:  make(chan Notification),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.deliver()
	return s
}

// push enqueues a notification. Never blocks the publisher.
func (s *subscriber) push(n Notification) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, n)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// close stops delivery. Safe to call more than once.
func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.cond.Signal()
	s.mu.Unlock()

	close(s.stop)
}

// deliver drains the queue onto the out channel in order.
func (s *subscriber) deliver() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		n := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- n:
		case <-s.stop:
			close(s.out)
			return
		}
	}
}
