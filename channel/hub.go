// Package channel delivers verification events to per-thread subscribers.
// The hub is the in-process end of the provider's push channel: webhook
// ingress publishes into it, the SSE relay and the verification flow
// subscribe from it.
package channel

import (
	"context"
	"log"
	"sync"

	"github.com/formbt/ndi-gateway/core"
	"github.com/formbt/ndi-gateway/ports"
)

// subscriptionBuffer bounds how far a slow subscriber may lag before
// events are dropped for it.
const subscriptionBuffer = 16

// Hub routes verification events to subscriptions by thread ID.
type Hub struct {
	mu     sync.Mutex
	subs   map[string][]*Subscription
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string][]*Subscription)}
}

// Subscribe opens a subscription for one thread ID. Subscriptions on the
// same thread have independent lifecycles; closing one never affects
// another. The caller must Close the subscription on teardown.
func (h *Hub) Subscribe(threadID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, core.ErrChannelClosed
	}

	sub := &Subscription{
		threadID: threadID,
		hub:      h,
		ch:       make(chan core.ChannelEvent, subscriptionBuffer),
	}
	h.subs[threadID] = append(h.subs[threadID], sub)
	return sub, nil
}

// Publish delivers an event to every live subscription on its thread ID.
func (h *Hub) Publish(ev core.ChannelEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for _, sub := range h.subs[ev.ThreadID] {
		sub.deliver(ev)
	}
}

// Close tears the hub down. Every live subscription receives a terminal
// error event and is closed. Subsequent Subscribe calls fail.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*Subscription
	for _, subs := range h.subs {
		all = append(all, subs...)
	}
	h.subs = make(map[string][]*Subscription)
	h.mu.Unlock()

	for _, sub := range all {
		sub.deliver(core.ChannelEvent{
			Kind:     core.EventError,
			ThreadID: sub.threadID,
			Err:      core.ErrChannelClosed,
		})
		sub.Close()
	}
}

// Run pumps events from the shared bus into this hub until the context is
// cancelled or the bus closes. Intended to run as one goroutine per instance.
func (h *Hub) Run(ctx context.Context, bus ports.EventBus) error {
	events, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				h.Close()
				return core.ErrChannelClosed
			}
			h.Publish(ev)
		}
	}
}

// remove detaches a subscription so no further events are routed to it.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[sub.threadID]
	for i, s := range subs {
		if s == sub {
			h.subs[sub.threadID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subs[sub.threadID]) == 0 {
		delete(h.subs, sub.threadID)
	}
}

// Subscription is one consumer's handle on a thread's event stream.
type Subscription struct {
	threadID string
	hub      *Hub
	ch       chan core.ChannelEvent

	mu     sync.Mutex
	closed bool
}

// Events returns the receive side of the subscription. The channel is
// closed by Close.
func (s *Subscription) Events() <-chan core.ChannelEvent {
	return s.ch
}

// ThreadID returns the correlation token this subscription is scoped to.
func (s *Subscription) ThreadID() string {
	return s.threadID
}

// Close stops delivery. It is idempotent and synchronous: once Close
// returns, no further event reaches this subscription.
func (s *Subscription) Close() {
	s.hub.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// deliver hands an event to the subscriber without blocking the hub. A
// subscriber that stops draining loses events rather than stalling every
// other subscription on the thread.
func (s *Subscription) deliver(ev core.ChannelEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		log.Printf("channel: dropping %s event for slow subscriber on thread %s", ev.Kind, s.threadID)
	}
}
