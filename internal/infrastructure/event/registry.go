package event

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/fiv3fingers/CryptoPayment-Integration-Backend-Infra/internal/domain/shared"
)

// subscriptions is an immutable snapshot of who listens to what
type subscriptions struct {
	byType map[string][]shared.EventHandler
	all    []shared.EventHandler
}

// HandlerRegistry maps event types to handlers. Lookups read a snapshot
// without locking; Register and Unregister swap in a rebuilt one, so a
// publish in flight keeps the handler set it started with.
type HandlerRegistry struct {
	mu      sync.Mutex
	current atomic.Pointer[subscriptions]
}

func NewHandlerRegistry() *HandlerRegistry {
	r := &HandlerRegistry{}
	r.current.Store(&subscriptions{byType: map[string][]shared.EventHandler{}})
	return r
}

// Register subscribes handler to eventTypes, or to every event when none are given
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.update(func(s *subscriptions) {
		if len(eventTypes) == 0 {
			s.all = append(s.all, handler)
			return
		}
		for _, t := range eventTypes {
			s.byType[t] = append(s.byType[t], handler)
		}
	})
}

// Unregister drops every subscription of handler
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	drop := func(h shared.EventHandler) bool { return h == handler }
	r.update(func(s *subscriptions) {
		s.all = slices.DeleteFunc(s.all, drop)
		for t, hs := range s.byType {
			if hs = slices.DeleteFunc(hs, drop); len(hs) == 0 {
				delete(s.byType, t)
			} else {
				s.byType[t] = hs
			}
		}
	})
}

// GetHandlers returns the handlers for eventType: typed subscribers first,
// then catch-all ones
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	s := r.current.Load()
	return slices.Concat(s.byType[eventType], s.all)
}

// update applies change to a deep copy of the snapshot and publishes it
func (r *HandlerRegistry) update(change func(*subscriptions)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	next := &subscriptions{
		byType: make(map[string][]shared.EventHandler, len(old.byType)),
		all:    slices.Clone(old.all),
	}
	for t, hs := range old.byType {
		next.byType[t] = slices.Clone(hs)
	}
	change(next)
	r.current.Store(next)
}
