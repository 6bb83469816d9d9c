// Package events provides a small synchronous publish/subscribe dispatcher.
// Components such as servers and sessions embed a Dispatcher and notify
// registered subscribers with a handle to themselves; subscribers run on the
// notifying goroutine, in subscription order.
package events

import (
	"reflect"
	"sync"
)

// Subscriber receives synchronous notifications from a Dispatcher.
// Implementations must not block for long inside Notify: the callback runs on
// the source's own goroutine and stalls that source until it returns.
type Subscriber[T any] interface {
	// Notify is called once per event with a handle to the source object.
	//
	// Parameters:
	//   - source: The object that triggered the notification
	Notify(source T)
}

// Func adapts a plain function to the Subscriber interface.
type Func[T any] func(source T)

// Notify implements Subscriber.
func (f Func[T]) Notify(source T) {
	f(source)
}

// Dispatcher keeps an ordered list of subscribers and notifies them
// synchronously. The zero value is ready to use. Subscribers must be
// removed explicitly with Unsubscribe; the dispatcher holds them by strong
// reference and never drops entries on its own. Safe for concurrent use.
type Dispatcher[T any] struct {
	mu   sync.RWMutex
	subs []Subscriber[T]
}

// Subscribe registers a subscriber. The same subscriber may be registered
// more than once; it is then notified once per registration.
//
// Parameters:
//   - sub: The subscriber to register; nil subscribers are ignored
func (d *Dispatcher[T]) Subscribe(sub Subscriber[T]) {
	if sub == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, sub)
}

// Unsubscribe removes the first registration of the given subscriber.
// It is a no-op if the subscriber is not registered.
//
// Parameters:
//   - sub: The subscriber to remove
func (d *Dispatcher[T]) Unsubscribe(sub Subscriber[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, s := range d.subs {
		if sameSubscriber(s, sub) {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// sameSubscriber compares two subscribers without panicking on
// non-comparable dynamic types. Func subscribers match by code pointer, so
// two Func values wrapping the same top-level function compare equal while
// distinct closures do not.
func sameSubscriber[T any](a, b Subscriber[T]) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}

	if ra.Kind() == reflect.Func {
		return ra.Pointer() == rb.Pointer()
	}

	if !ra.Type().Comparable() {
		return false
	}

	return a == b
}

// UnsubscribeAll removes every registered subscriber.
func (d *Dispatcher[T]) UnsubscribeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = nil
}

// Notify invokes each subscriber's Notify in subscription order, on the
// calling goroutine. Subscribers registered during a notification are not
// called until the next Notify.
//
// Parameters:
//   - source: The object handed to every subscriber
func (d *Dispatcher[T]) Notify(source T) {
	d.mu.RLock()
	subs := make([]Subscriber[T], len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, s := range subs {
		s.Notify(source)
	}
}

// Len returns the number of registered subscribers.
//
// Returns:
//   - The current subscriber count
func (d *Dispatcher[T]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}
