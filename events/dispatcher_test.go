package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSubscriber struct {
	mu    sync.Mutex
	seen  []string
	label string
}

func (r *recordingSubscriber) Notify(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, source)
}

func TestSubscribe(t *testing.T) {
	t.Run("registers subscribers in order", func(t *testing.T) {
		var d Dispatcher[string]
		var order []string

		first := &recordingSubscriber{label: "first"}
		d.Subscribe(first)
		d.Subscribe(Func[string](func(s string) {
			order = append(order, "second:"+s)
		}))

		assert.Equal(t, 2, d.Len())

		d.Notify("hello")

		assert.Equal(t, []string{"hello"}, first.seen)
		assert.Equal(t, []string{"second:hello"}, order)
	})

	t.Run("ignores nil subscribers", func(t *testing.T) {
		var d Dispatcher[string]

		d.Subscribe(nil)

		assert.Equal(t, 0, d.Len())
	})

	t.Run("duplicate registrations are notified once each", func(t *testing.T) {
		var d Dispatcher[string]
		sub := &recordingSubscriber{}

		d.Subscribe(sub)
		d.Subscribe(sub)
		d.Notify("x")

		assert.Equal(t, []string{"x", "x"}, sub.seen)
	})
}

func TestUnsubscribe(t *testing.T) {
	t.Run("removes a pointer subscriber", func(t *testing.T) {
		var d Dispatcher[string]
		sub := &recordingSubscriber{}

		d.Subscribe(sub)
		d.Unsubscribe(sub)
		d.Notify("gone")

		assert.Empty(t, sub.seen)
		assert.Equal(t, 0, d.Len())
	})

	t.Run("removes only the first duplicate registration", func(t *testing.T) {
		var d Dispatcher[string]
		sub := &recordingSubscriber{}

		d.Subscribe(sub)
		d.Subscribe(sub)
		d.Unsubscribe(sub)
		d.Notify("once")

		assert.Equal(t, []string{"once"}, sub.seen)
	})

	t.Run("is a no-op for unknown subscribers", func(t *testing.T) {
		var d Dispatcher[string]
		sub := &recordingSubscriber{}

		d.Subscribe(sub)
		d.Unsubscribe(&recordingSubscriber{})

		assert.Equal(t, 1, d.Len())
	})

	t.Run("does not panic for func subscribers", func(t *testing.T) {
		var d Dispatcher[string]
		f := Func[string](func(string) {})

		d.Subscribe(f)
		assert.NotPanics(t, func() {
			d.Unsubscribe(f)
		})
		assert.Equal(t, 0, d.Len())
	})
}

func TestNotify(t *testing.T) {
	t.Run("runs subscribers synchronously in subscription order", func(t *testing.T) {
		var d Dispatcher[int]
		var order []int

		d.Subscribe(Func[int](func(int) { order = append(order, 1) }))
		d.Subscribe(Func[int](func(int) { order = append(order, 2) }))
		d.Subscribe(Func[int](func(int) { order = append(order, 3) }))

		d.Notify(0)

		assert.Equal(t, []int{1, 2, 3}, order)
	})

	t.Run("notifies nobody after UnsubscribeAll", func(t *testing.T) {
		var d Dispatcher[int]
		called := false

		d.Subscribe(Func[int](func(int) { called = true }))
		d.UnsubscribeAll()
		d.Notify(1)

		assert.False(t, called)
	})
}
