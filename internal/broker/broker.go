// Package broker is a small synchronous publish/subscribe hub for robot
// commands. Subscribers register against a name prefix and receive every
// event whose name starts with it.
package broker

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stage marks where in an instrumented call an event was emitted.
type Stage string

const (
	StageBefore Stage = "before"
	StageAfter  Stage = "after"
)

// Event is a single published message.
type Event struct {
	Name    string
	Stage   Stage
	Payload map[string]any
	// Result and Err are only set on StageAfter events.
	Result any
	Err    error
	Time   time.Time
}

// Handler receives events. Handlers run on the publishing goroutine.
type Handler func(Event)

type subscription struct {
	id      string
	prefix  string
	handler Handler
}

// Broker fans events out to prefix subscribers. A nil *Broker is valid and
// drops everything published to it.
type Broker struct {
	mu   sync.Mutex
	subs []subscription
	now  func() time.Time
}

// New returns an empty broker.
func New() *Broker {
	return &Broker{now: time.Now}
}

// Subscribe registers h for every event whose name starts with prefix. An
// empty prefix matches everything. The returned function removes the
// subscription and is safe to call more than once. On a nil broker nothing
// is registered and the returned function does nothing.
func (b *Broker) Subscribe(prefix string, h Handler) (string, func()) {
	id := uuid.NewString()
	if b == nil {
		return id, func() {}
	}
	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, prefix: prefix, handler: h})
	b.mu.Unlock()
	return id, func() { b.Unsubscribe(id) }
}

// Unsubscribe removes the subscription with the given id, if present.
func (b *Broker) Unsubscribe(id string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Len reports the number of active subscriptions.
func (b *Broker) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers ev to matching subscribers in subscription order. The
// subscriber list is snapshotted first, so handlers may subscribe or
// unsubscribe without deadlocking.
func (b *Broker) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = b.now()
	}

	b.mu.Lock()
	matched := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if strings.HasPrefix(ev.Name, s.prefix) {
			matched = append(matched, s.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range matched {
		h(ev)
	}
}

// Instrument runs fn between a "before" and an "after" event named name.
// The after event carries fn's result and error; both are returned as-is.
func (b *Broker) Instrument(name string, payload map[string]any, fn func() (any, error)) (any, error) {
	b.Publish(Event{Name: name, Stage: StageBefore, Payload: payload})
	res, err := fn()
	b.Publish(Event{Name: name, Stage: StageAfter, Payload: payload, Result: res, Err: err})
	return res, err
}
