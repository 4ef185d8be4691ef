package serialmux

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
)

// subscriberBuffer is the number of lines a slow subscriber may fall behind
// before lines are dropped for it.
const subscriberBuffer = 64

// hub fans controller lines out to subscribers. A full subscriber misses
// lines rather than stalling the port.
type hub struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closed      bool
}

// randomID returns 8 random bytes, hex encoded.
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns a channel receiving every controller line until
// Unsubscribe or Close. After Close the channel comes back already closed.
func (h *hub) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	if h.subscribers == nil {
		h.subscribers = make(map[string]chan string)
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and forgets the channel for id. Unknown ids are ignored.
func (h *hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

func (h *hub) broadcast(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

// shutdown closes every subscriber. It reports false if already shut down.
func (h *hub) shutdown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	return true
}

func (h *hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Subscribers reports how many channels are currently subscribed.
func (h *hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
