package serialmux

import "sync"

// historyLines is how much controller traffic the console keeps.
const historyLines = 200

// history is a fixed-size ring of recent controller traffic.
type history struct {
	mu   sync.Mutex
	buf  []string
	next int
	full bool
}

func newHistory(n int) *history {
	return &history{buf: make([]string, n)}
}

func (h *history) add(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = line
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

func (h *history) lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]string(nil), h.buf[:h.next]...)
	}
	out := make([]string, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}
