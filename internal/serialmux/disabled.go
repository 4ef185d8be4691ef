package serialmux

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// DisabledSerialMux stands in for the motor controller when no hardware is
// attached (deckd --simulate). It acknowledges every command as the
// firmware would, so the rest of the stack runs unchanged.
type DisabledSerialMux struct {
	hub

	mu   sync.Mutex
	ctl  controller
	sent []string
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{}
}

// SendCommand records the command and broadcasts the simulated reply.
func (d *DisabledSerialMux) SendCommand(command string) error {
	command = strings.TrimSpace(command)
	if d.isClosed() {
		return ErrWriteFailed
	}

	d.mu.Lock()
	d.sent = append(d.sent, command)
	reply := d.ctl.reply(command)
	d.mu.Unlock()

	d.broadcast(reply)
	return nil
}

// Sent returns every command received so far.
func (d *DisabledSerialMux) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Close() error {
	d.shutdown()
	return nil
}

func (d *DisabledSerialMux) Initialise() error { return initialise(d) }

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, d)
}
