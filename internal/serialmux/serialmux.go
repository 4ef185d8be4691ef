// Package serialmux multiplexes a single motor controller serial port: many
// clients can subscribe to the lines the controller prints while commands
// are written one at a time.
package serialmux

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/banshee-data/deck.control/internal/monitoring"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// SerialMuxInterface is what the GCODE driver and the daemon need from a
// controller link, real or simulated.
type SerialMuxInterface interface {
	// Subscribe returns a channel of controller lines and its id for
	// Unsubscribe.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one command line.
	SendCommand(string) error
	// Monitor reads controller lines and broadcasts them until ctx is done
	// or the port fails.
	Monitor(context.Context) error
	// Close closes every subscriber and the port.
	Close() error
	// Initialise sends the controller start-up sequence.
	Initialise() error

	// AttachAdminRoutes adds the /debug/ controller console to mux. tsweb
	// limits it to localhost and tailnet peers.
	AttachAdminRoutes(*http.ServeMux)
}

// SerialMux owns a controller port.
type SerialMux[T SerialPorter] struct {
	hub

	port      T
	commandMu sync.Mutex
	history   *history
}

// NewSerialMux creates a SerialMux instance wrapping port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port, history: newHistory(historyLines)}
}

// SendCommand writes command, newline terminated, in a single write.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	line := strings.TrimRight(command, "\r\n") + "\n"
	s.history.add("> " + strings.TrimSpace(line))
	n, err := s.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

func (s *SerialMux[T]) Initialise() error { return initialise(s) }

// Monitor scans controller lines and broadcasts each one. The scanner runs
// on its own goroutine so cancellation is noticed while a read blocks.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scan := bufio.NewScanner(s.port)
		for scan.Scan() {
			select {
			case lines <- strings.TrimRight(scan.Text(), "\r"):
			case <-ctx.Done():
				scanErr <- ctx.Err()
				return
			}
		}
		scanErr <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if s.isClosed() {
				return nil
			}
			monitoring.SerialLines.WithLabelValues(ClassifyLine(line)).Inc()
			s.history.add("< " + line)
			s.broadcast(line)
		}
	}
}

// Close closes all subscribers and then the port.
func (s *SerialMux[T]) Close() error {
	s.shutdown()
	return s.port.Close()
}

// History returns the most recent lines exchanged with the controller,
// oldest first. Commands are prefixed "> ", replies "< ".
func (s *SerialMux[T]) History() []string {
	return s.history.lines()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}

// initialise sends initCommands in order and stops at the first failure.
func initialise(m SerialMuxInterface) error {
	for _, command := range initCommands {
		if err := m.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}
