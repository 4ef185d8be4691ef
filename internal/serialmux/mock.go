package serialmux

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// TestableSerialPort is an in-memory SerialPorter for tests. Writes are
// captured; Read blocks until data is queued, an error is injected or the
// port is closed.
type TestableSerialPort struct {
	mu   sync.Mutex
	cond *sync.Cond

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	// Responder, if set, is called with each complete written line and its
	// return values are queued for reading, newline terminated.
	Responder func(line string) []string

	// ReadError and WriteError fail the next Read or Write, once.
	ReadError  error
	WriteError error
	CloseError error
	Closed     bool

	partial string
}

func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// NewControllerPort returns a port that answers like the motor controller
// firmware, the same way DisabledSerialMux does.
func NewControllerPort() *TestableSerialPort {
	p := NewTestableSerialPort()
	var ctl controller
	p.Responder = func(line string) []string { return []string{ctl.reply(line)} }
	return p
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.Closed && p.ReadError == nil && p.ReadBuffer.Len() == 0 {
		p.cond.Wait()
	}
	if err := p.ReadError; err != nil {
		p.ReadError = nil
		return 0, err
	}
	if p.Closed {
		return 0, errPortClosed
	}
	return p.ReadBuffer.Read(b)
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Closed {
		return 0, errPortClosed
	}
	if err := p.WriteError; err != nil {
		p.WriteError = nil
		return 0, err
	}

	n, err := p.WriteBuffer.Write(b)
	if p.Responder == nil {
		return n, err
	}
	p.partial += string(b)
	for {
		i := strings.IndexByte(p.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(p.partial[:i])
		p.partial = p.partial[i+1:]
		for _, reply := range p.Responder(line) {
			p.ReadBuffer.WriteString(reply + "\n")
		}
	}
	p.cond.Broadcast()
	return n, err
}

// Close marks the port closed and wakes blocked readers.
func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.cond.Broadcast()
	return p.CloseError
}

// AddReadData queues controller output.
func (p *TestableSerialPort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadBuffer.Write(data)
	p.cond.Broadcast()
}

// FailNextRead makes the next Read return err.
func (p *TestableSerialPort) FailNextRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadError = err
	p.cond.Broadcast()
}

// GetWrittenData returns everything written so far.
func (p *TestableSerialPort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.WriteBuffer.Bytes()...)
}
