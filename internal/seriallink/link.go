// Package seriallink talks to the cleaning robot's actuator board over a
// serial port: framed outbound commands and CSV telemetry lines inbound.
package seriallink

import (
	"bytes"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/panel.sweep/internal/timeutil"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

const (
	// DefaultSettleDelay gives the board time to boot if opening the port
	// reset it anyway.
	DefaultSettleDelay = 2 * time.Second
	// DefaultReadTimeout keeps reads from stalling the control loop.
	DefaultReadTimeout = 5 * time.Millisecond

	maxPendingBytes  = 4096
	maxReadsPerCall  = 8
	readScratchBytes = 256
)

// Conn is the link surface the control loop uses. Both *Link and *Disabled
// implement it.
type Conn interface {
	// Send writes one framed command. No acknowledgement is awaited.
	Send(channel int, value string) error
	// ReadLine returns the next complete inbound line if one is available
	// without blocking beyond the port's read timeout.
	ReadLine() (ParseResult, bool)
	// Present reports whether real hardware is attached.
	Present() bool
	Close() error
}

// Link is a Conn backed by a serial port.
type Link struct {
	port    Port
	path    string
	pending []byte
	scratch []byte
	lost    bool

	ioMu sync.Mutex

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
}

// NewLink wraps an already opened port.
func NewLink(path string, port Port) *Link {
	return &Link{
		port:        port,
		path:        path,
		scratch:     make([]byte, readScratchBytes),
		subscribers: make(map[string]chan string),
	}
}

// Dialer opens serial ports. Zero-valued fields fall back to defaults.
type Dialer struct {
	Open        func(path string, mode *serial.Mode) (Port, error)
	Clock       timeutil.Clock
	Settle      time.Duration
	ReadTimeout time.Duration
}

func openSerial(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

// Dial opens the port at path, waits for the board to settle and discards
// whatever it printed in the meantime so the loop never acts on stale bytes.
func (d Dialer) Dial(path string, opts PortOptions) (*Link, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	open := d.Open
	if open == nil {
		open = openSerial
	}
	clock := d.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	settle := d.Settle
	if settle == 0 {
		settle = DefaultSettleDelay
	}
	readTimeout := d.ReadTimeout
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}

	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	clock.Sleep(settle)

	if r, ok := port.(InputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to reset input buffer on %s: %w", path, err)
		}
	}
	if t, ok := port.(TimeoutPort); ok {
		if err := t.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
		}
	}

	opsf("opened %s at %d baud", path, mode.BaudRate)
	return NewLink(path, port), nil
}

// Connect discovers the board (unless path is set), opens it and returns a
// live link. Any failure degrades to a Disabled link: the robot keeps running
// without hardware.
func Connect(d Dialer, path string, signatures []string, opts PortOptions) Conn {
	if path == "" {
		found, err := Discover(signatures)
		if err != nil {
			opsf("actuator board not found, running without hardware: %v", err)
			return NewDisabled()
		}
		path = found
	}
	link, err := d.Dial(path, opts)
	if err != nil {
		opsf("running without hardware: %v", err)
		return NewDisabled()
	}
	return link
}

// Path returns the device path of the link.
func (l *Link) Path() string { return l.path }

// Present always reports true for a live link.
func (l *Link) Present() bool { return true }

// Send writes "<channel>:<value>#" to the port.
func (l *Link) Send(channel int, value string) error {
	frame, err := FormatFrame(channel, value)
	if err != nil {
		return err
	}
	l.ioMu.Lock()
	defer l.ioMu.Unlock()
	n, err := l.port.Write([]byte(frame))
	if err != nil {
		return err
	}
	if n != len(frame) {
		return ErrWriteFailed
	}
	tracef("sent %q", frame)
	return nil
}

// ReadLine returns the next complete inbound line. A read that yields
// nothing is "no new data", not an error. Blank lines are skipped.
func (l *Link) ReadLine() (ParseResult, bool) {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	for {
		raw, ok := l.nextLine()
		if !ok {
			if !l.fill() {
				return ParseResult{}, false
			}
			continue
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		l.broadcast(decodePermissive(raw))
		res := ParseLine(raw)
		if res.Malformed() {
			opsf("discarding inbound line %q: %v", raw, res.Err)
		}
		return res, true
	}
}

// nextLine pops one newline-terminated line from the pending buffer.
func (l *Link) nextLine() ([]byte, bool) {
	idx := bytes.IndexByte(l.pending, '\n')
	if idx < 0 {
		return nil, false
	}
	line := make([]byte, idx)
	copy(line, l.pending[:idx])
	l.pending = l.pending[idx+1:]
	return line, true
}

// fill reads whatever the port has buffered. It returns true when a complete
// line became available.
func (l *Link) fill() bool {
	for i := 0; i < maxReadsPerCall; i++ {
		n, err := l.port.Read(l.scratch)
		if n > 0 {
			if l.lost {
				opsf("serial link %s recovered", l.path)
				l.lost = false
			}
			l.pending = append(l.pending, l.scratch[:n]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !l.lost {
				opsf("serial read on %s failed, treating hardware as absent: %v", l.path, err)
				l.lost = true
			}
			break
		}
		if n == 0 || bytes.IndexByte(l.pending, '\n') >= 0 {
			break
		}
	}
	if bytes.IndexByte(l.pending, '\n') >= 0 {
		return true
	}
	if len(l.pending) > maxPendingBytes {
		opsf("discarding %d unterminated bytes from %s", len(l.pending), l.path)
		l.pending = l.pending[:0]
	}
	return false
}

// Close closes all tail subscriptions and the port.
func (l *Link) Close() error {
	l.subscriberMu.Lock()
	for id, ch := range l.subscribers {
		close(ch)
		delete(l.subscribers, id)
	}
	l.subscriberMu.Unlock()

	l.ioMu.Lock()
	defer l.ioMu.Unlock()
	return l.port.Close()
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns a channel that receives a copy of every inbound line.
// Slow subscribers miss lines rather than block the reader.
func (l *Link) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	l.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber.
func (l *Link) Unsubscribe(id string) {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	if ch, ok := l.subscribers[id]; ok {
		close(ch)
		delete(l.subscribers, id)
	}
}

func (l *Link) broadcast(line string) {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	for _, ch := range l.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}
