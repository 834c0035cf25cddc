package seriallink

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/panel.sweep/internal/timeutil"
)

func dialTestPort(t *testing.T, port *TestablePort) (*Link, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var gotMode *serial.Mode
	d := Dialer{
		Open: func(path string, mode *serial.Mode) (Port, error) {
			gotMode = mode
			return port, nil
		},
		Clock: clock,
	}
	link, err := d.Dial("/dev/ttyACM0", PortOptions{BaudRate: 9600})
	require.NoError(t, err)
	require.NotNil(t, gotMode)
	assert.Equal(t, 9600, gotMode.BaudRate)
	require.NotNil(t, gotMode.InitialStatusBits)
	assert.False(t, gotMode.InitialStatusBits.DTR, "DTR must stay low to avoid resetting the board")
	return link, clock
}

func TestDial_SettlesAndDiscardsStaleInput(t *testing.T) {
	port := NewTestablePort()
	port.AddReadData([]byte("garbage from reset\n"))

	link, clock := dialTestPort(t, port)

	assert.Equal(t, []time.Duration{DefaultSettleDelay}, clock.Sleeps())
	assert.Equal(t, 1, port.InputResets)
	assert.Equal(t, DefaultReadTimeout, port.ReadTimeout)

	_, ok := link.ReadLine()
	assert.False(t, ok, "stale input must be discarded on open")
}

func TestDial_OpenError(t *testing.T) {
	d := Dialer{
		Open: func(string, *serial.Mode) (Port, error) {
			return nil, errors.New("permission denied")
		},
		Clock: timeutil.NewMockClock(time.Time{}),
	}
	_, err := d.Dial("/dev/ttyACM0", PortOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestLink_Send(t *testing.T) {
	port := NewTestablePort()
	link, _ := dialTestPort(t, port)

	require.NoError(t, link.Send(1, "G"))
	require.NoError(t, link.Send(0, "fwd"))
	assert.Equal(t, "1:G#0:fwd#", port.Written())

	assert.Error(t, link.Send(-2, "x"))
}

func TestLink_SendShortWrite(t *testing.T) {
	port := NewTestablePort()
	link, _ := dialTestPort(t, port)
	port.ShortWrite = true

	assert.ErrorIs(t, link.Send(1, "Clean"), ErrWriteFailed)
}

func TestLink_ReadLineAcrossPartialReads(t *testing.T) {
	port := NewTestablePort()
	link, _ := dialTestPort(t, port)

	port.AddReadData([]byte("120,34.5,610,42,"))
	_, ok := link.ReadLine()
	assert.False(t, ok, "incomplete line must not be returned")

	port.AddReadData([]byte("780,55,88,73,840\n121,34.6,611,43,781,56,88,73,847\n"))
	res, ok := link.ReadLine()
	require.True(t, ok)
	require.True(t, res.Ok())
	assert.Equal(t, "120", res.Line.WorkTime)

	res, ok = link.ReadLine()
	require.True(t, ok)
	require.True(t, res.Ok())
	assert.Equal(t, "121", res.Line.WorkTime)

	_, ok = link.ReadLine()
	assert.False(t, ok)
}

func TestLink_ReadLineMalformedAndBlank(t *testing.T) {
	port := NewTestablePort()
	link, _ := dialTestPort(t, port)

	port.AddReadData([]byte("\r\n1,2,3,4,5,6,7,8\n"))
	res, ok := link.ReadLine()
	require.True(t, ok)
	assert.True(t, res.Malformed())
	assert.Equal(t, "1,2,3,4,5,6,7,8", string(res.Raw))
}

func TestLink_ReadErrorIsNoData(t *testing.T) {
	port := NewTestablePort()
	link, _ := dialTestPort(t, port)

	port.ReadError = errors.New("device unplugged")
	_, ok := link.ReadLine()
	assert.False(t, ok)
	assert.True(t, link.lost)

	port.AddReadData([]byte("1,2,3,4,5,6,7,8,9\n"))
	res, ok := link.ReadLine()
	require.True(t, ok)
	assert.True(t, res.Ok())
	assert.False(t, link.lost)
}

func TestLink_DiscardsRunawayBuffer(t *testing.T) {
	port := NewTestablePort()
	link, _ := dialTestPort(t, port)

	port.AddReadData([]byte(strings.Repeat("x", maxPendingBytes+10)))
	for i := 0; i < 40; i++ {
		link.ReadLine()
	}
	assert.Empty(t, link.pending)
}

func TestLink_SubscribeReceivesLines(t *testing.T) {
	port := NewTestablePort()
	link, _ := dialTestPort(t, port)

	id, ch := link.Subscribe()
	port.AddReadData([]byte("1,2,3,4,5,6,7,8,9\n"))
	_, ok := link.ReadLine()
	require.True(t, ok)

	select {
	case line := <-ch:
		assert.Equal(t, "1,2,3,4,5,6,7,8,9", line)
	default:
		t.Fatal("subscriber did not receive the line")
	}

	link.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
}

func TestLink_Close(t *testing.T) {
	port := NewTestablePort()
	link, _ := dialTestPort(t, port)
	_, ch := link.Subscribe()

	require.NoError(t, link.Close())
	assert.True(t, port.Closed)
	_, open := <-ch
	assert.False(t, open)
}

func TestDisabled(t *testing.T) {
	var c Conn = NewDisabled()
	assert.False(t, c.Present())
	assert.NoError(t, c.Send(1, "G"))
	_, ok := c.ReadLine()
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}
