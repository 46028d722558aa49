package raspberry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tsic/pkg/port"
)

// recorder collects the events of a subscription.
type recorder struct {
	events []port.Event
}

func (r *recorder) handle(evt port.Event) {
	r.events = append(r.events, evt)
}

func TestEmulatorDeliversMatchingEdges(t *testing.T) {
	e := NewEmulator()
	r := &recorder{}

	_, err := e.Subscribe(4, port.EdgeFalling, r.handle)
	require.NoError(t, err)

	require.NoError(t, e.Emit(4, port.High, 10))
	require.NoError(t, e.Emit(4, port.Low, 20))

	assert.Equal(t, []port.Event{{Level: port.Low, Tick: 20}}, r.events)
}

func TestEmulatorPinInUse(t *testing.T) {
	e := NewEmulator()
	_, err := e.Subscribe(4, port.EdgeBoth, func(port.Event) {})
	require.NoError(t, err)

	_, err = e.Subscribe(4, port.EdgeBoth, func(port.Event) {})
	assert.ErrorIs(t, err, port.ErrPinInUse)
}

func TestEmulatorWatchdog(t *testing.T) {
	e := NewEmulator()
	r := &recorder{}
	_, err := e.Subscribe(4, port.EdgeBoth, r.handle)
	require.NoError(t, err)

	require.NoError(t, e.Emit(4, port.High, 100))
	require.NoError(t, e.ArmWatchdog(4, time.Millisecond))

	// an edge before the deadline doesn't expire the watchdog
	require.NoError(t, e.Emit(4, port.Low, 600))
	require.Len(t, r.events, 2)

	// the next edge is past the deadline of 1600
	require.NoError(t, e.Emit(4, port.High, 5000))
	require.Len(t, r.events, 4)
	assert.Equal(t, port.Event{Level: port.Timeout, Tick: 1600}, r.events[2])
	assert.Equal(t, port.Event{Level: port.High, Tick: 5000}, r.events[3])
}

func TestEmulatorAdvance(t *testing.T) {
	e := NewEmulator()
	r := &recorder{}
	_, err := e.Subscribe(4, port.EdgeBoth, r.handle)
	require.NoError(t, err)

	require.NoError(t, e.Emit(4, port.High, 0))
	require.NoError(t, e.ArmWatchdog(4, time.Millisecond))

	require.NoError(t, e.Advance(4, 500*time.Microsecond))
	require.Len(t, r.events, 1)

	require.NoError(t, e.Advance(4, 500*time.Microsecond))
	require.Len(t, r.events, 2)
	assert.Equal(t, port.Timeout, r.events[1].Level)

	// one-shot
	require.NoError(t, e.Advance(4, time.Second))
	assert.Len(t, r.events, 2)
}

func TestEmulatorDisarm(t *testing.T) {
	e := NewEmulator()
	r := &recorder{}
	_, err := e.Subscribe(4, port.EdgeBoth, r.handle)
	require.NoError(t, err)

	require.NoError(t, e.ArmWatchdog(4, time.Millisecond))
	require.NoError(t, e.DisarmWatchdog(4))
	require.NoError(t, e.Advance(4, time.Second))

	assert.Empty(t, r.events)
}

func TestEmulatorCancel(t *testing.T) {
	e := NewEmulator()
	r := &recorder{}
	sub, err := e.Subscribe(4, port.EdgeBoth, r.handle)
	require.NoError(t, err)

	require.NoError(t, sub.Cancel())
	require.NoError(t, sub.Cancel())

	assert.ErrorIs(t, e.Emit(4, port.Low, 1), port.ErrNotSubscribed)
	assert.ErrorIs(t, e.ArmWatchdog(4, time.Millisecond), port.ErrNotSubscribed)
	assert.Empty(t, r.events)

	// the pin is free again
	_, err = e.Subscribe(4, port.EdgeBoth, r.handle)
	assert.NoError(t, err)
}

func TestEmulatorCancelFromHandler(t *testing.T) {
	e := NewEmulator()
	var n int
	var sub port.Subscription
	sub, err := e.Subscribe(4, port.EdgeBoth, func(port.Event) {
		n++
		_ = sub.Cancel()
	})
	require.NoError(t, err)

	require.NoError(t, e.Play(4, []port.Event{{Level: port.Low, Tick: 1}, {Level: port.High, Tick: 2}}))
	assert.Equal(t, 1, n)
}

func TestEmulatorClose(t *testing.T) {
	e := NewEmulator()
	_, err := e.Subscribe(4, port.EdgeBoth, func(port.Event) {})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	assert.False(t, e.Connected())

	_, err = e.Subscribe(5, port.EdgeBoth, func(port.Event) {})
	assert.ErrorIs(t, err, port.ErrDriverUnavailable)
}

func TestOpen(t *testing.T) {
	g, err := Open(DriverEmulator, "", BiasNone)
	require.NoError(t, err)
	assert.True(t, g.Connected())
	assert.NoError(t, g.Close())

	_, err = Open("pigpio", "", BiasNone)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestParseBias(t *testing.T) {
	b, err := ParseBias("pullup")
	require.NoError(t, err)
	assert.Equal(t, BiasPullUp, b)

	b, err = ParseBias("")
	require.NoError(t, err)
	assert.Equal(t, BiasNone, b)

	_, err = ParseBias("floating")
	assert.ErrorIs(t, err, ErrInvalidParam)
}
