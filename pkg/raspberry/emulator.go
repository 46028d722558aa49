package raspberry

import (
	"sync"
	"sync/atomic"
	"time"

	"tsic/pkg/port"
)

// Emulator is a software gpio source. Edges are injected by Emit or Play and
// delivered synchronously in the calling goroutine.
// Time is virtual: ticks advance only with injected events and Advance, a watchdog
// expires when an event or Advance passes its deadline.
type Emulator struct {
	mu     sync.Mutex
	lines  map[int]*emuLine
	closed bool
}

type emuLine struct {
	owner   *Emulator
	pin     int
	edge    port.Edge
	handler func(port.Event)

	cancelled atomic.Bool
	// deliver serialises the handler calls.
	deliver sync.Mutex

	// wd guards the virtual clock and the watchdog, the handler arms it while deliver is held.
	wd       sync.Mutex
	tick     uint32
	armed    bool
	deadline uint32
}

// NewEmulator returns a connected emulator without subscriptions.
func NewEmulator() *Emulator {
	return &Emulator{lines: map[int]*emuLine{}}
}

// Subscribe watches pin for the given edges.
func (e *Emulator) Subscribe(pin int, edge port.Edge, handler func(port.Event)) (port.Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, port.ErrDriverUnavailable
	}
	if _, ok := e.lines[pin]; ok {
		return nil, port.ErrPinInUse
	}

	l := &emuLine{owner: e, pin: pin, edge: edge, handler: handler}
	e.lines[pin] = l
	return l, nil
}

// ArmWatchdog delivers a Timeout event once the virtual clock passes timeout.
func (e *Emulator) ArmWatchdog(pin int, timeout time.Duration) error {
	l, err := e.line(pin)
	if err != nil {
		return err
	}

	l.wd.Lock()
	l.armed = true
	l.deadline = l.tick + port.Ticks(timeout)
	l.wd.Unlock()
	return nil
}

// DisarmWatchdog cancels the watchdog of pin.
func (e *Emulator) DisarmWatchdog(pin int) error {
	l, err := e.line(pin)
	if err != nil {
		return err
	}

	l.wd.Lock()
	l.armed = false
	l.wd.Unlock()
	return nil
}

// Connected reports whether the emulator isn't closed.
func (e *Emulator) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return !e.closed
}

// Emit injects a transition of pin at tick.
func (e *Emulator) Emit(pin int, level port.Level, tick uint32) error {
	return e.Play(pin, []port.Event{{Level: level, Tick: tick}})
}

// Play injects the events in order. An expired watchdog is delivered before the
// first event past its deadline.
func (e *Emulator) Play(pin int, events []port.Event) error {
	l, err := e.line(pin)
	if err != nil {
		return err
	}

	l.deliver.Lock()
	defer l.deliver.Unlock()

	for _, evt := range events {
		if evt.Level != port.Timeout {
			l.expire(evt.Tick)
		}
		l.setTick(evt.Tick)
		l.call(evt)
	}
	return nil
}

// Advance lets the line of pin stay silent for d.
func (e *Emulator) Advance(pin int, d time.Duration) error {
	l, err := e.line(pin)
	if err != nil {
		return err
	}

	l.deliver.Lock()
	defer l.deliver.Unlock()

	l.wd.Lock()
	now := l.tick + port.Ticks(d)
	l.wd.Unlock()

	l.expire(now)
	l.setTick(now)
	return nil
}

// Close cancels all subscriptions, the emulator isn't connected afterwards.
func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for pin, l := range e.lines {
		l.cancelled.Store(true)
		delete(e.lines, pin)
	}
	return nil
}

func (e *Emulator) line(pin int) (*emuLine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, port.ErrDriverUnavailable
	}
	l, ok := e.lines[pin]
	if !ok {
		return nil, port.ErrNotSubscribed
	}
	return l, nil
}

// Cancel stops the subscription. It's safe to call from the handler.
func (l *emuLine) Cancel() error {
	if l.cancelled.Swap(true) {
		return nil
	}

	l.owner.mu.Lock()
	if l.owner.lines[l.pin] == l {
		delete(l.owner.lines, l.pin)
	}
	l.owner.mu.Unlock()
	return nil
}

// expire delivers the timeout of an armed watchdog whose deadline is reached at now.
func (l *emuLine) expire(now uint32) {
	l.wd.Lock()
	fire := l.armed && port.TickDiff(l.tick, now) >= port.TickDiff(l.tick, l.deadline)
	deadline := l.deadline
	if fire {
		l.armed = false
		l.tick = deadline
	}
	l.wd.Unlock()

	if fire {
		l.call(port.Event{Level: port.Timeout, Tick: deadline})
	}
}

func (l *emuLine) setTick(tick uint32) {
	l.wd.Lock()
	l.tick = tick
	l.wd.Unlock()
}

func (l *emuLine) call(evt port.Event) {
	if l.cancelled.Load() || !l.edge.Match(evt.Level) {
		return
	}
	l.handler(evt)
}
