package zacwire

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/womat/debug"
	"tsic/pkg/port"
)

// FrameHandler receives the frames of a Channel.
type FrameHandler interface {
	HandleFrame(Frame)
}

// FrameHandlerFunc is an adapter to use ordinary functions as FrameHandler.
type FrameHandlerFunc func(Frame)

// HandleFrame calls f(frame).
func (f FrameHandlerFunc) HandleFrame(frame Frame) {
	f(frame)
}

// Channel receives ZACWire packets on a gpio pin.
type Channel struct {
	src    port.Source
	pin    int
	timing Timing

	// mu guards sub and active.
	mu  sync.Mutex
	sub port.Subscription
	// active is replaced on every start and cleared on stop. A late event of a
	// cancelled subscription may still run its own decoder, but can't arm the
	// watchdog of the next one.
	active *atomic.Bool
}

// NewChannel initials a receiving channel on pin.
// It fails with port.ErrDriverUnavailable if src isn't connected.
func NewChannel(src port.Source, pin int, t Timing) (*Channel, error) {
	if src == nil || !src.Connected() {
		return nil, fmt.Errorf("zacwire input for gpio %d: %w", pin, port.ErrDriverUnavailable)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	return &Channel{src: src, pin: pin, timing: t}, nil
}

// Start listens for packets and passes every frame to h.
// h is called from the event goroutine of the source, a running channel is restarted.
func (c *Channel) Start(h FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stop(); err != nil {
		debug.ErrorLog.Printf("%v: restart: %v", c, err)
	}

	active := new(atomic.Bool)
	active.Store(true)

	// a fresh decoder per start, the decoder is owned by the event goroutine
	dec := NewDecoder(c.timing, watchdog{src: c.src, pin: c.pin, active: active})
	sub, err := c.src.Subscribe(c.pin, port.EdgeBoth, func(evt port.Event) {
		if !active.Load() {
			return
		}
		if f, ok := dec.Decode(evt); ok {
			c.deliver(h, f)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe gpio %d: %w", c.pin, err)
	}

	c.sub = sub
	c.active = active
	debug.DebugLog.Printf("%v started", c)
	return nil
}

// Stop stops listening. It's safe to call Stop on a stopped channel.
func (c *Channel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stop()
}

// IsStarted reports whether the channel is listening.
func (c *Channel) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sub != nil
}

// Pin returns the gpio pin of the channel.
func (c *Channel) Pin() int {
	return c.pin
}

func (c *Channel) String() string {
	return fmt.Sprintf("zacwire channel for gpio %d", c.pin)
}

func (c *Channel) stop() error {
	if c.sub == nil {
		return nil
	}

	c.active.Store(false)
	if err := c.src.DisarmWatchdog(c.pin); err != nil {
		debug.ErrorLog.Printf("%v: disarm watchdog: %v", c, err)
	}
	err := c.sub.Cancel()
	c.sub = nil
	c.active = nil

	debug.DebugLog.Printf("%v stopped", c)
	return err
}

// deliver calls h and recovers from a panic of h, the event goroutine must survive.
func (c *Channel) deliver(h FrameHandler, f Frame) {
	if h == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			debug.ErrorLog.Printf("%v: frame handler %T panicked: %v", c, h, r)
		}
	}()

	debug.TraceLog.Printf("%v: frame %v", c, f)
	h.HandleFrame(f)
}

// watchdog binds the decoder watchdog to the source.
type watchdog struct {
	src    port.Source
	pin    int
	active *atomic.Bool
}

func (w watchdog) Arm(d time.Duration) {
	if !w.active.Load() {
		return
	}
	if err := w.src.ArmWatchdog(w.pin, d); err != nil {
		debug.ErrorLog.Printf("arm watchdog of gpio %d: %v", w.pin, err)
	}
}

func (w watchdog) Disarm() {
	if !w.active.Load() {
		return
	}
	if err := w.src.DisarmWatchdog(w.pin); err != nil {
		debug.ErrorLog.Printf("disarm watchdog of gpio %d: %v", w.pin, err)
	}
}
