package tsic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/womat/debug"
	"tsic/pkg/port"
	"tsic/pkg/zacwire"
)

// Channel receives temperature measurements from a TSIC sensor connected to a gpio pin.
// Measurements are pushed to the registered consumers and cached for Measurement and MeasureOnce.
type Channel struct {
	typ     Type
	zacwire *zacwire.Channel

	// mu guards all fields below.
	mu        sync.Mutex
	consumers []Consumer
	last      Measurement
	seq       uint64
	// updated is closed and replaced on every new measurement.
	updated chan struct{}
	// pinned is set by Start, a pinned channel isn't stopped by MeasureOnce.
	pinned bool
	// borrowed counts the running MeasureOnce calls that started the channel.
	borrowed int
	// session changes on Stop and on every temporary start, a MeasureOnce call
	// gives back only the session it joined.
	session uint64
}

// NewChannel initials a TSIC channel on pin. It fails with port.ErrDriverUnavailable
// if src isn't connected.
func NewChannel(src port.Source, pin int, typ Type, t zacwire.Timing) (*Channel, error) {
	zc, err := zacwire.NewChannel(src, pin, t)
	if err != nil {
		return nil, err
	}

	return &Channel{
		typ:     typ,
		zacwire: zc,
		updated: make(chan struct{}),
	}, nil
}

// Start reads temperatures and passes every measurement to the consumers.
// Consumers replace the registered ones, without consumers the registered ones are kept.
// Consumers are called from the event goroutine of the source.
// A running channel is restarted with a reset decoder.
func (c *Channel) Start(consumers ...Consumer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(consumers) > 0 {
		c.consumers = consumers
	}
	if err := c.zacwire.Start(zacwire.FrameHandlerFunc(c.packetReceived)); err != nil {
		return err
	}
	c.pinned = true
	return nil
}

// Stop stops reading temperatures. It's safe to call Stop on a stopped channel.
func (c *Channel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pinned = false
	c.borrowed = 0
	c.session++
	return c.zacwire.Stop()
}

// IsStarted reports whether temperatures are read.
func (c *Channel) IsStarted() bool {
	return c.zacwire.IsStarted()
}

// Type returns the calibration of the channel.
func (c *Channel) Type() Type {
	return c.typ
}

// Measurement returns the last received measurement or Undefined.
func (c *Channel) Measurement() Measurement {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}

// MeasureOnce waits up to timeout for the next measurement and returns it,
// or Undefined if none was received. A timeout <= 0 waits without limit.
func (c *Channel) MeasureOnce(timeout time.Duration) Measurement {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.MeasureOnceContext(ctx)
}

// MeasureOnceContext waits for the next measurement until ctx is done.
// A stopped channel is started for the call and stopped afterwards.
func (c *Channel) MeasureOnceContext(ctx context.Context) Measurement {
	c.mu.Lock()
	seq := c.seq
	borrowed := !c.pinned
	if borrowed {
		if c.borrowed == 0 {
			if err := c.zacwire.Start(zacwire.FrameHandlerFunc(c.packetReceived)); err != nil {
				c.mu.Unlock()
				debug.ErrorLog.Printf("%v: %v", c, err)
				return Undefined
			}
			c.session++
		}
		c.borrowed++
	}
	session := c.session
	c.mu.Unlock()

	if borrowed {
		defer c.giveBack(session)
	}

	for {
		c.mu.Lock()
		if c.seq != seq {
			m := c.last
			c.mu.Unlock()
			return m
		}
		updated := c.updated
		c.mu.Unlock()

		select {
		case <-updated:
		case <-ctx.Done():
			return Undefined
		}
	}
}

// giveBack stops a channel started by MeasureOnce when the last call of session returns.
func (c *Channel) giveBack(session uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if session != c.session || c.borrowed == 0 {
		// stopped meanwhile
		return
	}
	c.borrowed--
	if c.borrowed == 0 && !c.pinned {
		if err := c.zacwire.Stop(); err != nil {
			debug.ErrorLog.Printf("%v: %v", c, err)
		}
	}
}

func (c *Channel) String() string {
	return fmt.Sprintf("%v channel for gpio %d", c.typ, c.zacwire.Pin())
}

// packetReceived converts an ok frame to a measurement, caches it and passes it to the consumers.
func (c *Channel) packetReceived(f zacwire.Frame) {
	celsius, err := c.typ.Decode(f)
	if err != nil {
		debug.DebugLog.Printf("%v: drop frame %v: %v", c, f, err)
		return
	}

	c.mu.Lock()
	c.seq++
	m := Measurement{DegreeCelsius: celsius, Time: time.Now(), Seq: c.seq}
	c.last = m
	close(c.updated)
	c.updated = make(chan struct{})
	consumers := c.consumers
	c.mu.Unlock()

	debug.TraceLog.Printf("%v: %v", c, m)
	for _, consumer := range consumers {
		c.deliver(consumer, m)
	}
}

// deliver calls one consumer, a panic is logged and doesn't affect the other consumers.
func (c *Channel) deliver(consumer Consumer, m Measurement) {
	defer func() {
		if r := recover(); r != nil {
			debug.ErrorLog.Printf("%v: consumer %T panicked: %v", c, consumer, r)
		}
	}()

	consumer.OnMeasurement(m)
}
