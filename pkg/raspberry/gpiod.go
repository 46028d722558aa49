//go:build linux

package raspberry

import (
	"fmt"

	"github.com/warthog618/gpiod"
	"tsic/pkg/port"
)

// Chip represents a single GPIO chip that controls a set of lines.
type Chip struct {
	watcher
	gpiodChip *gpiod.Chip
	bias      Bias
}

// OpenChip opens a GPIO character device, e.g. gpiochip0.
func OpenChip(name string, bias Bias) (*Chip, error) {
	c, err := gpiod.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", port.ErrDriverUnavailable, name, err)
	}
	return &Chip{gpiodChip: c, bias: bias}, nil
}

func openChip(name string, bias Bias) (GPIO, error) {
	c, err := OpenChip(name, bias)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Subscribe requests the line as input and watches it for edges.
// Control of the line is maintained until the subscription is cancelled.
// The kernel timestamp of an edge is the tick of the event.
func (c *Chip) Subscribe(pin int, edge port.Edge, handler func(port.Event)) (port.Subscription, error) {
	d := newDispatcher(pin, edge, handler, lineBuffer)

	// handler sends the event to the dispatcher, it must not block the gpiod event goroutine
	eh := func(evt gpiod.LineEvent) {
		level := port.Low
		if evt.Type == gpiod.LineEventRisingEdge {
			level = port.High
		}
		d.push(port.Event{Level: level, Tick: port.Ticks(evt.Timestamp)})
	}

	opts := []gpiod.LineReqOption{gpiod.AsInput, gpiod.WithEventHandler(eh)}
	switch c.bias {
	case BiasPullUp:
		opts = append(opts, gpiod.WithPullUp)
	case BiasPullDown:
		opts = append(opts, gpiod.WithPullDown)
	default:
		opts = append(opts, gpiod.WithBiasDisabled)
	}
	switch edge {
	case port.EdgeRising:
		opts = append(opts, gpiod.WithRisingEdge)
	case port.EdgeFalling:
		opts = append(opts, gpiod.WithFallingEdge)
	case port.EdgeBoth:
		opts = append(opts, gpiod.WithBothEdges)
	default:
		return nil, fmt.Errorf("%w: edge %d", ErrInvalidParam, edge)
	}

	if err := c.watch(d); err != nil {
		return nil, err
	}

	line, err := c.gpiodChip.RequestLine(pin, opts...)
	if err != nil {
		_ = d.Cancel()
		c.unwatch(d)
		return nil, fmt.Errorf("request gpio %d: %w", pin, err)
	}

	d.release = func() error {
		c.unwatch(d)
		return line.Close()
	}
	return d, nil
}

// Close releases all lines and the chip.
//
// Closing a line includes waiting for any running gpiod event handler to return,
// the handler only queues the event, so it returns immediately.
func (c *Chip) Close() error {
	c.shutdown()
	return c.gpiodChip.Close()
}
