//go:build linux

package raspberry

import (
	"fmt"
	"time"

	"github.com/warthog618/gpio"
	"tsic/pkg/port"
)

// Mem watches lines by the memory mapped gpio registers (/dev/gpiomem).
// The edge interrupts carry no timestamp, ticks are taken from the monotonic clock
// when the interrupt is handled.
type Mem struct {
	watcher
	bias  Bias
	epoch time.Time
}

// OpenMem opens the GPIO memory range from /dev/gpiomem.
func OpenMem(bias Bias) (*Mem, error) {
	if err := gpio.Open(); err != nil {
		return nil, fmt.Errorf("%w: open gpiomem: %v", port.ErrDriverUnavailable, err)
	}
	return &Mem{bias: bias, epoch: time.Now()}, nil
}

func openMem(bias Bias) (GPIO, error) {
	m, err := OpenMem(bias)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Subscribe sets pin as input and watches it for edges.
// There can only be one watcher on the pin at a time.
func (m *Mem) Subscribe(pin int, edge port.Edge, handler func(port.Event)) (port.Subscription, error) {
	var e gpio.Edge
	switch edge {
	case port.EdgeRising:
		e = gpio.EdgeRising
	case port.EdgeFalling:
		e = gpio.EdgeFalling
	case port.EdgeBoth:
		e = gpio.EdgeBoth
	default:
		return nil, fmt.Errorf("%w: edge %d", ErrInvalidParam, edge)
	}

	d := newDispatcher(pin, edge, handler, lineBuffer)
	if err := m.watch(d); err != nil {
		return nil, err
	}

	p := gpio.NewPin(pin)
	p.Input()
	switch m.bias {
	case BiasPullUp:
		p.SetPull(gpio.PullUp)
	case BiasPullDown:
		p.SetPull(gpio.PullDown)
	default:
		p.SetPull(gpio.PullNone)
	}

	err := p.Watch(e, func(p *gpio.Pin) {
		level := port.Low
		if p.Read() == gpio.High {
			level = port.High
		}
		d.push(port.Event{Level: level, Tick: port.Ticks(time.Since(m.epoch))})
	})
	if err != nil {
		_ = d.Cancel()
		m.unwatch(d)
		return nil, fmt.Errorf("watch gpio %d: %w", pin, err)
	}

	d.release = func() error {
		m.unwatch(d)
		p.Unwatch()
		return nil
	}
	return d, nil
}

// Close removes the interrupt handlers and unmaps GPIO memory.
func (m *Mem) Close() error {
	m.shutdown()
	return gpio.Close()
}
