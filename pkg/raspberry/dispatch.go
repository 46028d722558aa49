package raspberry

import (
	"sync"
	"time"

	"github.com/womat/debug"
	"tsic/pkg/port"
)

// item is an event on its way to the handler.
// gen identifies the watchdog run of a timeout event.
type item struct {
	evt port.Event
	gen uint64
}

// dispatcher is the subscription of one pin. Edges and watchdog timeouts are
// queued to channel rx and passed to the handler by run(), one at a time.
type dispatcher struct {
	pin     int
	edge    port.Edge
	handler func(port.Event)

	// rx is the channel to receive line events
	rx chan item
	// quit is the channel to stop the dispatcher
	quit chan struct{}
	once sync.Once
	// release frees the line, it's called once by Cancel
	release func() error

	// mu guards the watchdog fields and lastTick.
	mu    sync.Mutex
	gen   uint64
	armed bool
	timer *time.Timer
	// lastTick is the tick of the last received edge, timeout ticks are based on it.
	lastTick uint32
}

func newDispatcher(pin int, edge port.Edge, handler func(port.Event), buffer int) *dispatcher {
	return &dispatcher{
		pin:     pin,
		edge:    edge,
		handler: handler,
		rx:      make(chan item, buffer),
		quit:    make(chan struct{}),
	}
}

// run receives events and sends them to the handler until the subscription is cancelled.
func (d *dispatcher) run() {
	for {
		select {
		case <-d.quit:
			return
		case it := <-d.rx:
			select {
			case <-d.quit:
				return
			default:
			}

			if it.evt.Level == port.Timeout && !d.expire(it.gen) {
				debug.TraceLog.Printf("gpio %d: drop stale watchdog timeout", d.pin)
				continue
			}

			d.handler(it.evt)
		}
	}
}

// push queues an edge without blocking, it's called from the driver's event handler.
// If the handler can't keep up, the edge is dropped and the decoder sees a broken packet.
func (d *dispatcher) push(evt port.Event) {
	if !d.edge.Match(evt.Level) {
		return
	}
	d.touch(evt.Tick)

	select {
	case d.rx <- item{evt: evt}:
	case <-d.quit:
	default:
		debug.ErrorLog.Printf("gpio %d: event buffer overflow, %v dropped", d.pin, evt.Level)
	}
}

// emit queues an edge and waits for space in the queue.
func (d *dispatcher) emit(evt port.Event) {
	if !d.edge.Match(evt.Level) {
		return
	}
	d.touch(evt.Tick)

	select {
	case d.rx <- item{evt: evt}:
	case <-d.quit:
	}
}

func (d *dispatcher) touch(tick uint32) {
	d.mu.Lock()
	d.lastTick = tick
	d.mu.Unlock()
}

// arm (re)starts the one-shot watchdog.
func (d *dispatcher) arm(timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopTimer()
	d.gen++
	d.armed = true

	evt := item{
		evt: port.Event{Level: port.Timeout, Tick: d.lastTick + port.Ticks(timeout)},
		gen: d.gen,
	}
	d.timer = time.AfterFunc(timeout, func() {
		select {
		case d.rx <- evt:
		case <-d.quit:
		}
	})
}

// disarm cancels the watchdog, a queued timeout of the cancelled run is dropped by run().
func (d *dispatcher) disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopTimer()
	d.gen++
	d.armed = false
}

// expire reports whether a timeout of watchdog run gen is still valid and marks the watchdog expired.
func (d *dispatcher) expire(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.armed || gen != d.gen {
		return false
	}
	d.armed = false
	return true
}

func (d *dispatcher) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Cancel stops the subscription and releases the line.
// It doesn't wait for a running handler, so it's safe to call from the handler itself.
func (d *dispatcher) Cancel() (err error) {
	d.once.Do(func() {
		d.disarm()
		close(d.quit)
		if d.release != nil {
			err = d.release()
		}
	})
	return err
}

// watcher holds the subscribed pins of a source.
type watcher struct {
	mu     sync.Mutex
	lines  map[int]*dispatcher
	closed bool
}

// watch registers d and starts its dispatching.
func (w *watcher) watch(d *dispatcher) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return port.ErrDriverUnavailable
	}
	if _, ok := w.lines[d.pin]; ok {
		return port.ErrPinInUse
	}
	if w.lines == nil {
		w.lines = map[int]*dispatcher{}
	}

	w.lines[d.pin] = d
	go d.run()
	return nil
}

// unwatch removes d, a newer subscription of the same pin is kept.
func (w *watcher) unwatch(d *dispatcher) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.lines[d.pin] == d {
		delete(w.lines, d.pin)
	}
}

func (w *watcher) line(pin int) (*dispatcher, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	d, ok := w.lines[pin]
	if !ok {
		return nil, port.ErrNotSubscribed
	}
	return d, nil
}

// ArmWatchdog delivers a Timeout event if pin has no transition within timeout.
func (w *watcher) ArmWatchdog(pin int, timeout time.Duration) error {
	d, err := w.line(pin)
	if err != nil {
		return err
	}
	d.arm(timeout)
	return nil
}

// DisarmWatchdog cancels a pending watchdog of pin.
func (w *watcher) DisarmWatchdog(pin int) error {
	d, err := w.line(pin)
	if err != nil {
		return err
	}
	d.disarm()
	return nil
}

// Connected reports whether the source isn't closed.
func (w *watcher) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return !w.closed
}

// shutdown marks the source closed and cancels all subscriptions.
func (w *watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	lines := make([]*dispatcher, 0, len(w.lines))
	for _, d := range w.lines {
		lines = append(lines, d)
	}
	w.mu.Unlock()

	for _, d := range lines {
		if err := d.Cancel(); err != nil {
			debug.ErrorLog.Printf("gpio %d: %v", d.pin, err)
		}
	}
}
