// Package port holds the definition of a physical port and of the edge event source
// that reports its level transitions.
package port

import (
	"errors"
	"time"
)

var (
	// ErrDriverUnavailable is returned when the gpio driver can't be opened or was closed.
	ErrDriverUnavailable = errors.New("gpio driver unavailable")
	// ErrPinInUse is returned when a pin is already watched by another subscription.
	ErrPinInUse = errors.New("pin already used")
	// ErrNotSubscribed is returned for watchdog requests on a pin without subscription.
	ErrNotSubscribed = errors.New("pin not subscribed")
)

// Level is the line level reported by an Event.
type Level int

const (
	// Low indicates a falling edge, the line is low now.
	Low Level = iota
	// High indicates a rising edge, the line is high now.
	High
	// Timeout indicates that the watchdog expired without any transition.
	Timeout
)

func (l Level) String() string {
	switch l {
	case Low:
		return "LOW"
	case High:
		return "HIGH"
	case Timeout:
		return "TIMEOUT"
	default:
		return "INVALID"
	}
}

// Edge defines which transitions of a line are watched.
type Edge int

const (
	// EdgeNone indicates no level transitions are watched.
	EdgeNone Edge = iota
	// EdgeRising indicates low to high transitions are watched.
	EdgeRising
	// EdgeFalling indicates high to low transitions are watched.
	EdgeFalling
	// EdgeBoth indicates both transitions are watched.
	EdgeBoth
)

// Match reports whether a transition to level l is watched with edge e.
// Timeout events always match.
func (e Edge) Match(l Level) bool {
	switch l {
	case Timeout:
		return true
	case High:
		return e == EdgeRising || e == EdgeBoth
	case Low:
		return e == EdgeFalling || e == EdgeBoth
	}
	return false
}

// Event is a single level transition of a line.
type Event struct {
	// Level is the line level after the transition.
	Level Level
	// Tick is a free running, wrapping microsecond counter at the transition.
	Tick uint32
}

// TickDiff returns the ticks elapsed from t0 to t1.
// The tick counter wraps around every 2^32 µs (about 72 minutes), so t1 is
// always treated as later than t0.
func TickDiff(t0, t1 uint32) int64 {
	return int64(t1 - t0)
}

// Ticks converts a duration to ticks.
func Ticks(d time.Duration) uint32 {
	return uint32(d / time.Microsecond)
}

// Source reports every transition of a gpio line.
type Source interface {
	// Subscribe watches pin for the given edges and calls handler for every transition.
	// Handlers of one subscription are called serially from one goroutine,
	// watchdog timeouts included.
	Subscribe(pin int, edge Edge, handler func(Event)) (Subscription, error)
	// ArmWatchdog delivers a Timeout event if pin has no transition within timeout.
	// The watchdog is one-shot, arming it again restarts it.
	ArmWatchdog(pin int, timeout time.Duration) error
	// DisarmWatchdog cancels a pending watchdog, its Timeout event is never delivered.
	DisarmWatchdog(pin int) error
	// Connected reports whether the driver is usable.
	Connected() bool
}

// Subscription is an active watch of a pin.
type Subscription interface {
	// Cancel stops watching the pin. No event is delivered after Cancel returns,
	// except one that is being handled at that moment.
	Cancel() error
}
