// Package zacwire is a software decoder for the ZACWire protocol of TSIC sensors.
// A packet consists of bytes, each byte is sent as a start bit (T-strobe),
// eight data bits (MSB first) and an even parity bit.
//
// https://www.ist-ag.com/sites/default/files/ATTSic_E.pdf
package zacwire

import (
	"errors"
	"fmt"
	"time"

	"github.com/womat/debug"
	"tsic/pkg/port"
)

const (
	// idle is the process state without a packet in progress.
	idle stateType = iota
	// awaitingCalibration is the process state waiting for the T-strobe of a byte.
	awaitingCalibration
	// decodingBits is the process state receiving data and parity bits of a byte.
	decodingBits
)

// bitsPerByte are eight data bits plus the parity bit.
const bitsPerByte = 9

var ErrInvalidTiming = errors.New("invalid zacwire timing")

// stateType represents the state of the decoding process.
type stateType int

func (s stateType) String() string {
	switch s {
	case idle:
		return "idle"
	case awaitingCalibration:
		return "awaiting calibration"
	case decodingBits:
		return "decoding bits"
	default:
		return "invalid"
	}
}

// Status is the completion status of a Frame.
type Status int

const (
	// StatusOK indicates the received data is valid.
	StatusOK Status = iota
	// StatusParityError indicates a byte of the received data has a parity error.
	StatusParityError
	// StatusBitCountError indicates a byte of the received data has a wrong bit count.
	StatusBitCountError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusParityError:
		return "parity error"
	case StatusBitCountError:
		return "bit count error"
	default:
		return "invalid status"
	}
}

// Frame is one received packet.
type Frame struct {
	Bytes  []byte
	Status Status
}

func (f Frame) String() string {
	return fmt.Sprintf("% x (%v)", f.Bytes, f.Status)
}

// Timing holds the thresholds to detect packet and byte boundaries.
// The defaults are tuned to TSIC sensors and may need adjustment for other hardware.
type Timing struct {
	// PacketGap is the minimum high period (in ticks) before the first byte of a packet.
	PacketGap uint32
	// ByteGap is the minimum high period (in ticks) before the next byte of a packet.
	ByteGap uint32
	// Watchdog is the silence after a complete byte that finishes the packet.
	Watchdog time.Duration
}

// DefaultTiming matches the 8 kHz bit clock of TSIC sensors.
var DefaultTiming = Timing{
	PacketGap: 1000,
	ByteGap:   150,
	Watchdog:  time.Millisecond,
}

// Validate checks the thresholds.
func (t Timing) Validate() error {
	switch {
	case t.ByteGap == 0:
		return fmt.Errorf("%w: byte gap must be greater than 0", ErrInvalidTiming)
	case t.PacketGap <= t.ByteGap:
		return fmt.Errorf("%w: packet gap %d must be greater than byte gap %d", ErrInvalidTiming, t.PacketGap, t.ByteGap)
	case t.Watchdog <= 0:
		return fmt.Errorf("%w: watchdog must be greater than 0", ErrInvalidTiming)
	}
	return nil
}

// Watchdog is the end of packet detection. After Arm, a Timeout event has to be
// passed to the Decoder if the line stays silent for the given duration.
type Watchdog interface {
	Arm(time.Duration)
	Disarm()
}

// Decoder turns line events into frames.
// It is not safe for concurrent use, events must be passed in order from one goroutine.
type Decoder struct {
	timing   Timing
	watchdog Watchdog

	// state contains the current decoding state.
	state stateType
	// rxBuffer holds the received bytes of the current packet, the last one is in progress.
	rxBuffer []byte
	// rxBit is the number of received bits of the current byte, parity bit included.
	rxBit int
	// parity is the count of received 1 bits of the current byte.
	parity int
	// strobe is the length of the T-strobe of the current byte.
	strobe int64
	// armed is true while the watchdog is running.
	armed bool

	lastLow, lastHigh         uint32
	haveLastLow, haveLastHigh bool
}

// NewDecoder initials a new Decoder. w may be nil if end of packet is signalled otherwise.
func NewDecoder(t Timing, w Watchdog) *Decoder {
	return &Decoder{timing: t, watchdog: w}
}

// Decode handles one line event and returns a frame if the event completed one.
//   LOW:     a long high period starts a packet, a shorter one the next byte
//   HIGH:    the first low period of a byte is the T-strobe, every further low period is a bit,
//            shorter than the strobe is 1, longer is 0
//   TIMEOUT: the silence after the last byte completes the packet
func (d *Decoder) Decode(evt port.Event) (f Frame, ok bool) {
	if evt.Level != port.Timeout {
		d.disarm()
	}

	switch evt.Level {
	case port.Low:
		if d.haveLastHigh {
			f, ok = d.falling(port.TickDiff(d.lastHigh, evt.Tick))
		}
		d.lastLow, d.haveLastLow = evt.Tick, true

	case port.High:
		if d.haveLastLow {
			f, ok = d.rising(port.TickDiff(d.lastLow, evt.Tick))
		}
		d.lastHigh, d.haveLastHigh = evt.Tick, true

	case port.Timeout:
		d.armed = false
		f, ok = d.flush(StatusOK)
	}

	return f, ok
}

// Reset drops any packet in progress and forgets the line history.
func (d *Decoder) Reset() {
	d.disarm()
	d.reset()
	d.haveLastLow, d.haveLastHigh = false, false
}

// falling handles the end of a high period.
func (d *Decoder) falling(high int64) (f Frame, ok bool) {
	switch {
	case high > int64(d.timing.PacketGap):
		debug.TraceLog.Printf("packet start after %d ticks", high)
		f, ok = d.flush(StatusOK)
		d.rxBuffer = []byte{0}
		d.startByte()

	case d.state != idle && high > int64(d.timing.ByteGap):
		if d.rxBit != bitsPerByte {
			debug.DebugLog.Printf("next byte after %d bits", d.rxBit)
			return d.flush(StatusBitCountError)
		}
		d.rxBuffer = append(d.rxBuffer, 0)
		d.startByte()
	}

	return f, ok
}

// rising handles the end of a low period.
func (d *Decoder) rising(low int64) (Frame, bool) {
	switch d.state {
	case awaitingCalibration:
		d.strobe = low
		d.state = decodingBits

	case decodingBits:
		bit := 1
		if low > d.strobe {
			bit = 0
		}

		if d.rxBit < bitsPerByte-1 {
			last := len(d.rxBuffer) - 1
			d.rxBuffer[last] = d.rxBuffer[last]<<1 | byte(bit)
		}
		d.rxBit++
		d.parity += bit

		switch {
		case d.rxBit == bitsPerByte:
			if d.parity%2 != 0 {
				debug.DebugLog.Printf("parity error in byte %d", len(d.rxBuffer)-1)
				return d.flush(StatusParityError)
			}
			d.arm()
		case d.rxBit > bitsPerByte:
			return d.flush(StatusBitCountError)
		}
	}

	return Frame{}, false
}

// flush returns the packet in progress with the given status and resets the decoder to idle.
func (d *Decoder) flush(s Status) (f Frame, ok bool) {
	if d.state != idle {
		f, ok = Frame{Bytes: d.rxBuffer, Status: s}, true
	}
	d.reset()
	return f, ok
}

func (d *Decoder) startByte() {
	d.state = awaitingCalibration
	d.rxBit = 0
	d.parity = 0
	d.strobe = 0
}

func (d *Decoder) reset() {
	d.state = idle
	d.rxBuffer = nil
	d.rxBit = 0
	d.parity = 0
	d.strobe = 0
}

func (d *Decoder) arm() {
	if d.watchdog == nil {
		return
	}
	d.watchdog.Arm(d.timing.Watchdog)
	d.armed = true
}

func (d *Decoder) disarm() {
	if d.watchdog == nil || !d.armed {
		return
	}
	d.watchdog.Disarm()
	d.armed = false
}
