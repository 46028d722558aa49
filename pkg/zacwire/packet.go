package zacwire

import (
	"math/bits"

	"tsic/pkg/port"
)

// Bit timings of a TSIC sensor in µs ticks (8 kHz bit clock).
const (
	bitPeriod  = 125
	strobeLow  = 62
	zeroLow    = 94
	oneLow     = 31
	packetIdle = 2000
)

// Packet returns the line events of one packet sent by a sensor.
// The line rises at tick at and stays idle for a packet gap before the start bit of
// the first byte. Each byte is followed by its even parity bit, consecutive bytes are
// separated by a stop bit. Watchdog timeouts are not part of the result.
func Packet(at uint32, data ...byte) []port.Event {
	events := make([]port.Event, 0, 1+len(data)*2*(bitsPerByte+1))
	t := at
	events = append(events, port.Event{Level: port.High, Tick: t})
	t += packetIdle

	pulse := func(low uint32) {
		events = append(events, port.Event{Level: port.Low, Tick: t})
		t += low
		events = append(events, port.Event{Level: port.High, Tick: t})
		t += bitPeriod - low
	}

	for i, b := range data {
		if i > 0 {
			t += bitPeriod
		}

		pulse(strobeLow)
		for n := 7; n >= 0; n-- {
			pulse(bitLow(b>>n&1 == 1))
		}
		pulse(bitLow(bits.OnesCount8(b)%2 == 1))
	}

	return events
}

func bitLow(one bool) uint32 {
	if one {
		return oneLow
	}
	return zeroLow
}
