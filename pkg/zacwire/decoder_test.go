package zacwire

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tsic/pkg/port"
)

// fakeWatchdog records the watchdog calls of a decoder.
type fakeWatchdog struct {
	arms, disarms int
	timeout       time.Duration
}

func (w *fakeWatchdog) Arm(d time.Duration) {
	w.arms++
	w.timeout = d
}

func (w *fakeWatchdog) Disarm() {
	w.disarms++
}

var timeout = port.Event{Level: port.Timeout}

func decodeAll(d *Decoder, events []port.Event) []Frame {
	var frames []Frame
	for _, evt := range events {
		if f, ok := d.Decode(evt); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

// pulse returns the index of the LOW event of bit n (0..8) in byte i of a Packet.
func pulse(i, n int) int {
	return 1 + i*2*(bitsPerByte+1) + 2 + 2*n
}

// flip inverts the classification of bit n in byte i by changing its low period.
func flip(events []port.Event, i, n int) []port.Event {
	out := append([]port.Event(nil), events...)
	low, high := pulse(i, n), pulse(i, n)+1

	width := uint32(oneLow)
	if out[high].Tick-out[low].Tick == oneLow {
		width = zeroLow
	}
	out[high].Tick = out[low].Tick + width
	return out
}

func TestDecodeRoundTrip(t *testing.T) {
	pairs := [][2]byte{{0x00, 0x00}, {0x04, 0x00}, {0x07, 0xff}, {0x3f, 0xff}, {0xa5, 0x5a}, {0xff, 0xff}}
	for b := 0; b < 256; b++ {
		pairs = append(pairs, [2]byte{byte(b), byte(b) ^ 0x5a})
	}

	for _, p := range pairs {
		d := NewDecoder(DefaultTiming, nil)
		frames := decodeAll(d, append(Packet(1000, p[0], p[1]), timeout))

		want := []Frame{{Bytes: []byte{p[0], p[1]}, Status: StatusOK}}
		if diff := cmp.Diff(want, frames); diff != "" {
			t.Errorf("packet % x mismatch (-want +got):\n%s", p, diff)
		}
	}
}

func TestDecodeTickWraparound(t *testing.T) {
	d := NewDecoder(DefaultTiming, nil)
	frames := decodeAll(d, append(Packet(math.MaxUint32-1500, 0x12, 0x34), timeout))

	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x12, 0x34}, frames[0].Bytes)
	assert.Equal(t, StatusOK, frames[0].Status)
}

func TestDecodeParityError(t *testing.T) {
	packet := Packet(0, 0x05, 0x8c)

	for i := 0; i < 2; i++ {
		for n := 0; n < 8; n++ {
			d := NewDecoder(DefaultTiming, nil)
			frames := decodeAll(d, append(flip(packet, i, n), timeout))

			require.Len(t, frames, 1, "byte %d bit %d", i, n)
			assert.Equal(t, StatusParityError, frames[0].Status, "byte %d bit %d", i, n)
			assert.Len(t, frames[0].Bytes, i+1)
		}
	}
}

func TestDecodeParityBitError(t *testing.T) {
	d := NewDecoder(DefaultTiming, nil)
	frames := decodeAll(d, append(flip(Packet(0, 0x05, 0x8c), 0, 8), timeout))

	require.Len(t, frames, 1)
	assert.Equal(t, StatusParityError, frames[0].Status)
}

func TestDecodeMissingBit(t *testing.T) {
	packet := Packet(0, 0x05, 0x8c)
	// drop the parity bit of the first byte
	parity := pulse(0, 8)
	events := append(append([]port.Event(nil), packet[:parity]...), packet[parity+2:]...)

	d := NewDecoder(DefaultTiming, nil)
	frames := decodeAll(d, append(events, timeout))

	want := []Frame{{Bytes: []byte{0x05}, Status: StatusBitCountError}}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeExtraBit(t *testing.T) {
	packet := Packet(0, 0x05, 0x8c)
	last := packet[len(packet)-1].Tick
	extra := []port.Event{
		{Level: port.Low, Tick: last + 31},
		{Level: port.High, Tick: last + 31 + zeroLow},
	}

	w := &fakeWatchdog{}
	d := NewDecoder(DefaultTiming, w)
	frames := decodeAll(d, append(append(packet, extra...), timeout))

	require.Len(t, frames, 1)
	assert.Equal(t, StatusBitCountError, frames[0].Status)
	assert.Equal(t, []byte{0x05, 0x8c}, frames[0].Bytes)
}

func TestDecodePacketGapFlushes(t *testing.T) {
	first := Packet(0, 0x01, 0x02)
	// the line stays high after the last bit until the next packet starts
	second := Packet(first[len(first)-1].Tick, 0x03, 0x04)[1:]

	d := NewDecoder(DefaultTiming, nil)
	frames := decodeAll(d, append(append(first, second...), timeout))

	want := []Frame{
		{Bytes: []byte{0x01, 0x02}, Status: StatusOK},
		{Bytes: []byte{0x03, 0x04}, Status: StatusOK},
	}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeWatchdogLifecycle(t *testing.T) {
	w := &fakeWatchdog{}
	d := NewDecoder(DefaultTiming, w)

	packet := Packet(0, 0x01, 0x02)
	frames := decodeAll(d, packet)
	assert.Empty(t, frames)

	// armed after each complete byte, disarmed by the start of the second byte
	assert.Equal(t, 2, w.arms)
	assert.Equal(t, 1, w.disarms)
	assert.Equal(t, time.Millisecond, w.timeout)

	f, ok := d.Decode(timeout)
	require.True(t, ok)
	assert.Equal(t, StatusOK, f.Status)

	// an expired watchdog isn't disarmed again
	d.Decode(port.Event{Level: port.High, Tick: 99999})
	assert.Equal(t, 1, w.disarms)
}

func TestDecodeIdle(t *testing.T) {
	d := NewDecoder(DefaultTiming, nil)

	// without a preceding high period a falling edge can't start a packet
	_, ok := d.Decode(port.Event{Level: port.Low, Tick: 5000})
	assert.False(t, ok)
	_, ok = d.Decode(port.Event{Level: port.High, Tick: 5062})
	assert.False(t, ok)
	_, ok = d.Decode(timeout)
	assert.False(t, ok)
	assert.Equal(t, idle, d.state)
}

func TestDecoderReset(t *testing.T) {
	w := &fakeWatchdog{}
	d := NewDecoder(DefaultTiming, w)

	packet := Packet(0, 0x01, 0x02)
	decodeAll(d, packet[:21])
	require.Equal(t, 1, w.arms)

	d.Reset()
	assert.Equal(t, idle, d.state)
	assert.Nil(t, d.rxBuffer)
	assert.Equal(t, 1, w.disarms)

	// the rest of the packet has no history to start from
	assert.Empty(t, decodeAll(d, append(packet[21:], timeout)))
}

func TestTimingValidate(t *testing.T) {
	assert.NoError(t, DefaultTiming.Validate())

	for _, tt := range []Timing{
		{PacketGap: 1000, ByteGap: 0, Watchdog: time.Millisecond},
		{PacketGap: 150, ByteGap: 150, Watchdog: time.Millisecond},
		{PacketGap: 1000, ByteGap: 150},
	} {
		assert.ErrorIs(t, tt.Validate(), ErrInvalidTiming, "%+v", tt)
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "parity error", StatusParityError.String())
	assert.Equal(t, "bit count error", StatusBitCountError.String())
}
