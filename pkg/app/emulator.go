package app

import (
	"errors"
	"time"

	"tsic/pkg/port"
	"tsic/pkg/raspberry"
	"tsic/pkg/zacwire"

	"github.com/womat/debug"
)

// emulate sends a packet of the configured temperature every interval to the emulated pin,
// only for testing without sensor.
func (app *App) emulate(e *raspberry.Emulator, quit <-chan struct{}) {
	c := app.config
	ticker := time.NewTicker(c.Emulator.Interval)
	defer ticker.Stop()

	data := app.tsic.Type().Bytes(c.Emulator.Celsius)
	debug.InfoLog.Printf("emulate %v on gpio %d: %.2f°C every %v", app.tsic.Type(), c.Gpio, c.Emulator.Celsius, c.Emulator.Interval)

	var tick uint32
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
		}

		events := zacwire.Packet(tick, data...)
		tick = events[len(events)-1].Tick + port.Ticks(c.Emulator.Interval)

		err := e.Play(c.Gpio, events)
		if err == nil {
			// silence after the packet expires the watchdog
			err = e.Advance(c.Gpio, 2*c.Timing.Watchdog)
		}

		switch {
		case err == nil, errors.Is(err, port.ErrNotSubscribed):
		case errors.Is(err, port.ErrDriverUnavailable):
			return
		default:
			debug.ErrorLog.Printf("emulate gpio %d: %v", c.Gpio, err)
		}
	}
}
