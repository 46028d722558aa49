package app

import (
	"fmt"
	"time"

	"tsic/pkg/raspberry"
	"tsic/pkg/tsic"

	"github.com/womat/debug"
)

// openSensor opens the gpio driver and the temperature channel of the configured pin.
// The emulator driver gets an emulated sensor.
func (app *App) openSensor() (err error) {
	c := app.config

	if app.gpio, err = raspberry.Open(c.Driver, c.Chip, c.BiasValue); err != nil {
		debug.ErrorLog.Printf("can't open gpio: %v", err)
		return err
	}

	if app.tsic, err = tsic.NewChannel(app.gpio, c.Gpio, c.TsicType, c.ZacwireTiming()); err != nil {
		debug.ErrorLog.Printf("can't open pin %v: %v", c.Gpio, err)
		return err
	}

	if e, ok := app.gpio.(*raspberry.Emulator); ok {
		go app.emulate(e, app.quit)
	}

	debug.InfoLog.Printf("%v opened by %v driver", app.tsic, c.Driver)
	return nil
}

// MeasureOnce opens the sensor and waits up to timeout for one measurement.
func (app *App) MeasureOnce(timeout time.Duration) (tsic.Measurement, error) {
	if err := app.openSensor(); err != nil {
		return tsic.Undefined, err
	}

	m := app.tsic.MeasureOnce(timeout)
	if m.IsUndefined() {
		return m, fmt.Errorf("no measurement of %v within %v", app.tsic, timeout)
	}
	return m, nil
}
