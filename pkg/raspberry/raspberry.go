// Package raspberry is the watcher for gpio ports.
// It reports the level transitions of Raspberry Pi gpio lines as port events.
package raspberry

import (
	"errors"
	"fmt"
	"io"

	"tsic/pkg/port"
)

var ErrInvalidParam = errors.New("invalid parameters")

// lineBuffer is the number of edges queued per line until edges get dropped.
const lineBuffer = 4096

// Names of the gpio drivers.
const (
	// DriverGpiod uses the gpio character device /dev/gpiochipN.
	DriverGpiod = "gpiod"
	// DriverGpiomem uses the memory mapped gpio registers /dev/gpiomem.
	DriverGpiomem = "gpiomem"
	// DriverEmulator uses a software line without hardware.
	DriverEmulator = "emulator"
)

// GPIO is an opened gpio driver.
type GPIO interface {
	port.Source
	io.Closer
}

// Bias is the pull-up/pull-down configuration of an input line.
type Bias string

const (
	// BiasNone disables pull-up and pull-down.
	BiasNone Bias = "none"
	// BiasPullUp enables the pull-up resistor.
	BiasPullUp Bias = "pullup"
	// BiasPullDown enables the pull-down resistor.
	BiasPullDown Bias = "pulldown"
)

// ParseBias checks the terminator name of a line.
func ParseBias(s string) (Bias, error) {
	switch b := Bias(s); b {
	case BiasNone, BiasPullUp, BiasPullDown:
		return b, nil
	case "":
		return BiasNone, nil
	default:
		return "", fmt.Errorf("%w: bias %q", ErrInvalidParam, s)
	}
}

// Open opens the gpio driver by name. chip is only used by the gpiod driver.
func Open(driver, chip string, bias Bias) (GPIO, error) {
	switch driver {
	case DriverGpiod, "":
		return openChip(chip, bias)
	case DriverGpiomem:
		return openMem(bias)
	case DriverEmulator:
		return NewEmulator(), nil
	default:
		return nil, fmt.Errorf("%w: driver %q", ErrInvalidParam, driver)
	}
}
