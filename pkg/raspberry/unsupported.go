//go:build !linux

package raspberry

import (
	"fmt"

	"tsic/pkg/port"
)

func openChip(name string, _ Bias) (GPIO, error) {
	return nil, fmt.Errorf("%w: gpio character device %s requires linux", port.ErrDriverUnavailable, name)
}

func openMem(Bias) (GPIO, error) {
	return nil, fmt.Errorf("%w: gpiomem requires linux", port.ErrDriverUnavailable)
}
