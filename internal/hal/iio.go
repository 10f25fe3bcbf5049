package hal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const iioRoot = "/sys/bus/iio/devices"

// IIOChannel reads one ADC channel exposed by the Linux IIO subsystem.
type IIOChannel struct {
	path string
}

// OpenIIO resolves "iio:device0/in_voltage3_raw" style names under the IIO
// sysfs root. An absolute path is used as is.
func OpenIIO(name string) (*IIOChannel, error) {
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(iioRoot, name)
	}
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("iio channel %s: %w", name, err)
	}
	return &IIOChannel{path: p}, nil
}

func (c *IIOChannel) ReadRaw() (int, error) {
	b, err := os.ReadFile(c.path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", c.path, err)
	}
	return v, nil
}
