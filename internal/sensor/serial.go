package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	CLIBaudRate        = 115200
	DataBaudRate       = 921600
	DefaultReadTimeout = 100 * time.Millisecond
)

// Device is an open radar: a command port driven by a Controller and a data
// port read as a byte stream.
type Device struct {
	cli  serial.Port
	data serial.Port
	ctl  *Controller
}

// OpenDevice opens both ports and discards anything already buffered on the
// data port. Reads return (0, nil) after readTimeout with no data, so callers
// can observe cancellation.
func OpenDevice(cliPort, dataPort string, readTimeout time.Duration) (*Device, error) {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	cli, err := serial.Open(cliPort, &serial.Mode{BaudRate: CLIBaudRate})
	if err != nil {
		return nil, fmt.Errorf("open cli port %s: %w", cliPort, err)
	}
	data, err := serial.Open(dataPort, &serial.Mode{BaudRate: DataBaudRate})
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("open data port %s: %w", dataPort, err)
	}
	if err := data.ResetInputBuffer(); err != nil {
		_ = cli.Close()
		_ = data.Close()
		return nil, fmt.Errorf("reset data port %s: %w", dataPort, err)
	}
	if err := data.SetReadTimeout(readTimeout); err != nil {
		_ = cli.Close()
		_ = data.Close()
		return nil, fmt.Errorf("data port %s read timeout: %w", dataPort, err)
	}
	log.Info().Str("cli", cliPort).Str("data", dataPort).Msg("sensor ports open")
	return &Device{cli: cli, data: data, ctl: NewController(cli)}, nil
}

func (d *Device) Configure(ctx context.Context, lines []string) error {
	return d.ctl.Configure(ctx, lines)
}

func (d *Device) Read(p []byte) (int, error) {
	return d.data.Read(p)
}

// Close stops the sensor and releases both ports.
func (d *Device) Close() error {
	return errors.Join(d.ctl.Stop(), d.cli.Close(), d.data.Close())
}
