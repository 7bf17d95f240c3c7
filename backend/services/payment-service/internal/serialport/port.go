// Package serialport opens the controller's serial link.
package serialport

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the controller firmware.
const DefaultBaudRate = 9600

// Open opens name as an 8N1 serial port.
func Open(name string, baudRate int) (io.ReadWriteCloser, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", name, err)
	}
	return port, nil
}
