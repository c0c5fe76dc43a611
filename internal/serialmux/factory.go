package serialmux

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// probeReadTimeout bounds each Read on a freshly opened port so that a silent
// candidate device cannot wedge port discovery.
const probeReadTimeout = time.Second

// OpenRealPort opens a real serial port with the given options. It satisfies
// SerialPortOpener.
func OpenRealPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(probeReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}
	return port, nil
}

// NewRealSerialMux creates a SerialMux instance backed by a real serial port at the
// given path using the provided serial options.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewSerialMux[serial.Port](port), nil
}

// ListPorts returns the serial ports the operating system reports.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
