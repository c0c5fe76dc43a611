package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MockSerialPort is an in-process stand-in for a positioning modem used by
// dev mode. Every command written to it is answered on the read side the way
// a SIMCom-style modem would answer it.
type MockSerialPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu       sync.Mutex
	infoLine string
}

// Read returns modem replies.
func (m *MockSerialPort) Read(p []byte) (int, error) {
	return m.r.Read(p)
}

// Write accepts one or more CR-terminated commands and queues their replies.
func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	info := m.infoLine
	m.mu.Unlock()

	var reply strings.Builder
	for _, cmd := range strings.FieldsFunc(string(p), func(r rune) bool { return r == '\r' || r == '\n' }) {
		reply.WriteString(SimulatedReply(cmd, info))
	}
	if reply.Len() > 0 {
		go m.w.Write([]byte(reply.String()))
	}
	return len(p), nil
}

// SetInfoLine replaces the position-info payload returned to AT+CGPSINFO.
func (m *MockSerialPort) SetInfoLine(info string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoLine = info
}

func (m *MockSerialPort) Close() error {
	m.w.Close()
	return m.r.Close()
}

// SimulatedReply returns the CRLF-framed reply a modem would send for cmd.
// info is the payload following "+CGPSINFO: " (empty fields when no fix).
func SimulatedReply(cmd, info string) string {
	cmd = strings.ToUpper(strings.TrimSpace(cmd))
	switch {
	case cmd == "AT", strings.HasPrefix(cmd, "AT+CGPS="):
		return "\r\nOK\r\n"
	case cmd == "AT+CGPSINFO":
		if info == "" {
			info = ",,,,,,,,"
		}
		return fmt.Sprintf("\r\n%s %s\r\n\r\nOK\r\n", GPSInfoToken, info)
	default:
		return "\r\nERROR\r\n"
	}
}

// NewMockSerialMux creates a SerialMux backed by a simulated modem that
// reports infoLine for every position query.
func NewMockSerialMux(infoLine string) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	return NewSerialMux(&MockSerialPort{r: r, w: w, infoLine: infoLine})
}

// TestableSerialPort implements SerialPorter with configurable behaviour for testing.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// Responder, when set, is called with every chunk written to the port and
	// its return value is appended to ReadBuffer.
	Responder func(written string) string

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// OpenCount lets MockPortOpener record how often the port was opened.
	OpenCount int

	// Closed indicates whether Close was called
	Closed bool

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// NewModemPort returns a blocking TestableSerialPort that answers AT commands
// like a modem reporting info for position queries.
func NewModemPort(info string) *TestableSerialPort {
	tsp := NewTestableSerialPort()
	tsp.BlockReads = true
	tsp.Responder = func(written string) string {
		var reply strings.Builder
		for _, cmd := range strings.Split(written, "\r") {
			if strings.TrimSpace(cmd) != "" {
				reply.WriteString(SimulatedReply(cmd, info))
			}
		}
		return reply.String()
	}
	return tsp
}

// Read reads from the read buffer, optionally blocking until data arrives.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.BlockReads && t.ReadBuffer.Len() == 0 {
		for !t.Closed && t.ReadBuffer.Len() == 0 {
			t.readCond.Wait()
		}
		if t.Closed {
			return 0, errors.New("serial port closed")
		}
	}

	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer and queues any Responder reply.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	n, err = t.WriteBuffer.Write(p)
	if t.Responder != nil {
		if reply := t.Responder(string(p)); reply != "" {
			t.ReadBuffer.WriteString(reply)
			t.readCond.Broadcast()
		}
	}
	return n, err
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast()
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// GetWrittenData returns all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return bytes.Clone(t.WriteBuffer.Bytes())
}

// IsClosed reports whether Close has been called.
func (t *TestableSerialPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

// MockPortOpener hands out pre-built ports by path. Paths without an entry
// fail to open, like a missing /dev node.
type MockPortOpener struct {
	mu sync.Mutex

	Ports map[string]SerialPorter

	// Errors forces Open to fail for the given paths.
	Errors map[string]error

	// Opened records every path passed to Open, in order.
	Opened []string
}

// NewMockPortOpener creates an opener with no ports.
func NewMockPortOpener() *MockPortOpener {
	return &MockPortOpener{
		Ports:  make(map[string]SerialPorter),
		Errors: make(map[string]error),
	}
}

// Open implements SerialPortOpener.
func (o *MockPortOpener) Open(path string, _ PortOptions) (SerialPorter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Opened = append(o.Opened, path)
	if err, ok := o.Errors[path]; ok {
		return nil, err
	}
	port, ok := o.Ports[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file or directory", path)
	}
	if tsp, ok := port.(*TestableSerialPort); ok {
		tsp.mu.Lock()
		tsp.OpenCount++
		tsp.Closed = false
		tsp.mu.Unlock()
	}
	return port, nil
}
