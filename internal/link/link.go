package link

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/tevino/abool/v2"
	"go.bug.st/serial"
)

// ErrClosed is returned by Send when the link is not open.
var ErrClosed = errors.New("link: not open")

// Port is the byte stream under a Link. go.bug.st/serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
	// Drain blocks until all written bytes have been transmitted.
	Drain() error
}

// Config holds connection settings for the rover serial link.
type Config struct {
	PortPath    string
	BaudRate    int
	ReadTimeout time.Duration
}

// Link is the single serial connection to the rover. The telemetry reader
// owns the read side and the panel owns the write side; the driver
// serializes the two directions.
type Link struct {
	name    string
	port    Port
	open    *abool.AtomicBool
	pending []byte
	buf     []byte
}

// New wraps an already opened port.
func New(name string, port Port) *Link {
	return &Link{
		name: name,
		port: port,
		open: abool.NewBool(port != nil),
		buf:  make([]byte, 256),
	}
}

// Open opens the serial device described by cfg at 8N1.
func Open(cfg Config) (*Link, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.PortPath, mode)
	if err != nil {
		return nil, fmt.Errorf("link: open %s: %w", cfg.PortPath, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("link: set read timeout on %s: %w", cfg.PortPath, err)
	}
	log.Printf("[serial] opened %s at %d baud", cfg.PortPath, cfg.BaudRate)
	return New(cfg.PortPath, port), nil
}

// Name returns the device path or label the link was created with.
func (l *Link) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// IsOpen reports whether the link can carry traffic. A nil link is closed.
func (l *Link) IsOpen() bool {
	return l != nil && l.open.IsSet()
}

// ReadLine returns the next complete line with invalid UTF-8 dropped and
// surrounding whitespace trimmed. ok is false when no full line is available
// yet; a port read timeout is not an error.
func (l *Link) ReadLine() (line string, ok bool, err error) {
	if !l.IsOpen() {
		return "", false, ErrClosed
	}
	if line, ok := l.takeLine(); ok {
		return line, true, nil
	}
	n, err := l.port.Read(l.buf)
	if n > 0 {
		l.pending = append(l.pending, l.buf[:n]...)
	}
	if line, ok := l.takeLine(); ok {
		return line, true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("link: read %s: %w", l.name, err)
	}
	return "", false, nil
}

// maxLine bounds the unterminated input kept between reads. A longer run
// without a newline is handed up as a line of its own.
const maxLine = 4096

func (l *Link) takeLine() (string, bool) {
	i := bytes.IndexByte(l.pending, '\n')
	if i < 0 {
		if len(l.pending) < maxLine {
			return "", false
		}
		raw := string(l.pending)
		l.pending = l.pending[:0]
		return strings.TrimSpace(strings.ToValidUTF8(raw, "")), true
	}
	raw := string(l.pending[:i])
	l.pending = l.pending[i+1:]
	return strings.TrimSpace(strings.ToValidUTF8(raw, "")), true
}

// Send writes the command token plus a line terminator and flushes it.
func (l *Link) Send(cmd Command) error {
	if !l.IsOpen() {
		return ErrClosed
	}
	if _, err := l.port.Write(cmd.Wire()); err != nil {
		return fmt.Errorf("link: write %s: %w", l.name, err)
	}
	if err := l.port.Drain(); err != nil {
		return fmt.Errorf("link: flush %s: %w", l.name, err)
	}
	return nil
}

// Close releases the port. Closing twice is a no-op.
func (l *Link) Close() error {
	if l == nil || !l.open.SetToIf(true, false) {
		return nil
	}
	log.Printf("[serial] closing %s", l.name)
	return l.port.Close()
}
