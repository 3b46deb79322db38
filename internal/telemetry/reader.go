package telemetry

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/shaunagostinho/roverdash/internal/link"
	"github.com/shaunagostinho/roverdash/internal/metrics"
)

// LineSource is the read side of the serial link.
type LineSource interface {
	IsOpen() bool
	ReadLine() (string, bool, error)
}

// Reader pulls raw lines off the serial link and hands them to the panel.
type Reader struct {
	src  LineSource
	idle time.Duration
}

// NewReader creates a reader over src. idle is the wait after a poll that
// returned no line.
func NewReader(src LineSource, idle time.Duration) *Reader {
	if idle <= 0 {
		idle = 10 * time.Millisecond
	}
	return &Reader{src: src, idle: idle}
}

// Run delivers lines on out until ctx is done or the link fails. A port read
// timeout is not a failure; any read error ends the loop since the link is
// never reopened. It returns immediately if the link never opened.
func (r *Reader) Run(ctx context.Context, out chan<- string) {
	if r.src == nil || !r.src.IsOpen() {
		log.Printf("[telemetry] serial link not open, reader idle")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, ok, err := r.src.ReadLine()
		if err != nil {
			if errors.Is(err, link.ErrClosed) || errors.Is(err, io.EOF) {
				log.Printf("[telemetry] link closed, reader stopping")
			} else {
				log.Printf("[telemetry] read error, reader stopping: %v", err)
			}
			return
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.idle):
			}
			continue
		}

		metrics.TelemetryLines.Inc()
		select {
		case <-ctx.Done():
			return
		case out <- line:
		}
	}
}
