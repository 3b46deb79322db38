package link

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// DemoPort simulates rover firmware on the far end of the serial link. It
// emits one telemetry line per interval and steers its simulated position
// from the commands written to it.
type DemoPort struct {
	mu       sync.Mutex
	interval time.Duration
	done     chan struct{}
	closed   bool
	out      []byte
	booted   bool

	lat, lon float64
	heading  float64 // radians, 0 = north
	speed    float64 // degrees per tick
	auto     bool
	pan      int
	tilt     int
	t        float64
}

const demoStep = 0.00004

// NewDemoPort starts a simulated rover circling a fixed point.
func NewDemoPort(interval time.Duration) *DemoPort {
	if interval <= 0 {
		interval = time.Second
	}
	return &DemoPort{
		interval: interval,
		done:     make(chan struct{}),
		lat:      43.6532, // Toronto
		lon:      -79.3832,
		speed:    demoStep,
		auto:     true,
	}
}

// Read blocks for one interval, then returns the next telemetry line.
func (d *DemoPort) Read(p []byte) (int, error) {
	d.mu.Lock()
	if len(d.out) == 0 {
		d.mu.Unlock()
		select {
		case <-d.done:
			return 0, io.EOF
		case <-time.After(d.interval):
		}
		d.mu.Lock()
		d.out = append(d.out, d.nextLine()...)
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	d.mu.Unlock()
	return n, nil
}

func (d *DemoPort) nextLine() string {
	if !d.booted {
		d.booted = true
		return "LoRa receiver ready\r\n"
	}
	d.t += 0.1
	if d.auto {
		d.heading += 0.08
	}
	d.lat += d.speed * math.Cos(d.heading)
	d.lon += d.speed * math.Sin(d.heading)

	gas := 180 + int(40*math.Sin(d.t*0.7)) + rand.Intn(10)
	hum := 48 + int(6*math.Sin(d.t*0.2))
	temp := 22.0 + 2*math.Sin(d.t*0.05) + rand.Float64()*0.3
	return fmt.Sprintf("Received Data: %d %d %.1f %.6f %.6f\r\n", gas, hum, temp, d.lat, d.lon)
}

// Write applies each newline-terminated command to the simulation.
func (d *DemoPort) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	for _, tok := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		cmd, ok := ParseCommand(strings.TrimSpace(tok))
		if !ok {
			continue
		}
		d.apply(cmd)
	}
	return len(p), nil
}

func (d *DemoPort) apply(cmd Command) {
	switch cmd {
	case Forward:
		d.speed = demoStep
	case Backward:
		d.speed = -demoStep
	case Left:
		d.heading -= math.Pi / 12
	case Right:
		d.heading += math.Pi / 12
	case Stop:
		d.speed = 0
	case Mode:
		d.auto = !d.auto
	case CamUp:
		d.tilt += 10
	case CamDown:
		d.tilt -= 10
	case CamLeft:
		d.pan -= 10
	case CamRight:
		d.pan += 10
	case CamReset:
		d.pan, d.tilt = 0, 0
	}
	log.Printf("[demo] %s (speed=%.5f auto=%v pan=%d tilt=%d)", cmd, d.speed, d.auto, d.pan, d.tilt)
}

func (d *DemoPort) Drain() error { return nil }

func (d *DemoPort) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.done)
	}
	return nil
}
