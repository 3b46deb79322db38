// Package panel is the rover control panel: the one goroutine that owns the
// displayed telemetry, the GPS track and the current camera frame, and the
// only writer on the serial link.
package panel

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shaunagostinho/roverdash/internal/link"
	"github.com/shaunagostinho/roverdash/internal/metrics"
	"github.com/shaunagostinho/roverdash/internal/telemetry"
	"github.com/shaunagostinho/roverdash/internal/track"
	"github.com/shaunagostinho/roverdash/internal/video"
)

// Sender is the write side of the serial link.
type Sender interface {
	IsOpen() bool
	Send(cmd link.Command) error
}

// Recorder receives every accepted reading (CSV/SQLite log, MQTT bridge).
type Recorder interface {
	Record(r telemetry.Reading)
}

// Sink displays what the panel produces. Implementations must not block.
type Sink interface {
	PublishState(s State)
	PublishFrame(f *video.Frame)
	PublishPlot(png []byte)
}

// Input is a user action: a button press (Command) or a key press (Key).
type Input struct {
	Command link.Command `json:"command,omitempty"`
	Key     string       `json:"key,omitempty"`
}

// State is an immutable snapshot of what the panel shows.
type State struct {
	Labels    telemetry.Labels `json:"labels"`
	Track     []track.Point    `json:"track"`
	Bounds    *track.Bounds    `json:"bounds,omitempty"`
	LinkOpen  bool             `json:"linkOpen"`
	Frames    uint64           `json:"frames"`
	FrameSize string           `json:"frameSize,omitempty"`
	Updated   time.Time        `json:"updated"`
}

// Config holds panel options.
type Config struct {
	Plot  track.RenderOptions
	Debug bool // echo raw and parsed telemetry to the log
}

type Panel struct {
	cfg       Config
	link      Sender
	sink      Sink
	recorders []Recorder

	labels telemetry.Labels
	track  track.Track
	frame  *video.Frame
	frames uint64
}

// New creates a panel writing commands to l. l may be nil or closed, in
// which case every command is dropped.
func New(cfg Config, l Sender, sink Sink, recorders ...Recorder) *Panel {
	return &Panel{
		cfg:       cfg,
		link:      l,
		sink:      sink,
		recorders: recorders,
		labels:    telemetry.InitialLabels(),
	}
}

// Run drains the reader, poller and user input channels until ctx is done.
// All panel state is touched only from this goroutine.
func (p *Panel) Run(ctx context.Context, lines <-chan string, frames <-chan *video.Frame, inputs <-chan Input) {
	p.publishState()
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-lines:
			p.HandleLine(line)
		case f := <-frames:
			p.HandleFrame(f)
		case in := <-inputs:
			p.HandleInput(in)
		}
	}
}

// HandleLine parses a raw telemetry line, updates the labels, extends the
// track and redraws the plot. It reports whether a track point was added.
func (p *Panel) HandleLine(line string) bool {
	if p.cfg.Debug {
		log.Printf("[panel] Raw Data: %s", line)
	}
	reading, err := telemetry.Parse(line)

	var cerr *telemetry.CoordinateError
	switch {
	case err == nil:
	case errors.As(err, &cerr):
		// Labels go up before the coordinates are converted.
		p.labels = reading.Labels()
		metrics.TelemetryReadings.WithLabelValues(metrics.ResultBadCoordinates).Inc()
		log.Printf("[panel] %v", err)
		p.publishState()
		return false
	default:
		metrics.TelemetryReadings.WithLabelValues(metrics.ResultIgnored).Inc()
		if p.cfg.Debug {
			log.Printf("[panel] ignored: %v", err)
		}
		return false
	}
	if p.cfg.Debug {
		log.Printf("[panel] Parsed Values: %+v", reading)
	}
	metrics.TelemetryReadings.WithLabelValues(metrics.ResultAccepted).Inc()

	p.labels = reading.Labels()
	p.track.Append(reading.Longitude, reading.Latitude)
	metrics.TrackPoints.Set(float64(p.track.Len()))

	for _, r := range p.recorders {
		r.Record(reading)
	}
	p.redraw()
	p.publishState()
	return true
}

// HandleFrame replaces the displayed frame.
func (p *Panel) HandleFrame(f *video.Frame) {
	if f == nil || f.Image == nil {
		return
	}
	p.frame = f
	p.frames++
	if p.sink != nil {
		p.sink.PublishFrame(f)
	}
}

// HandleInput routes a button press or key press.
func (p *Panel) HandleInput(in Input) {
	switch {
	case in.Command != "":
		if _, ok := link.ParseCommand(string(in.Command)); !ok {
			log.Printf("[panel] unknown command %q", in.Command)
			return
		}
		p.Dispatch(in.Command)
	case in.Key != "":
		p.HandleKey(in.Key)
	}
}

// HandleKey dispatches the command bound to key, if any.
func (p *Panel) HandleKey(key string) bool {
	cmd, ok := link.CommandForKey(key)
	if !ok {
		return false
	}
	return p.Dispatch(cmd)
}

// Dispatch writes cmd to the link. A closed link drops it silently.
func (p *Panel) Dispatch(cmd link.Command) bool {
	if p.link == nil || !p.link.IsOpen() {
		metrics.Commands.WithLabelValues(metrics.ResultDropped).Inc()
		return false
	}
	log.Printf("[panel] Sending command: %s", cmd)
	if err := p.link.Send(cmd); err != nil {
		if errors.Is(err, link.ErrClosed) {
			metrics.Commands.WithLabelValues(metrics.ResultDropped).Inc()
			return false
		}
		metrics.Commands.WithLabelValues(metrics.ResultFailed).Inc()
		log.Printf("[panel] send %s: %v", cmd, err)
		return false
	}
	metrics.Commands.WithLabelValues(metrics.ResultSent).Inc()
	return true
}

// Labels returns the current label text.
func (p *Panel) Labels() telemetry.Labels { return p.labels }

// Track returns the track fixes in append order.
func (p *Panel) Track() []track.Point { return p.track.Points() }

// Frame returns the displayed frame, or nil before the first one.
func (p *Panel) Frame() *video.Frame { return p.frame }

// Snapshot builds the state published to the sink.
func (p *Panel) Snapshot() State {
	s := State{
		Labels:   p.labels,
		Track:    p.track.Points(),
		LinkOpen: p.link != nil && p.link.IsOpen(),
		Frames:   p.frames,
		Updated:  time.Now(),
	}
	if b, ok := p.track.Bounds(); ok {
		s.Bounds = &b
	}
	if p.frame != nil {
		s.FrameSize = p.frame.Image.Rect.Size().String()
	}
	return s
}

func (p *Panel) redraw() {
	if p.sink == nil {
		return
	}
	png, err := p.track.Render(p.cfg.Plot)
	if err != nil {
		log.Printf("[panel] plot: %v", err)
		return
	}
	p.sink.PublishPlot(png)
}

func (p *Panel) publishState() {
	if p.sink != nil {
		p.sink.PublishState(p.Snapshot())
	}
}
