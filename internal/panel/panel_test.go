package panel

import (
	"bytes"
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/shaunagostinho/roverdash/internal/link"
	"github.com/shaunagostinho/roverdash/internal/telemetry"
	"github.com/shaunagostinho/roverdash/internal/track"
	"github.com/shaunagostinho/roverdash/internal/video"
)

type recordingPort struct {
	written bytes.Buffer
	writes  int
}

func (r *recordingPort) Read(p []byte) (int, error) { return 0, nil }
func (r *recordingPort) Write(p []byte) (int, error) {
	r.writes++
	return r.written.Write(p)
}
func (r *recordingPort) Drain() error { return nil }
func (r *recordingPort) Close() error { return nil }

type fakeSink struct {
	mu     sync.Mutex
	states []State
	frames []*video.Frame
	plots  int
}

func (f *fakeSink) PublishState(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
}

func (f *fakeSink) PublishFrame(fr *video.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
}

func (f *fakeSink) PublishPlot(png []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plots++
}

func (f *fakeSink) stateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

type fakeRecorder struct{ got []telemetry.Reading }

func (f *fakeRecorder) Record(r telemetry.Reading) { f.got = append(f.got, r) }

func TestHandleLine_SampleUpdatesLabelsAndTrack(t *testing.T) {
	sink := &fakeSink{}
	rec := &fakeRecorder{}
	p := New(Config{Plot: track.RenderOptions{Width: 200, Height: 160}}, nil, sink, rec)

	if !p.HandleLine("Received Data: 120 45 22.5 37.7749 -122.4194") {
		t.Fatalf("expected line accepted")
	}
	want := telemetry.Labels{
		Gas:         "Gas: 120ppm",
		Humidity:    "Humidity: 45%",
		Temperature: "Temperature: 22.5 C",
		Latitude:    "Latitude: 37.7749",
		Longitude:   "Longitude: -122.4194",
	}
	if p.Labels() != want {
		t.Fatalf("labels=%+v", p.Labels())
	}
	tr := p.Track()
	if len(tr) != 1 || tr[0] != (track.Point{Lon: -122.4194, Lat: 37.7749}) {
		t.Fatalf("track=%+v", tr)
	}
	if sink.plots != 1 || len(sink.states) != 1 {
		t.Fatalf("plots=%d states=%d", sink.plots, len(sink.states))
	}
	if len(rec.got) != 1 {
		t.Fatalf("recorder got %d readings", len(rec.got))
	}
	st := sink.states[0]
	if st.Bounds == nil || len(st.Track) != 1 || st.LinkOpen {
		t.Fatalf("state=%+v", st)
	}
}

func TestHandleLine_MalformedChangesNothing(t *testing.T) {
	sink := &fakeSink{}
	p := New(Config{}, nil, sink)
	lines := []string{
		"",
		"boot ok",
		"120 45 22.5 37.7749 -122.4194",
		"Received Data: 120 45 22.5 37.7749",
		"Received Data: 120 45 22.5 37.7749 -122.4194 7",
	}
	for _, l := range lines {
		if p.HandleLine(l) {
			t.Fatalf("line %q accepted", l)
		}
	}
	if p.Labels() != telemetry.InitialLabels() {
		t.Fatalf("labels changed: %+v", p.Labels())
	}
	if len(p.Track()) != 0 || sink.plots != 0 || len(sink.states) != 0 {
		t.Fatalf("track=%d plots=%d states=%d", len(p.Track()), sink.plots, len(sink.states))
	}
}

func TestHandleLine_BadCoordinatesUpdateLabelsOnly(t *testing.T) {
	sink := &fakeSink{}
	p := New(Config{}, nil, sink)
	if p.HandleLine("Received Data: 120 45 22.5 nofix nofix") {
		t.Fatalf("line with bad coordinates accepted")
	}
	if p.Labels().Latitude != "Latitude: nofix" || p.Labels().Gas != "Gas: 120ppm" {
		t.Fatalf("labels=%+v", p.Labels())
	}
	if len(p.Track()) != 0 || sink.plots != 0 {
		t.Fatalf("track must not grow on bad coordinates")
	}
}

func TestHandleLine_TrackKeepsAppendOrder(t *testing.T) {
	p := New(Config{}, nil, nil)
	lines := []string{
		"Received Data: 1 1 1 10.0 20.0",
		"Received Data: 1 1 1 11.0 21.0",
		"Received Data: 1 1 1 10.0 20.0",
	}
	for _, l := range lines {
		p.HandleLine(l)
	}
	want := []track.Point{{Lon: 20, Lat: 10}, {Lon: 21, Lat: 11}, {Lon: 20, Lat: 10}}
	got := p.Track()
	if len(got) != len(want) {
		t.Fatalf("len=%d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("point %d=%+v want %+v", i, got[i], want[i])
		}
	}
}

func TestHandleKey_WritesForwardOnce(t *testing.T) {
	port := &recordingPort{}
	p := New(Config{}, link.New("fake", port), nil)

	if !p.HandleKey("w") {
		t.Fatalf("expected command sent")
	}
	if port.written.String() != "Forward\n" || port.writes != 1 {
		t.Fatalf("written=%q writes=%d", port.written.String(), port.writes)
	}

	if p.HandleKey("x") {
		t.Fatalf("unbound key sent a command")
	}
	if port.writes != 1 {
		t.Fatalf("unbound key wrote to the link")
	}
}

func TestDispatch_ClosedLinkDrops(t *testing.T) {
	var nilLink *link.Link
	p := New(Config{}, nilLink, nil)
	if p.Dispatch(link.Stop) {
		t.Fatalf("nil link must drop commands")
	}

	port := &recordingPort{}
	l := link.New("fake", port)
	l.Close()
	p = New(Config{}, l, nil)
	if p.HandleKey("f") {
		t.Fatalf("closed link must drop commands")
	}
	if port.writes != 0 {
		t.Fatalf("closed link wrote %q", port.written.String())
	}

	p = New(Config{}, nil, nil)
	if p.Dispatch(link.Mode) {
		t.Fatalf("panel without link must drop commands")
	}
}

func TestHandleInput_Buttons(t *testing.T) {
	port := &recordingPort{}
	p := New(Config{}, link.New("fake", port), nil)

	p.HandleInput(Input{Command: link.CamReset})
	p.HandleInput(Input{Command: "Jump"})
	p.HandleInput(Input{Key: "M"})
	if got := port.written.String(); got != "Cam_Reset\nMode\n" {
		t.Fatalf("written=%q", got)
	}
}

func TestHandleFrame_ReplacesFrame(t *testing.T) {
	sink := &fakeSink{}
	p := New(Config{}, nil, sink)
	f1 := &video.Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 4))}
	f2 := &video.Frame{Image: image.NewRGBA(image.Rect(0, 0, 8, 6))}
	p.HandleFrame(f1)
	p.HandleFrame(nil)
	p.HandleFrame(f2)
	if p.Frame() != f2 {
		t.Fatalf("frame not replaced")
	}
	if len(sink.frames) != 2 {
		t.Fatalf("frames published=%d want 2", len(sink.frames))
	}
	if s := p.Snapshot(); s.Frames != 2 || s.FrameSize != "(8,6)" {
		t.Fatalf("snapshot=%+v", s)
	}
}

func TestRun_DrainsChannels(t *testing.T) {
	sink := &fakeSink{}
	port := &recordingPort{}
	p := New(Config{}, link.New("fake", port), sink)

	lines := make(chan string)
	frames := make(chan *video.Frame)
	inputs := make(chan Input)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, lines, frames, inputs)
		close(done)
	}()

	lines <- "Received Data: 1 2 3 4 5"
	inputs <- Input{Key: "d"}
	frames <- &video.Frame{Image: image.NewRGBA(image.Rect(0, 0, 2, 2))}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return on cancel")
	}
	if sink.stateCount() != 2 {
		t.Fatalf("states=%d want 2 (initial + reading)", sink.stateCount())
	}
	if port.written.String() != "Right\n" {
		t.Fatalf("written=%q", port.written.String())
	}
	if len(p.Track()) != 1 || p.Frame() == nil {
		t.Fatalf("track=%d frame=%v", len(p.Track()), p.Frame())
	}
}
