package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaunagostinho/roverdash/internal/link"
)

type scriptedSource struct {
	mu    sync.Mutex
	open  bool
	lines []string
	polls int
}

func (s *scriptedSource) IsOpen() bool { return s.open }

func (s *scriptedSource) ReadLine() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if len(s.lines) == 0 {
		return "", false, nil
	}
	l := s.lines[0]
	s.lines = s.lines[1:]
	return l, true, nil
}

func TestReader_DeliversLinesInOrder(t *testing.T) {
	src := &scriptedSource{open: true, lines: []string{"a", "b", "c"}}
	out := make(chan string, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewReader(src, time.Millisecond).Run(ctx, out)
		close(done)
	}()

	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-out:
			if got != want {
				t.Fatalf("line=%q want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reader did not stop on cancel")
	}
}

func TestReader_ClosedLinkIsNoOp(t *testing.T) {
	out := make(chan string)
	done := make(chan struct{})
	go func() {
		NewReader(&scriptedSource{open: false}, 0).Run(context.Background(), out)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reader on a closed link should return immediately")
	}
}

func TestReader_NilLinkIsNoOp(t *testing.T) {
	var l *link.Link
	done := make(chan struct{})
	go func() {
		NewReader(l, 0).Run(context.Background(), make(chan string))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reader on a nil link should return immediately")
	}
}

func TestReader_StopsWhenLinkCloses(t *testing.T) {
	l := link.New("demo", link.NewDemoPort(time.Hour))
	done := make(chan struct{})
	go func() {
		NewReader(l, time.Millisecond).Run(context.Background(), make(chan string))
		close(done)
	}()
	l.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("reader did not stop after link close")
	}
}

type failingSource struct {
	mu    sync.Mutex
	polls int
}

func (f *failingSource) IsOpen() bool { return true }

func (f *failingSource) ReadLine() (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return "", false, errors.New("input/output error")
}

func TestReader_StopsOnPersistentReadError(t *testing.T) {
	src := &failingSource{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		NewReader(src, 0).Run(ctx, make(chan string))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("reader kept polling a failing port")
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	if src.polls != 1 {
		t.Fatalf("polls=%d want 1", src.polls)
	}
}
