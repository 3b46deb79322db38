// Package video polls a still-image endpoint on the rover camera and turns
// each response into a displayable frame.
package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/ratelimit"
	"golang.org/x/image/draw"

	"github.com/shaunagostinho/roverdash/internal/metrics"
)

// Frame is one decoded camera image.
type Frame struct {
	Image *image.RGBA
	Bytes int       // size of the encoded response body
	At    time.Time // when it was decoded
}

// Config holds camera endpoint settings.
type Config struct {
	BaseURL     string
	CapturePath string
	Timeout     time.Duration
	MaxFPS      int // 0 = unlimited
}

// Poller fetches frames back to back, retrying immediately on any failure.
type Poller struct {
	url     string
	client  *http.Client
	limiter ratelimit.Limiter

	failures int
}

// errStatus marks a non-200 response.
var errStatus = errors.New("video: unexpected status")

// NewPoller creates a poller for cfg.BaseURL + cfg.CapturePath.
func NewPoller(cfg Config) *Poller {
	if cfg.CapturePath == "" {
		cfg.CapturePath = "/capture"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.MaxFPS > 0 {
		limiter = ratelimit.New(cfg.MaxFPS)
	}
	return &Poller{
		url:     strings.TrimRight(cfg.BaseURL, "/") + cfg.CapturePath,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// URL returns the capture endpoint being polled.
func (p *Poller) URL() string { return p.url }

// Run fetches frames and delivers them on out until ctx is done. Failures
// are never reported to the panel.
func (p *Poller) Run(ctx context.Context, out chan<- *Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.limiter.Take()
		frame, err := p.Fetch(ctx)
		if err != nil {
			metrics.VideoFailures.Inc()
			if p.failures == 0 && ctx.Err() == nil {
				log.Printf("[video] stream down: %v", err)
			}
			p.failures++
			continue
		}
		metrics.VideoFrames.Inc()
		if p.failures > 0 {
			log.Printf("[video] stream up: %dx%d frame, %s, after %d failed fetches",
				frame.Image.Rect.Dx(), frame.Image.Rect.Dy(), humanize.Bytes(uint64(frame.Bytes)), p.failures)
			p.failures = 0
		}

		select {
		case <-ctx.Done():
			return
		case out <- frame:
		}
	}
}

// Fetch performs one capture request and decodes the body.
func (p *Poller) Fetch(ctx context.Context) (*Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("video: build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video: get %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s", errStatus, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("video: read body: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("video: decode: %w", err)
	}
	return &Frame{Image: toRGBA(img), Bytes: len(body), At: time.Now()}, nil
}

// toRGBA converts any decoded image (JPEG decodes to YCbCr) to packed RGBA
// anchored at the origin.
func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
