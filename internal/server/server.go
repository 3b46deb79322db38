package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/jpeg"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaunagostinho/roverdash/internal/link"
	"github.com/shaunagostinho/roverdash/internal/metrics"
	"github.com/shaunagostinho/roverdash/internal/panel"
	"github.com/shaunagostinho/roverdash/internal/video"
)

// inputTimeout bounds how long a browser request waits for the panel.
const inputTimeout = time.Second

// Server is the browser-facing side of the control panel. It implements
// panel.Sink and forwards button and key presses to the panel.
type Server struct {
	cfg    *Config
	webFS  fs.FS
	inputs chan<- panel.Input
	start  time.Time

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	recorder RecorderSwitch

	// Latest published output
	mu         sync.RWMutex
	state      *panel.State
	frameJPEG  []byte
	frameSeq   uint64
	frameSize  string
	frameBytes uint64 // total encoded bytes received from the camera
	plotPNG    []byte
	plotSeq    uint64
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// RecorderSwitch turns telemetry recording on and off while running.
type RecorderSwitch interface {
	SetEnabled(on bool)
	IsEnabled() bool
}

// Message is the JSON structure sent to all WebSocket clients.
type Message struct {
	State    *panel.State `json:"state,omitempty"`
	FrameSeq uint64       `json:"frameSeq,omitempty"` // a new frame is at /api/frame.jpg
	PlotSeq  uint64       `json:"plotSeq,omitempty"`  // a new plot is at /api/track.png
	Stamp    int64        `json:"stamp"`              // Unix ms
}

// Status is the /api/status payload.
type Status struct {
	Started     string `json:"started"`
	Clients     int    `json:"clients"`
	LinkOpen    bool   `json:"linkOpen"`
	TrackPoints int    `json:"trackPoints"`
	Frames      uint64 `json:"frames"`
	FrameSize   string `json:"frameSize,omitempty"`
	VideoBytes  string `json:"videoBytes"`
	Recording   bool   `json:"recording"`
}

// New creates a new Server. User input is delivered on inputs.
func New(cfg *Config, inputs chan<- panel.Input, webFS fs.FS) *Server {
	return &Server{
		cfg:     cfg,
		webFS:   webFS,
		inputs:  inputs,
		start:   time.Now(),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetRecorder lets config updates toggle recording without a restart.
func (s *Server) SetRecorder(r RecorderSwitch) {
	s.recorder = r
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve embedded web files
	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}

	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/frame.jpg", s.handleFrame)
	mux.HandleFunc("/api/track.png", s.handlePlot)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// PublishState stores the snapshot and pushes it to every client.
func (s *Server) PublishState(st panel.State) {
	s.mu.Lock()
	s.state = &st
	plotSeq := s.plotSeq
	s.mu.Unlock()

	s.broadcast(Message{State: &st, PlotSeq: plotSeq, Stamp: time.Now().UnixMilli()})
}

// PublishFrame encodes the frame once and tells clients to fetch it.
func (s *Server) PublishFrame(f *video.Frame) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: s.jpegQuality()}); err != nil {
		log.Printf("[server] encode frame: %v", err)
		return
	}

	s.mu.Lock()
	s.frameJPEG = buf.Bytes()
	s.frameSeq++
	s.frameSize = f.Image.Rect.Size().String()
	s.frameBytes += uint64(f.Bytes)
	seq := s.frameSeq
	s.mu.Unlock()

	s.broadcast(Message{FrameSeq: seq, Stamp: time.Now().UnixMilli()})
}

// PublishPlot stores the rendered track; the next state message carries
// its sequence number.
func (s *Server) PublishPlot(png []byte) {
	s.mu.Lock()
	s.plotPNG = png
	s.plotSeq++
	s.mu.Unlock()
}

func (s *Server) jpegQuality() int {
	s.cfg.mu.RLock()
	defer s.cfg.mu.RUnlock()
	q := s.cfg.Camera.JPEGQuality
	if q <= 0 || q > 100 {
		q = jpeg.DefaultQuality
	}
	return q
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	metrics.WSClients.Set(float64(n))

	log.Printf("[ws] client connected (%d total)", n)

	// Send the current picture
	s.mu.RLock()
	hello := Message{State: s.state, FrameSeq: s.frameSeq, PlotSeq: s.plotSeq, Stamp: time.Now().UnixMilli()}
	s.mu.RUnlock()
	if data, err := json.Marshal(hello); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine: button and key presses
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			s.clientsMu.Unlock()
			metrics.WSClients.Set(float64(n))
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", n)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var in panel.Input
			if err := json.Unmarshal(data, &in); err != nil {
				log.Printf("[ws] bad message: %v", err)
				continue
			}
			s.submit(in)
		}
	}()
}

// submit hands a user action to the panel goroutine.
func (s *Server) submit(in panel.Input) bool {
	select {
	case s.inputs <- in:
		return true
	case <-time.After(inputTimeout):
		log.Printf("[server] panel busy, dropped input %+v", in)
		return false
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()
	if st == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data, seq := s.frameJPEG, s.frameSeq
	s.mu.RUnlock()
	serveImage(w, "image/jpeg", data, seq)
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data, seq := s.plotPNG, s.plotSeq
	s.mu.RUnlock()
	serveImage(w, "image/png", data, seq)
}

func serveImage(w http.ResponseWriter, contentType string, data []byte, seq uint64) {
	if len(data) == 0 {
		http.Error(w, "not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Sequence", strconv.FormatUint(seq, 10))
	w.Write(data)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in panel.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	switch {
	case in.Command != "":
		if _, ok := link.ParseCommand(string(in.Command)); !ok {
			http.Error(w, "unknown command", http.StatusBadRequest)
			return
		}
	case in.Key != "":
		if _, ok := link.CommandForKey(in.Key); !ok {
			http.Error(w, "unbound key", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "command or key required", http.StatusBadRequest)
		return
	}
	if !s.submit(in) {
		http.Error(w, "panel busy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"queued"}`))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		if s.recorder != nil {
			on := s.cfg.LoggingEnabled()
			if on != s.recorder.IsEnabled() {
				s.recorder.SetEnabled(on)
				log.Printf("[config] telemetry recording enabled=%v", on)
			}
		}
		log.Printf("[config] updated; link and camera settings apply on restart")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clients := len(s.clients)
	s.clientsMu.RUnlock()

	s.mu.RLock()
	st := Status{
		Started:    humanize.Time(s.start),
		Clients:    clients,
		Frames:     s.frameSeq,
		FrameSize:  s.frameSize,
		VideoBytes: humanize.Bytes(s.frameBytes),
	}
	if s.recorder != nil {
		st.Recording = s.recorder.IsEnabled()
	}
	if s.state != nil {
		st.LinkOpen = s.state.LinkOpen
		st.TrackPoints = len(s.state.Track)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

func (s *Server) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
