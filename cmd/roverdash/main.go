package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/shaunagostinho/roverdash/internal/bridge"
	"github.com/shaunagostinho/roverdash/internal/link"
	"github.com/shaunagostinho/roverdash/internal/logger"
	"github.com/shaunagostinho/roverdash/internal/panel"
	"github.com/shaunagostinho/roverdash/internal/server"
	"github.com/shaunagostinho/roverdash/internal/telemetry"
	"github.com/shaunagostinho/roverdash/internal/track"
	"github.com/shaunagostinho/roverdash/internal/video"
	"github.com/shaunagostinho/roverdash/web"
)

func main() {
	configPath := flag.String("config", "/etc/roverdash/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with a simulated rover on the serial link")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] roverdash starting")

	cfg := server.LoadConfig(*configPath)

	if *demo {
		cfg.Serial.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	// Serial link. A failed open is reported once; the panel runs without
	// telemetry and drops every command.
	rover := openLink(cfg.Serial)
	defer rover.Close()
	if rover.IsOpen() {
		log.Printf("[main] rover link on %s", rover.Name())
	}

	// Reading sinks
	var recorders []panel.Recorder
	rec := logger.New(logger.Config{
		Enabled:    cfg.Logging.Enabled,
		Path:       cfg.Logging.Path,
		Format:     cfg.Logging.Format,
		IntervalMs: cfg.Logging.Interval,
	})
	defer rec.Close()
	recorders = append(recorders, rec)

	if cfg.MQTT.Enabled {
		pub, err := bridge.Connect(bridge.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
		})
		if err != nil {
			log.Printf("[mqtt] %v (bridge disabled)", err)
		} else {
			defer pub.Close()
			recorders = append(recorders, pub)
		}
	}

	lines := make(chan string, 16)
	frames := make(chan *video.Frame, 1)
	inputs := make(chan panel.Input, 16)

	srv := server.New(cfg, inputs, web.FS)
	srv.SetRecorder(rec)
	p := panel.New(panel.Config{
		Plot:  track.RenderOptions{Width: cfg.Plot.Width, Height: cfg.Plot.Height},
		Debug: cfg.Debug,
	}, rover, srv, recorders...)

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { telemetry.NewReader(rover, cfg.Serial.Idle()).Run(ctx, lines) })
	if cfg.Camera.Enabled {
		poller := video.NewPoller(video.Config{
			BaseURL:     cfg.Camera.BaseURL,
			CapturePath: cfg.Camera.CapturePath,
			Timeout:     cfg.Camera.Timeout(),
			MaxFPS:      cfg.Camera.MaxFPS,
		})
		log.Printf("[video] polling %s", poller.URL())
		run(func() { poller.Run(ctx, frames) })
	}
	run(func() { p.Run(ctx, lines, frames, inputs) })

	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
	cancel()
	// Unblock a reader parked in a serial read.
	rover.Close()
	wg.Wait()
	log.Println("[main] stopped")
}

// openLink returns the rover link for cfg, or nil if it is disabled or the
// device could not be opened.
func openLink(cfg server.SerialConfig) *link.Link {
	switch cfg.Type {
	case "disabled":
		log.Printf("[serial] disabled")
		return nil
	case "demo":
		log.Printf("[serial] using simulated rover")
		return link.New("demo", link.NewDemoPort(0))
	}
	l, err := link.Open(link.Config{
		PortPath:    cfg.PortPath,
		BaudRate:    cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout(),
	})
	if err != nil {
		log.Printf("[serial] Failed to open serial port! %v", err)
		return nil
	}
	return l
}
