// Package logger records accepted telemetry readings to rotating CSV files
// or to a SQLite database.
package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/shaunagostinho/roverdash/internal/telemetry"
)

// Output formats.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Logger records timestamped telemetry with automatic file rotation.
type Logger struct {
	mu       sync.Mutex
	dir      string
	format   string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	db     *sqliteSink
	lastTs time.Time
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	Format     string `yaml:"format" json:"format"`          // "csv" or "sqlite"
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"` // 0 = every reading
}

const (
	maxRowsPerFile = 100_000 // ~28 hrs at 1 Hz
)

var csvHeader = []string{
	"timestamp", "gas_ppm", "humidity_pct", "temperature_c", "latitude", "longitude",
}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/roverdash"
	}
	if cfg.Format == "" {
		cfg.Format = FormatCSV
	}
	return &Logger{
		dir:      cfg.Path,
		format:   cfg.Format,
		interval: time.Duration(cfg.IntervalMs) * time.Millisecond,
		enabled:  cfg.Enabled,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on {
		l.closeOutputs()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record writes a reading if the minimum interval has elapsed.
func (l *Logger) Record(r telemetry.Reading) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	now := time.Now()
	if l.interval > 0 && now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	var err error
	switch l.format {
	case FormatSQLite:
		err = l.recordSQLite(now, r)
	default:
		err = l.recordCSV(now, r)
	}
	if err != nil {
		log.Printf("[logger] %v", err)
	}
}

// Close flushes and closes the current output.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeOutputs()
}

func (l *Logger) recordCSV(now time.Time, r telemetry.Reading) error {
	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			return fmt.Errorf("rotate failed: %w", err)
		}
	}
	if err := l.writer.Write(buildRow(now, r)); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	l.writer.Flush()
	l.rows++
	return l.writer.Error()
}

func (l *Logger) recordSQLite(now time.Time, r telemetry.Reading) error {
	if l.db == nil {
		if err := os.MkdirAll(l.dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", l.dir, err)
		}
		db, err := openSQLite(filepath.Join(l.dir, "telemetry.db"))
		if err != nil {
			return err
		}
		l.db = db
	}
	return l.db.insert(now, r)
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("rover_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[logger] opened %s", path)
	return nil
}

func (l *Logger) closeOutputs() {
	l.closeFile()
	if l.db != nil {
		if err := l.db.close(); err != nil {
			log.Printf("[logger] close sqlite: %v", err)
		}
		l.db = nil
	}
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		if st, err := l.file.Stat(); err == nil {
			log.Printf("[logger] closed %s (%d rows, %s)", l.file.Name(), l.rows, humanize.Bytes(uint64(st.Size())))
		}
		l.file.Close()
		l.file = nil
	}
}

func buildRow(ts time.Time, r telemetry.Reading) []string {
	return []string{
		ts.Format(time.RFC3339Nano),
		r.Gas,
		r.Humidity,
		r.Temperature,
		fmt.Sprintf("%.6f", r.Latitude),
		fmt.Sprintf("%.6f", r.Longitude),
	}
}
