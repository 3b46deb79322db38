package logger

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shaunagostinho/roverdash/internal/telemetry"
)

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS readings (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp   TEXT NOT NULL,
    gas         TEXT NOT NULL,
    humidity    TEXT NOT NULL,
    temperature TEXT NOT NULL,
    latitude    REAL NOT NULL,
    longitude   REAL NOT NULL
)`

	insertReadingSQL = `
INSERT INTO readings (timestamp,
                      gas,
                      humidity,
                      temperature,
                      latitude,
                      longitude)
VALUES (?, ?, ?, ?, ?, ?)`
)

type sqliteSink struct {
	path string
	db   *sql.DB
	stmt *sql.Stmt
}

func openSQLite(path string) (*sqliteSink, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, "_journal_mode=WAL&_synchronous=NORMAL"))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := db.Exec(initSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	stmt, err := db.Prepare(insertReadingSQL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	log.Printf("[logger] opened %s", path)
	return &sqliteSink{path: path, db: db, stmt: stmt}, nil
}

func (s *sqliteSink) insert(ts time.Time, r telemetry.Reading) error {
	_, err := s.stmt.Exec(ts.Format(time.RFC3339Nano), r.Gas, r.Humidity, r.Temperature, r.Latitude, r.Longitude)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

func (s *sqliteSink) close() error {
	if err := s.stmt.Close(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}
