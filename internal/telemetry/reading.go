// Package telemetry parses the rover's fixed five-field telemetry lines and
// runs the loop that pulls them off the serial link.
package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Marker identifies a telemetry line. Anything else on the link is chatter.
const Marker = "Received Data:"

// markerPrefix is what gets removed before splitting; a marker not followed
// by a space stays in the text and makes the field count wrong.
const markerPrefix = Marker + " "

const fieldCount = 5

var (
	ErrNoMarker   = errors.New("telemetry: marker not found")
	ErrFieldCount = errors.New("telemetry: wrong field count")
)

// CoordinateError reports a latitude or longitude token that is not a number.
type CoordinateError struct {
	Field string
	Token string
	Err   error
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("telemetry: %s %q: %v", e.Field, e.Token, e.Err)
}

func (e *CoordinateError) Unwrap() error { return e.Err }

// Reading is one telemetry line split into its fields. Gas, Humidity and
// Temperature are kept as sent; the firmware formats them.
type Reading struct {
	Gas         string `json:"gas"`         // ppm
	Humidity    string `json:"humidity"`    // %
	Temperature string `json:"temperature"` // °C
	LatText     string `json:"latText"`
	LonText     string `json:"lonText"`

	Latitude  float64 `json:"latitude"`  // Decimal degrees
	Longitude float64 `json:"longitude"` // Decimal degrees
}

// Labels are the display strings for the five telemetry fields.
type Labels struct {
	Gas         string `json:"gas"`
	Humidity    string `json:"humidity"`
	Temperature string `json:"temperature"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
}

// InitialLabels is what the panel shows before the first reading.
func InitialLabels() Labels {
	return Labels{
		Gas:         "Gas: 0",
		Humidity:    "Humidity: 0%",
		Temperature: "Temperature: 0 C",
		Latitude:    "Latitude: N/A",
		Longitude:   "Longitude: N/A",
	}
}

// Split extracts the five raw fields of a telemetry line.
func Split(line string) ([]string, error) {
	if !strings.Contains(line, Marker) {
		return nil, ErrNoMarker
	}
	fields := strings.Fields(strings.ReplaceAll(line, markerPrefix, ""))
	if len(fields) != fieldCount {
		return fields, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(fields), fieldCount)
	}
	return fields, nil
}

// Parse splits line and converts the coordinates. On a *CoordinateError the
// returned Reading still carries all five tokens, so labels can be shown.
func Parse(line string) (Reading, error) {
	fields, err := Split(line)
	if err != nil {
		return Reading{}, err
	}
	r := Reading{
		Gas:         fields[0],
		Humidity:    fields[1],
		Temperature: fields[2],
		LatText:     fields[3],
		LonText:     fields[4],
	}
	if r.Latitude, err = strconv.ParseFloat(r.LatText, 64); err != nil {
		return r, &CoordinateError{Field: "latitude", Token: r.LatText, Err: err}
	}
	if r.Longitude, err = strconv.ParseFloat(r.LonText, 64); err != nil {
		return r, &CoordinateError{Field: "longitude", Token: r.LonText, Err: err}
	}
	return r, nil
}

// Labels formats the reading with its units.
func (r Reading) Labels() Labels {
	return Labels{
		Gas:         "Gas: " + r.Gas + "ppm",
		Humidity:    "Humidity: " + r.Humidity + "%",
		Temperature: "Temperature: " + r.Temperature + " C",
		Latitude:    "Latitude: " + r.LatText,
		Longitude:   "Longitude: " + r.LonText,
	}
}
