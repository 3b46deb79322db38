package telemetry

import (
	"errors"
	"strconv"
	"testing"
)

func TestParse_SampleLine(t *testing.T) {
	r, err := Parse("Received Data: 120 45 22.5 37.7749 -122.4194")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if r.Latitude != 37.7749 || r.Longitude != -122.4194 {
		t.Fatalf("lat/lon=%v/%v", r.Latitude, r.Longitude)
	}

	want := Labels{
		Gas:         "Gas: 120ppm",
		Humidity:    "Humidity: 45%",
		Temperature: "Temperature: 22.5 C",
		Latitude:    "Latitude: 37.7749",
		Longitude:   "Longitude: -122.4194",
	}
	if got := r.Labels(); got != want {
		t.Fatalf("labels=%+v\nwant %+v", got, want)
	}
}

func TestParse_FieldsKeepTokenText(t *testing.T) {
	r, err := Parse("Received Data: 0120 45.0 +22.50 37.77490 -122.4194")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if r.Gas != "0120" || r.Humidity != "45.0" || r.Temperature != "+22.50" || r.LatText != "37.77490" {
		t.Fatalf("tokens not kept verbatim: %+v", r)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := []struct {
		name string
		line string
		want error
	}{
		{"Empty", "", ErrNoMarker},
		{"NoMarker", "120 45 22.5 37.7749 -122.4194", ErrNoMarker},
		{"LowercaseMarker", "received data: 120 45 22.5 37.7749 -122.4194", ErrNoMarker},
		{"FourFields", "Received Data: 120 45 22.5 37.7749", ErrFieldCount},
		{"SixFields", "Received Data: 120 45 22.5 37.7749 -122.4194 9", ErrFieldCount},
		{"NoFields", "Received Data:", ErrFieldCount},
		{"MarkerWithoutSpace", "Received Data:120 45 22.5 37.7749 -122.4194", ErrFieldCount},
		{"LeadingChatter", "rx Received Data: 120 45 22.5 37.7749 -122.4194", ErrFieldCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.line)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
		})
	}
}

func TestParse_ExtraWhitespace(t *testing.T) {
	r, err := Parse("  Received Data: 1\t2   3 4.5  6.5  ")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if r.Gas != "1" || r.Longitude != 6.5 {
		t.Fatalf("reading=%+v", r)
	}
}

func TestParse_BadCoordinate(t *testing.T) {
	r, err := Parse("Received Data: 120 45 22.5 north -122.4194")
	var cerr *CoordinateError
	if !errors.As(err, &cerr) {
		t.Fatalf("err=%v want *CoordinateError", err)
	}
	if cerr.Field != "latitude" || cerr.Token != "north" {
		t.Fatalf("coordinate error=%+v", cerr)
	}
	if !errors.Is(err, strconv.ErrSyntax) {
		t.Fatalf("expected wrapped strconv.ErrSyntax, got %v", err)
	}
	if r.Labels().Latitude != "Latitude: north" {
		t.Fatalf("labels should still carry tokens: %+v", r.Labels())
	}

	_, err = Parse("Received Data: 120 45 22.5 37.7 west")
	if !errors.As(err, &cerr) || cerr.Field != "longitude" {
		t.Fatalf("err=%v want longitude CoordinateError", err)
	}
}

func TestInitialLabels(t *testing.T) {
	l := InitialLabels()
	if l.Gas != "Gas: 0" || l.Latitude != "Latitude: N/A" {
		t.Fatalf("initial labels=%+v", l)
	}
}
