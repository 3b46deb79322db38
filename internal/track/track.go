// Package track accumulates the rover's GPS fixes and renders them as a plot.
package track

// Point is one GPS fix in plot order: X is longitude, Y is latitude.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// singlePointBuffer is the half-width of each axis when only one fix exists.
const singlePointBuffer = 0.001

// marginFraction of the data span is added on both sides of each axis.
const marginFraction = 0.1

// Track is the ordered, append-only history of fixes. It is owned by a
// single goroutine and is not safe for concurrent use.
type Track struct {
	points []Point
}

// Bounds is the visible region of the plot.
type Bounds struct {
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
}

// Append adds a fix at the end of the track.
func (t *Track) Append(lon, lat float64) {
	t.points = append(t.points, Point{Lon: lon, Lat: lat})
}

// Len returns the number of fixes.
func (t *Track) Len() int { return len(t.points) }

// Points returns a copy of the fixes in append order.
func (t *Track) Points() []Point {
	out := make([]Point, len(t.points))
	copy(out, t.points)
	return out
}

// Last returns the most recent fix.
func (t *Track) Last() (Point, bool) {
	if len(t.points) == 0 {
		return Point{}, false
	}
	return t.points[len(t.points)-1], true
}

// Bounds returns the plot limits: the data range widened by 10% of its span
// on each side, or ±0.001 around a lone fix. ok is false for an empty track.
func (t *Track) Bounds() (b Bounds, ok bool) {
	if len(t.points) == 0 {
		return Bounds{}, false
	}
	first := t.points[0]
	b = Bounds{MinLon: first.Lon, MaxLon: first.Lon, MinLat: first.Lat, MaxLat: first.Lat}
	for _, p := range t.points[1:] {
		b.MinLon = min(b.MinLon, p.Lon)
		b.MaxLon = max(b.MaxLon, p.Lon)
		b.MinLat = min(b.MinLat, p.Lat)
		b.MaxLat = max(b.MaxLat, p.Lat)
	}

	lonBuf, latBuf := singlePointBuffer, singlePointBuffer
	if len(t.points) > 1 {
		lonBuf = (b.MaxLon - b.MinLon) * marginFraction
		latBuf = (b.MaxLat - b.MinLat) * marginFraction
	}
	b.MinLon -= lonBuf
	b.MaxLon += lonBuf
	b.MinLat -= latBuf
	b.MaxLat += latBuf
	return b, true
}
