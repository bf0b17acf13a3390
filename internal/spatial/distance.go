package spatial

import (
	"fmt"

	"github.com/golang/geo/s2"
)

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// LonLat is a geographic coordinate in degrees
type LonLat struct {
	Lon float64 `yaml:"lon" json:"lon"`
	Lat float64 `yaml:"lat" json:"lat"`
}

// Jurisdiction is the outer boundary of the area covered by the stream
// network, held as a spherical loop so containment is exact regardless of
// projection.
type Jurisdiction struct {
	loop *s2.Loop
}

// NewJurisdiction builds a jurisdiction from a boundary ring. The ring may be
// open or closed and in either orientation.
func NewJurisdiction(ring []LonLat) (*Jurisdiction, error) {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("jurisdiction boundary needs at least 3 vertices, got %d", len(ring))
	}

	points := make([]s2.Point, len(ring))
	for i, v := range ring {
		points[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(v.Lat, v.Lon))
	}
	loop := s2.LoopFromPoints(points)
	// orient so the loop covers the smaller side
	loop.Normalize()

	return &Jurisdiction{loop: loop}, nil
}

// Contains reports whether the coordinate is inside the boundary
func (j *Jurisdiction) Contains(p LonLat) bool {
	return j.loop.ContainsPoint(s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon)))
}

// DistanceToVertex returns the distance in meters from p to the nearest
// boundary vertex. Used to describe how far outside a point sits.
func (j *Jurisdiction) DistanceToVertex(p LonLat) float64 {
	best := -1.0
	for _, v := range j.loop.Vertices() {
		ll := s2.LatLngFromPoint(v)
		d := HaversineDistance(p.Lat, p.Lon, ll.Lat.Degrees(), ll.Lng.Degrees())
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
)
