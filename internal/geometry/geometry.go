// Package geometry provides the planar measurement math for calibrated maps:
// coordinate types, distance and bearing from the origin, and polygon area.
package geometry

import "math"

// PixelCoords is a position in image-pixel space. The origin is the image
// top-left corner and Y grows downward.
type PixelCoords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RealCoords is a position in the user-defined real-world Cartesian plane.
// Y grows upward, opposite to pixel space.
type RealCoords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Measurement is the polar view of a real-world position as seen from the
// plane origin.
type Measurement struct {
	Distance float64 `json:"distance"`
	Bearing  float64 `json:"bearing"`
}

// PixelDistance returns the Euclidean distance between two pixel positions.
func PixelDistance(a, b PixelCoords) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// NormalizeDegrees reduces an angle to the canonical [0, 360) range.
// Negative inputs wrap around, so NormalizeDegrees(-90) == 270.
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// DistanceAndBearing measures a real-world position relative to the plane
// origin. The bearing is in degrees, clockwise from the positive-Y axis
// ("north"), then offset by referenceDirectionDeg and normalized to
// [0, 360). referenceDirectionDeg itself may be any value; it is normalized
// on use.
//
// At the origin itself the bearing is mathematically undefined; this
// function returns bearing 0 for the zero vector rather than relying on
// the platform's atan2(0, 0).
func DistanceAndBearing(r RealCoords, referenceDirectionDeg float64) Measurement {
	distance := math.Hypot(r.X, r.Y)
	if r.X == 0 && r.Y == 0 {
		return Measurement{Distance: 0, Bearing: 0}
	}

	// atan2(x, y) measures clockwise from the positive-Y axis.
	rawDeg := math.Atan2(r.X, r.Y) * 180 / math.Pi
	bearing := NormalizeDegrees(rawDeg - referenceDirectionDeg)

	// Normalization can land exactly on 360 after floating-point rounding;
	// the range contract is [0, 360).
	if bearing >= 360 {
		bearing = 0
	}

	return Measurement{Distance: distance, Bearing: bearing}
}

// PolygonArea returns the area enclosed by the ordered vertex sequence
// using the shoelace formula. The winding direction does not affect the
// result. Fewer than 3 vertices enclose nothing and yield 0; callers must
// not treat that as a valid area. Self-intersecting polygons produce a
// well-defined but not necessarily meaningful value.
func PolygonArea(vertices []RealCoords) float64 {
	n := len(vertices)
	if n < 3 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += vertices[i].X*vertices[j].Y - vertices[j].X*vertices[i].Y
	}
	return math.Abs(sum) / 2
}
