// Package calibration derives a pixels-per-unit scale factor from two
// reference clicks and a known physical distance, and maps pixel positions
// onto the real-world Cartesian plane once an origin is placed.
package calibration

import (
	"errors"

	"github.com/quaywood/mapmeasure/internal/geometry"
)

// Calibration errors.
var (
	// ErrNonPositiveDistance is returned when the known reference distance
	// is zero or negative.
	ErrNonPositiveDistance = errors.New("known distance must be positive")

	// ErrNoKnownDistance is returned when a calibration point is captured
	// before a known distance has been supplied.
	ErrNoKnownDistance = errors.New("known distance not set")

	// ErrDegenerate is returned when both calibration clicks land on the
	// same pixel, which would make the scale infinite.
	ErrDegenerate = errors.New("degenerate calibration: reference points are identical")

	// ErrAlreadyCalibrated is returned when a third calibration point is
	// captured without a reset.
	ErrAlreadyCalibrated = errors.New("calibration already complete")

	// ErrNotCalibrated is returned when an operation requires a derived
	// scale that does not exist yet.
	ErrNotCalibrated = errors.New("scale not derived yet")

	// ErrNoOrigin is returned when a coordinate transform is requested
	// before the origin has been placed.
	ErrNoOrigin = errors.New("origin not set")
)

// Model holds the calibration state for one map: the pending reference
// clicks, the derived scale (pixels per real-world unit) and the pixel
// position mapped to real-world (0, 0).
//
// The scale is defined if and only if both reference points were captured
// with a positive known distance; it is never Inf or NaN. The zero value
// is an uncalibrated model ready for use.
type Model struct {
	knownDistance float64
	first         *geometry.PixelCoords
	second        *geometry.PixelCoords
	scale         float64
	origin        *geometry.PixelCoords
}

// SetKnownDistance records the physical distance between the two reference
// clicks about to be captured. Rejects non-positive values. May be called
// again to correct the value until the second reference click lands.
func (m *Model) SetKnownDistance(d float64) error {
	if d <= 0 {
		return ErrNonPositiveDistance
	}
	if m.Calibrated() {
		return ErrAlreadyCalibrated
	}
	m.knownDistance = d
	return nil
}

// KnownDistance returns the recorded reference distance, 0 if unset.
func (m *Model) KnownDistance() float64 {
	return m.knownDistance
}

// CapturePoint records a calibration reference click. The first call
// leaves the model half-calibrated; the second derives the scale. A second
// click on the exact pixel of the first is rejected with ErrDegenerate and
// the first point is kept, so the caller can re-prompt for the second
// click only.
func (m *Model) CapturePoint(p geometry.PixelCoords) error {
	if m.knownDistance <= 0 {
		return ErrNoKnownDistance
	}
	if m.Calibrated() {
		return ErrAlreadyCalibrated
	}

	if m.first == nil {
		m.first = &p
		return nil
	}

	pixels := geometry.PixelDistance(*m.first, p)
	if pixels == 0 {
		return ErrDegenerate
	}

	m.second = &p
	m.scale = pixels / m.knownDistance
	return nil
}

// Calibrated reports whether the scale has been derived.
func (m *Model) Calibrated() bool {
	return m.scale > 0
}

// Scale returns the derived pixels-per-unit factor.
func (m *Model) Scale() (float64, error) {
	if !m.Calibrated() {
		return 0, ErrNotCalibrated
	}
	return m.scale, nil
}

// ReferencePoints returns the captured calibration clicks, in capture
// order. Needed for full-fidelity overlay export.
func (m *Model) ReferencePoints() []geometry.PixelCoords {
	var points []geometry.PixelCoords
	if m.first != nil {
		points = append(points, *m.first)
	}
	if m.second != nil {
		points = append(points, *m.second)
	}
	return points
}

// SetOrigin places the pixel position that maps to real-world (0, 0).
// Valid only once the scale is derived. Calling it again moves the origin;
// whether a move is still allowed is the workflow's decision, not this
// model's.
func (m *Model) SetOrigin(p geometry.PixelCoords) error {
	if !m.Calibrated() {
		return ErrNotCalibrated
	}
	m.origin = &p
	return nil
}

// Origin returns the origin pixel position and whether it has been set.
func (m *Model) Origin() (geometry.PixelCoords, bool) {
	if m.origin == nil {
		return geometry.PixelCoords{}, false
	}
	return *m.origin, true
}

// Measurable reports whether pixel positions can be mapped to real-world
// coordinates, i.e. both scale and origin are in place.
func (m *Model) Measurable() bool {
	return m.Calibrated() && m.origin != nil
}

// ToReal maps a pixel position onto the real-world plane. The pixel Y axis
// points down, the real Y axis points up, hence the flipped numerator.
func (m *Model) ToReal(p geometry.PixelCoords) (geometry.RealCoords, error) {
	if !m.Calibrated() {
		return geometry.RealCoords{}, ErrNotCalibrated
	}
	if m.origin == nil {
		return geometry.RealCoords{}, ErrNoOrigin
	}
	return geometry.RealCoords{
		X: (p.X - m.origin.X) / m.scale,
		Y: (m.origin.Y - p.Y) / m.scale,
	}, nil
}

// ToPixel is the inverse of ToReal, reconstructing the pixel position for
// a real-world coordinate.
func (m *Model) ToPixel(r geometry.RealCoords) (geometry.PixelCoords, error) {
	if !m.Calibrated() {
		return geometry.PixelCoords{}, ErrNotCalibrated
	}
	if m.origin == nil {
		return geometry.PixelCoords{}, ErrNoOrigin
	}
	return geometry.PixelCoords{
		X: m.origin.X + r.X*m.scale,
		Y: m.origin.Y - r.Y*m.scale,
	}, nil
}

// Reset clears everything: pending points, scale, origin and the known
// distance.
func (m *Model) Reset() {
	*m = Model{}
}
