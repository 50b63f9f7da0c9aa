// Package session owns the measurement workflow: the interaction state
// machine, the calibration lifecycle and the point and area collections of
// a single map measurement session.
package session

import (
	"errors"
	"time"

	"github.com/quaywood/mapmeasure/internal/geometry"
)

// State identifies the current phase of the measurement workflow. Exactly
// one kind of input is meaningful in each state.
type State string

// Workflow states, in their natural order. Ready is the steady state; the
// naming and area states loop back into it.
const (
	// StateAwaitingImage: no map attached yet. Only an image attach or a
	// reset is accepted.
	StateAwaitingImage State = "awaiting_image"

	// StateCalibrateStart: waiting for the first reference click. The
	// known distance must be supplied before the click is accepted.
	StateCalibrateStart State = "calibrate_start"

	// StateCalibrateEnd: waiting for the second reference click, which
	// derives the scale.
	StateCalibrateEnd State = "calibrate_end"

	// StateSetOrigin: waiting for the click that places real-world (0, 0).
	StateSetOrigin State = "set_origin"

	// StateReady: the map is measurable. Clicks stage new points, the
	// start-area command opens a polygon.
	StateReady State = "ready"

	// StateNamingPoint: a point is staged and awaits a confirmed name or a
	// cancel.
	StateNamingPoint State = "naming_point"

	// StateDefiningArea: clicks append polygon vertices; finish-area
	// stages the area for naming once at least 3 vertices exist.
	StateDefiningArea State = "defining_area"

	// StateNamingArea: the polygon is closed and awaits a confirmed name
	// or a cancel back to vertex editing.
	StateNamingArea State = "naming_area"
)

// MinAreaVertices is the smallest vertex count that closes a polygon.
const MinAreaVertices = 3

// Workflow errors. All of them leave the session in the state it was in;
// re-issuing a corrected input from the same state always recovers.
var (
	// ErrSessionNotFound is returned by the store for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidState is returned when an input is not meaningful in the
	// current workflow state.
	ErrInvalidState = errors.New("input not valid in current state")

	// ErrImageAttached is returned when a second image attach is attempted
	// without a reset.
	ErrImageAttached = errors.New("image already attached")

	// ErrInvalidImage is returned for non-positive image dimensions.
	ErrInvalidImage = errors.New("image dimensions must be positive")

	// ErrOutOfBounds is returned when a click lands outside the attached
	// image.
	ErrOutOfBounds = errors.New("click outside image bounds")

	// ErrNotMeasurable is returned when a measurement is requested before
	// both scale and origin exist.
	ErrNotMeasurable = errors.New("session not measurable yet")

	// ErrEmptyName is returned when a confirm carries a name that is empty
	// after trimming.
	ErrEmptyName = errors.New("name must not be empty")

	// ErrInsufficientVertices is returned when finish-area is issued with
	// fewer than MinAreaVertices captured vertices.
	ErrInsufficientVertices = errors.New("area needs at least 3 vertices")

	// ErrOriginLocked is returned when an origin relocation is attempted
	// after measurement has begun.
	ErrOriginLocked = errors.New("origin is fixed once measurements exist")

	// ErrPointNotFound is returned for unknown point IDs.
	ErrPointNotFound = errors.New("point not found")

	// ErrAreaNotFound is returned for unknown area IDs.
	ErrAreaNotFound = errors.New("area not found")
)

// ImageMeta describes the attached raster map. Only metadata is kept; the
// decoded pixels belong to the presentation layer.
type ImageMeta struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format,omitempty"`
}

// Point is a named, measured position on the map. Name and PixelCoords are
// immutable after creation except through an explicit rename; Real,
// Distance and Bearing are derived at creation and only the bearing is
// re-derived when the reference direction changes.
type Point struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Pixel    geometry.PixelCoords `json:"pixel"`
	Real     geometry.RealCoords  `json:"real"`
	Distance float64              `json:"distance"`
	Bearing  float64              `json:"bearing"`
}

// Area is a named polygon with its enclosed real-world area. Vertices are
// full point captures but never join the session's point collection, and
// their bearings are not maintained after the area is finalized.
type Area struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Vertices []Point `json:"vertices"`
	RealArea float64 `json:"real_area"`
}

// PendingPoint is a staged point capture awaiting its name.
type PendingPoint struct {
	Pixel       geometry.PixelCoords `json:"pixel"`
	DefaultName string               `json:"default_name"`
}

// PendingArea is a closed polygon awaiting its name.
type PendingArea struct {
	DefaultName string `json:"default_name"`
}

// Preview is a transient measurement for the current cursor position. It
// is a pure function of the pixel coordinate and mutates nothing.
type Preview struct {
	Pixel    geometry.PixelCoords `json:"pixel"`
	Real     geometry.RealCoords  `json:"real"`
	Distance float64              `json:"distance"`
	Bearing  float64              `json:"bearing"`
}

// View is a read-only copy of a session document, safe to serialize
// without holding the session lock.
type View struct {
	ID                 string                 `json:"id"`
	State              State                  `json:"state"`
	Image              *ImageMeta             `json:"image,omitempty"`
	KnownDistance      float64                `json:"known_distance,omitempty"`
	Scale              float64                `json:"scale,omitempty"`
	CalibrationPoints  []geometry.PixelCoords `json:"calibration_points,omitempty"`
	Origin             *geometry.PixelCoords  `json:"origin,omitempty"`
	ReferenceDirection float64                `json:"reference_direction"`
	PendingPoint       *PendingPoint          `json:"pending_point,omitempty"`
	PendingArea        *PendingArea           `json:"pending_area,omitempty"`
	PendingVertices    []Point                `json:"pending_vertices,omitempty"`
	Points             []Point                `json:"points"`
	Areas              []Area                 `json:"areas"`
	CreatedAt          time.Time              `json:"created_at"`
	LastActive         time.Time              `json:"last_active"`
}
