package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quaywood/mapmeasure/internal/calibration"
	"github.com/quaywood/mapmeasure/internal/geometry"
)

// Input names used for transition metrics and logging.
const (
	InputAttachImage    = "attach_image"
	InputKnownDistance  = "set_known_distance"
	InputClick          = "click"
	InputStartArea      = "start_area"
	InputFinishArea     = "finish_area"
	InputConfirm        = "confirm"
	InputCancel         = "cancel"
	InputReset          = "reset"
	InputReference      = "set_reference_direction"
	InputRelocateOrigin = "relocate_origin"
	InputRenamePoint    = "rename_point"
	InputDeletePoint    = "delete_point"
	InputDeleteArea     = "delete_area"
)

// Document is one measurement session: the interaction state machine plus
// everything it owns. Every exported method is one atomic transition; the
// internal mutex guarantees no input overlaps another, so the workflow
// behaves as the single-user sequence it models even under a concurrent
// HTTP server.
type Document struct {
	mu sync.Mutex

	id         string
	createdAt  time.Time
	lastActive time.Time

	state  State
	image  *ImageMeta
	cal    calibration.Model
	refDeg float64

	pendingPoint    *PendingPoint
	pendingArea     *PendingArea
	pendingVertices []Point

	points []Point
	areas  []Area

	// Default-name counters; numbers are never reused, even after
	// cancels or deletes.
	pointSeq int
	areaSeq  int

	metrics *Metrics
}

// NewDocument creates an empty session in the awaiting-image state.
func NewDocument(metrics *Metrics) *Document {
	now := time.Now().UTC()
	return &Document{
		id:         uuid.New().String(),
		createdAt:  now,
		lastActive: now,
		state:      StateAwaitingImage,
		metrics:    metrics,
	}
}

// ID returns the session identifier.
func (d *Document) ID() string {
	return d.id
}

// State returns the current workflow state.
func (d *Document) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// touch refreshes the idle clock. Callers hold d.mu.
func (d *Document) touch() {
	d.lastActive = time.Now().UTC()
}

// record reports a transition attempt to the metrics collector.
func (d *Document) record(input string, err error) {
	if d.metrics != nil {
		d.metrics.ObserveTransition(input, err == nil)
	}
}

// AttachImage leaves the awaiting-image state once a raster map's metadata
// is known. Click coordinates are validated against these bounds from here
// on.
func (d *Document) AttachImage(meta ImageMeta) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputAttachImage, err) }()

	if d.state != StateAwaitingImage {
		return fmt.Errorf("%w: image attach in state %q", ErrImageAttached, d.state)
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return ErrInvalidImage
	}

	d.image = &meta
	d.state = StateCalibrateStart
	d.touch()
	return nil
}

// SetKnownDistance records the physical distance between the two reference
// clicks. Accepted during both calibration states so a mistyped value can
// be corrected before the second click lands.
func (d *Document) SetKnownDistance(distance float64) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputKnownDistance, err) }()

	if d.state != StateCalibrateStart && d.state != StateCalibrateEnd {
		return fmt.Errorf("%w: known distance in state %q", ErrInvalidState, d.state)
	}
	if err := d.cal.SetKnownDistance(distance); err != nil {
		return err
	}
	d.touch()
	return nil
}

// Click feeds one positional input to the state machine. What it means
// depends entirely on the current state: a calibration reference, the
// origin, a staged point or an area vertex.
func (d *Document) Click(p geometry.PixelCoords) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputClick, err) }()

	if err := d.checkBounds(p); err != nil {
		return err
	}

	switch d.state {
	case StateCalibrateStart:
		if err := d.cal.CapturePoint(p); err != nil {
			return err
		}
		d.state = StateCalibrateEnd

	case StateCalibrateEnd:
		// A degenerate second click is rejected here and the state is
		// kept, so the caller re-prompts for the second click only.
		if err := d.cal.CapturePoint(p); err != nil {
			return err
		}
		d.state = StateSetOrigin

	case StateSetOrigin:
		if err := d.cal.SetOrigin(p); err != nil {
			return err
		}
		d.state = StateReady

	case StateReady:
		d.pointSeq++
		d.pendingPoint = &PendingPoint{
			Pixel:       p,
			DefaultName: fmt.Sprintf("Point %d", d.pointSeq),
		}
		d.state = StateNamingPoint

	case StateDefiningArea:
		vertex, err := d.measurePoint(p)
		if err != nil {
			return err
		}
		vertex.Name = fmt.Sprintf("Vertex %d", len(d.pendingVertices)+1)
		d.pendingVertices = append(d.pendingVertices, vertex)

	default:
		return fmt.Errorf("%w: click in state %q", ErrInvalidState, d.state)
	}

	d.touch()
	return nil
}

// StartArea switches from ready into polygon capture with an empty vertex
// list.
func (d *Document) StartArea() (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputStartArea, err) }()

	if d.state != StateReady {
		return fmt.Errorf("%w: start area in state %q", ErrInvalidState, d.state)
	}
	d.pendingVertices = nil
	d.state = StateDefiningArea
	d.touch()
	return nil
}

// FinishArea closes the polygon and stages it for naming. With fewer than
// MinAreaVertices vertices the command is rejected and vertex capture
// continues.
func (d *Document) FinishArea() (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputFinishArea, err) }()

	if d.state != StateDefiningArea {
		return fmt.Errorf("%w: finish area in state %q", ErrInvalidState, d.state)
	}
	if len(d.pendingVertices) < MinAreaVertices {
		return ErrInsufficientVertices
	}

	d.areaSeq++
	d.pendingArea = &PendingArea{DefaultName: fmt.Sprintf("Area %d", d.areaSeq)}
	d.state = StateNamingArea
	d.touch()
	return nil
}

// Confirm supplies the name that finalizes the staged point or area. The
// name must be non-empty after trimming; otherwise the naming state is
// retained.
func (d *Document) Confirm(name string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputConfirm, err) }()

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrEmptyName
	}

	switch d.state {
	case StateNamingPoint:
		point, err := d.measurePoint(d.pendingPoint.Pixel)
		if err != nil {
			return err
		}
		point.Name = trimmed
		d.points = append(d.points, point)
		d.pendingPoint = nil
		d.state = StateReady
		if d.metrics != nil {
			d.metrics.ObservePointCreated()
		}

	case StateNamingArea:
		reals := make([]geometry.RealCoords, len(d.pendingVertices))
		for i, v := range d.pendingVertices {
			reals[i] = v.Real
		}
		d.areas = append(d.areas, Area{
			ID:       uuid.New().String(),
			Name:     trimmed,
			Vertices: d.pendingVertices,
			RealArea: geometry.PolygonArea(reals),
		})
		d.pendingVertices = nil
		d.pendingArea = nil
		d.state = StateReady
		if d.metrics != nil {
			d.metrics.ObserveAreaCreated()
		}

	default:
		return fmt.Errorf("%w: confirm in state %q", ErrInvalidState, d.state)
	}

	d.touch()
	return nil
}

// Cancel backs out of the current naming or capture step. Canceling the
// area name keeps the vertices and returns to vertex editing; canceling
// vertex capture discards them.
func (d *Document) Cancel() (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputCancel, err) }()

	switch d.state {
	case StateNamingPoint:
		d.pendingPoint = nil
		d.state = StateReady

	case StateNamingArea:
		d.pendingArea = nil
		d.state = StateDefiningArea

	case StateDefiningArea:
		d.pendingVertices = nil
		d.state = StateReady

	default:
		return fmt.Errorf("%w: cancel in state %q", ErrInvalidState, d.state)
	}

	d.touch()
	return nil
}

// Reset returns the machine to awaiting-image and clears the calibration,
// both collections and all staged work. Valid in every state.
func (d *Document) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputReset, nil) }()

	d.state = StateAwaitingImage
	d.image = nil
	d.cal.Reset()
	d.refDeg = 0
	d.pendingPoint = nil
	d.pendingArea = nil
	d.pendingVertices = nil
	d.points = nil
	d.areas = nil
	d.touch()
	return nil
}

// SetReferenceDirection rotates "north". Valid any time the map is
// measurable. Every stored point's bearing is recomputed from its stored
// real coordinates in one batch under the session lock; distances are
// untouched and finalized area vertices are left alone.
func (d *Document) SetReferenceDirection(deg float64) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputReference, err) }()

	if !d.cal.Measurable() {
		return ErrNotMeasurable
	}

	d.refDeg = geometry.NormalizeDegrees(deg)
	for i := range d.points {
		d.points[i].Bearing = geometry.DistanceAndBearing(d.points[i].Real, d.refDeg).Bearing
	}
	// In-progress vertices are not finalized yet; keep their bearings
	// consistent with what a capture at this instant would produce.
	for i := range d.pendingVertices {
		d.pendingVertices[i].Bearing = geometry.DistanceAndBearing(d.pendingVertices[i].Real, d.refDeg).Bearing
	}
	d.touch()
	return nil
}

// ReferenceDirection returns the current rotation offset in [0, 360).
func (d *Document) ReferenceDirection() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refDeg
}

// RelocateOrigin moves the origin while the session is still pristine.
// Once any point, area or staged capture exists the origin is fixed until
// a full reset.
func (d *Document) RelocateOrigin(p geometry.PixelCoords) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputRelocateOrigin, err) }()

	if d.state != StateReady {
		return fmt.Errorf("%w: relocate origin in state %q", ErrInvalidState, d.state)
	}
	if len(d.points) > 0 || len(d.areas) > 0 || len(d.pendingVertices) > 0 {
		return ErrOriginLocked
	}
	if err := d.checkBounds(p); err != nil {
		return err
	}
	if err := d.cal.SetOrigin(p); err != nil {
		return err
	}
	d.touch()
	return nil
}

// Preview measures a transient cursor position without mutating anything.
func (d *Document) Preview(p geometry.PixelCoords) (Preview, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.cal.Measurable() {
		return Preview{}, ErrNotMeasurable
	}
	real, err := d.cal.ToReal(p)
	if err != nil {
		return Preview{}, err
	}
	m := geometry.DistanceAndBearing(real, d.refDeg)
	return Preview{Pixel: p, Real: real, Distance: m.Distance, Bearing: m.Bearing}, nil
}

// RenamePoint changes a point's name; everything else about the point is
// immutable.
func (d *Document) RenamePoint(id, name string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputRenamePoint, err) }()

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrEmptyName
	}
	for i := range d.points {
		if d.points[i].ID == id {
			d.points[i].Name = trimmed
			d.touch()
			return nil
		}
	}
	return ErrPointNotFound
}

// DeletePoint removes a finalized point from the collection.
func (d *Document) DeletePoint(id string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputDeletePoint, err) }()

	for i := range d.points {
		if d.points[i].ID == id {
			d.points = append(d.points[:i], d.points[i+1:]...)
			d.touch()
			return nil
		}
	}
	return ErrPointNotFound
}

// DeleteArea removes a finalized area from the collection.
func (d *Document) DeleteArea(id string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.record(InputDeleteArea, err) }()

	for i := range d.areas {
		if d.areas[i].ID == id {
			d.areas = append(d.areas[:i], d.areas[i+1:]...)
			d.touch()
			return nil
		}
	}
	return ErrAreaNotFound
}

// View returns a deep read-only copy of the session for serialization and
// export.
func (d *Document) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := View{
		ID:                 d.id,
		State:              d.state,
		KnownDistance:      d.cal.KnownDistance(),
		CalibrationPoints:  d.cal.ReferencePoints(),
		ReferenceDirection: d.refDeg,
		Points:             append([]Point(nil), d.points...),
		Areas:              make([]Area, 0, len(d.areas)),
		PendingVertices:    append([]Point(nil), d.pendingVertices...),
		CreatedAt:          d.createdAt,
		LastActive:         d.lastActive,
	}
	for _, a := range d.areas {
		a.Vertices = append([]Point(nil), a.Vertices...)
		v.Areas = append(v.Areas, a)
	}
	if d.image != nil {
		img := *d.image
		v.Image = &img
	}
	if scale, err := d.cal.Scale(); err == nil {
		v.Scale = scale
	}
	if origin, ok := d.cal.Origin(); ok {
		v.Origin = &origin
	}
	if d.pendingPoint != nil {
		pp := *d.pendingPoint
		v.PendingPoint = &pp
	}
	if d.pendingArea != nil {
		pa := *d.pendingArea
		v.PendingArea = &pa
	}
	return v
}

// measurePoint derives the full point capture for a pixel position using
// the current calibration and reference direction. Callers hold d.mu.
func (d *Document) measurePoint(p geometry.PixelCoords) (Point, error) {
	real, err := d.cal.ToReal(p)
	if err != nil {
		return Point{}, err
	}
	m := geometry.DistanceAndBearing(real, d.refDeg)
	return Point{
		ID:       uuid.New().String(),
		Pixel:    p,
		Real:     real,
		Distance: m.Distance,
		Bearing:  m.Bearing,
	}, nil
}

// checkBounds rejects clicks outside the attached image. Click
// coordinates are continuous, so the image surface spans [0, Width] x
// [0, Height] and the far edges are valid positions: a click at exactly
// X == Width sits on the right border of the last pixel column. Sessions
// without an image yet (awaiting-image) have no resolvable click surface
// at all. Callers hold d.mu.
func (d *Document) checkBounds(p geometry.PixelCoords) error {
	if d.image == nil {
		return fmt.Errorf("%w: no image attached", ErrInvalidState)
	}
	if p.X < 0 || p.Y < 0 || p.X > float64(d.image.Width) || p.Y > float64(d.image.Height) {
		return fmt.Errorf("%w: (%.1f, %.1f) outside %dx%d",
			ErrOutOfBounds, p.X, p.Y, d.image.Width, d.image.Height)
	}
	return nil
}
