package export

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/quaywood/mapmeasure/internal/geometry"
	"github.com/quaywood/mapmeasure/internal/session"
)

// Snapshot decoding errors.
var (
	// ErrInvalidSnapshot is returned when snapshot bytes cannot be decoded.
	ErrInvalidSnapshot = errors.New("invalid snapshot data")
)

// SnapshotVersion identifies the snapshot wire format.
const SnapshotVersion = 1

// Snapshot is the full-fidelity export of a session: every pixel
// coordinate, the calibration and the reference direction, enough to
// redraw the overlay or re-derive every measurement.
type Snapshot struct {
	Version            int                    `json:"version" cbor:"version"`
	SessionID          string                 `json:"session_id" cbor:"session_id"`
	Image              *session.ImageMeta     `json:"image,omitempty" cbor:"image,omitempty"`
	KnownDistance      float64                `json:"known_distance,omitempty" cbor:"known_distance,omitempty"`
	Scale              float64                `json:"scale,omitempty" cbor:"scale,omitempty"`
	CalibrationPoints  []geometry.PixelCoords `json:"calibration_points,omitempty" cbor:"calibration_points,omitempty"`
	Origin             *geometry.PixelCoords  `json:"origin,omitempty" cbor:"origin,omitempty"`
	ReferenceDirection float64                `json:"reference_direction" cbor:"reference_direction"`
	Points             []session.Point        `json:"points" cbor:"points"`
	Areas              []session.Area         `json:"areas" cbor:"areas"`
}

// BuildSnapshot assembles a snapshot from a session view.
func BuildSnapshot(v session.View) Snapshot {
	return Snapshot{
		Version:            SnapshotVersion,
		SessionID:          v.ID,
		Image:              v.Image,
		KnownDistance:      v.KnownDistance,
		Scale:              v.Scale,
		CalibrationPoints:  v.CalibrationPoints,
		Origin:             v.Origin,
		ReferenceDirection: v.ReferenceDirection,
		Points:             v.Points,
		Areas:              v.Areas,
	}
}

// EncodeCBOR serializes the snapshot with deterministic core encoding.
func (s Snapshot) EncodeCBOR() ([]byte, error) {
	opts := cbor.CoreDetEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("building CBOR encoder: %w", err)
	}
	data, err := mode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// DecodeCBOR parses snapshot bytes produced by EncodeCBOR.
func DecodeCBOR(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if s.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, s.Version)
	}
	return s, nil
}
