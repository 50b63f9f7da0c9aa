// Package export renders a measurement session into its persisted
// formats: per-point and per-area CSV tables and a full-fidelity snapshot
// that carries everything an overlay renderer needs.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/quaywood/mapmeasure/internal/session"
)

// WritePointsCSV writes one record per point: name, distance, bearing.
// Values use enough precision to reconstruct the measurement exactly.
func WritePointsCSV(w io.Writer, points []session.Point) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"name", "distance", "bearing"}); err != nil {
		return fmt.Errorf("writing points header: %w", err)
	}
	for _, p := range points {
		record := []string{
			p.Name,
			formatFloat(p.Distance),
			formatFloat(p.Bearing),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing point %q: %w", p.Name, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteAreasCSV writes one record per area: name, real area.
func WriteAreasCSV(w io.Writer, areas []session.Area) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"name", "real_area"}); err != nil {
		return fmt.Errorf("writing areas header: %w", err)
	}
	for _, a := range areas {
		if err := cw.Write([]string{a.Name, formatFloat(a.RealArea)}); err != nil {
			return fmt.Errorf("writing area %q: %w", a.Name, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
