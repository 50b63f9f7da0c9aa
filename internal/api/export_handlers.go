package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/quaywood/mapmeasure/internal/export"
	"github.com/quaywood/mapmeasure/internal/middleware"
	"github.com/quaywood/mapmeasure/internal/session"
	"github.com/quaywood/mapmeasure/internal/tracing"
)

// export handles GET /sessions/{id}/export/{format}. Supported formats:
// points.csv, areas.csv and snapshot. The snapshot is JSON by default
// and CBOR when the client asks for application/cbor.
func (h *SessionHandlers) export(w http.ResponseWriter, r *http.Request, doc *session.Document, format string) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	_, endSpan := tracing.StartSpan(r.Context(), "export "+format)
	defer endSpan(nil)

	view := doc.View()

	switch format {
	case "points.csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="points.csv"`)
		if err := export.WritePointsCSV(w, view.Points); err != nil {
			slog.ErrorContext(r.Context(), "failed to write points CSV", "error", err)
		}

	case "areas.csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="areas.csv"`)
		if err := export.WriteAreasCSV(w, view.Areas); err != nil {
			slog.ErrorContext(r.Context(), "failed to write areas CSV", "error", err)
		}

	case "snapshot":
		snapshot := export.BuildSnapshot(view)
		wantCBOR := strings.Contains(r.Header.Get("Accept"), "application/cbor") ||
			r.URL.Query().Get("format") == "cbor"
		if wantCBOR {
			data, err := snapshot.EncodeCBOR()
			if err != nil {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
				WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to encode snapshot")
				return
			}
			w.Header().Set("Content-Type", "application/cbor")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)

	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Unknown export format: "+format)
	}
}
