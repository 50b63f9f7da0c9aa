package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/quaywood/mapmeasure/internal/geometry"
	"github.com/quaywood/mapmeasure/internal/session"
)

var previewUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens in the CORS middleware; the socket is
	// already behind it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// previewMessage is one client frame: a cursor position, or a
// reference-direction drag when Degrees is present.
type previewMessage struct {
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Degrees *float64 `json:"degrees,omitempty"`
}

// rotationAck confirms an applied reference-direction update.
type rotationAck struct {
	ReferenceDirection float64 `json:"reference_direction"`
}

// previewError is the in-band error frame for a socket that stays open.
type previewError struct {
	Error ErrorDetail `json:"error"`
}

// previewSocket handles GET /sessions/{id}/ws. The client streams cursor
// positions and receives live measurements; a position that cannot be
// measured yields an error frame, not a closed socket.
func (h *SessionHandlers) previewSocket(w http.ResponseWriter, r *http.Request, doc *session.Document) {
	conn, err := previewUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	for {
		var msg previewMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(r.Context(), "preview socket closed", "error", err)
			}
			return
		}

		if msg.Degrees != nil {
			if err := doc.SetReferenceDirection(*msg.Degrees); err != nil {
				_, code := classifyError(err)
				frame := previewError{Error: ErrorDetail{Code: code, Message: err.Error()}}
				if err := conn.WriteJSON(frame); err != nil {
					return
				}
				continue
			}
			if err := conn.WriteJSON(rotationAck{ReferenceDirection: doc.ReferenceDirection()}); err != nil {
				return
			}
			continue
		}

		preview, err := doc.Preview(geometry.PixelCoords{X: msg.X, Y: msg.Y})
		if err != nil {
			_, code := classifyError(err)
			frame := previewError{Error: ErrorDetail{Code: code, Message: err.Error()}}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(preview); err != nil {
			return
		}
	}
}
