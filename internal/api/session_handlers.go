package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/quaywood/mapmeasure/internal/auth"
	"github.com/quaywood/mapmeasure/internal/geometry"
	"github.com/quaywood/mapmeasure/internal/imaging"
	"github.com/quaywood/mapmeasure/internal/middleware"
	"github.com/quaywood/mapmeasure/internal/session"
	"github.com/quaywood/mapmeasure/internal/tracing"
)

// DefaultMaxUploadBytes bounds map uploads when no limit is configured.
const DefaultMaxUploadBytes = 32 << 20

// Session commands accepted by POST /sessions/{id}/commands.
const (
	CommandStartArea  = "start_area"
	CommandFinishArea = "finish_area"
	CommandConfirm    = "confirm"
	CommandCancel     = "cancel"
	CommandReset      = "reset"
)

// SessionHandlers holds dependencies for the session HTTP handlers.
type SessionHandlers struct {
	store          *session.Store
	prober         imaging.Prober
	tokens         *auth.TokenService
	maxUploadBytes int64
}

// NewSessionHandlers creates a SessionHandlers instance. tokens may be
// nil when authentication is disabled.
func NewSessionHandlers(store *session.Store, prober imaging.Prober, tokens *auth.TokenService, maxUploadBytes int64) *SessionHandlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &SessionHandlers{
		store:          store,
		prober:         prober,
		tokens:         tokens,
		maxUploadBytes: maxUploadBytes,
	}
}

// Register mounts the session routes on the mux.
func (h *SessionHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/sessions", h.Sessions)
	mux.HandleFunc("/sessions/", h.route)
}

// Routes returns the session API with the bearer gate applied when a
// token service is configured. Session creation stays outside the gate:
// it is the endpoint that issues the token, so a client could never
// obtain one if it sat behind the gate itself.
func (h *SessionHandlers) Routes() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	if h.tokens == nil {
		return mux
	}

	gated := auth.Middleware(h.tokens)(mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions" {
			mux.ServeHTTP(w, r)
			return
		}
		gated.ServeHTTP(w, r)
	})
}

// CreateSessionResponse is the body returned by POST /sessions. Token is
// present only when authentication is enabled.
type CreateSessionResponse struct {
	Session session.View `json:"session"`
	Token   string       `json:"token,omitempty"`
}

// clickRequest carries one positional input in pixel coordinates.
type clickRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// commandRequest carries a non-positional workflow input. Name is only
// meaningful for confirm.
type commandRequest struct {
	Command string `json:"command"`
	Name    string `json:"name,omitempty"`
}

// Sessions handles the /sessions collection. POST creates a session.
func (h *SessionHandlers) Sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	doc := h.store.Create()
	resp := CreateSessionResponse{Session: doc.View()}

	if h.tokens != nil {
		token, err := h.tokens.Generate(doc.ID())
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue session token")
			return
		}
		resp.Token = token
	}

	writeJSON(w, http.StatusCreated, resp)
}

// route dispatches /sessions/{id}/... to the per-session handlers. Path
// parsing stays manual so the route shape is visible in one place.
func (h *SessionHandlers) route(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Session ID is required")
		return
	}
	id := parts[0]

	doc, ok := h.getSession(w, r, id)
	if !ok {
		return
	}
	r = r.WithContext(middleware.SetSessionID(r.Context(), id))
	middleware.UpdateResponseContext(w, r.Context())

	switch len(parts) {
	case 1:
		h.session(w, r, doc)
		return
	case 2:
		switch parts[1] {
		case "image":
			h.attachImage(w, r, doc)
			return
		case "clicks":
			h.click(w, r, doc)
			return
		case "commands":
			h.command(w, r, doc)
			return
		case "preview":
			h.preview(w, r, doc)
			return
		case "reference-direction":
			h.referenceDirection(w, r, doc)
			return
		case "points":
			h.points(w, r, doc)
			return
		case "areas":
			h.areas(w, r, doc)
			return
		case "ws":
			h.previewSocket(w, r, doc)
			return
		}
	case 3:
		switch parts[1] {
		case "points":
			h.point(w, r, doc, parts[2])
			return
		case "areas":
			h.area(w, r, doc, parts[2])
			return
		case "calibration":
			switch parts[2] {
			case "distance":
				h.calibrationDistance(w, r, doc)
				return
			case "origin":
				h.calibrationOrigin(w, r, doc)
				return
			}
		case "export":
			h.export(w, r, doc, parts[2])
			return
		}
	}

	ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
	WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
}

// getSession resolves the session and enforces token scope: a request
// authenticated for one session cannot touch another.
func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request, id string) (*session.Document, bool) {
	if scope := auth.SessionFromContext(r.Context()); scope != "" && scope != id {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeAuthFailed, "Token is not valid for this session")
		return nil, false
	}

	doc, err := h.store.Get(id)
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	return doc, true
}

// session handles GET and DELETE /sessions/{id}.
func (h *SessionHandlers) session(w http.ResponseWriter, r *http.Request, doc *session.Document) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, doc.View())
	case http.MethodDelete:
		if err := h.store.Delete(doc.ID()); err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

// attachImage handles POST /sessions/{id}/image. The body is the raw
// raster; only its probed metadata is retained.
func (h *SessionHandlers) attachImage(w http.ResponseWriter, r *http.Request, doc *session.Document) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	defer func() { _ = body.Close() }()

	meta, err := h.prober.Probe(body)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	_, endSpan := tracing.StartSessionSpan(r.Context(), doc.ID(), session.InputAttachImage)
	err = doc.AttachImage(session.ImageMeta{
		Width:  meta.Width,
		Height: meta.Height,
		Format: meta.Format,
	})
	endSpan(err)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, doc.View())
}

// click handles POST /sessions/{id}/clicks. The click's meaning depends
// on the session state; the response carries the resulting view.
func (h *SessionHandlers) click(w http.ResponseWriter, r *http.Request, doc *session.Document) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	_, endSpan := tracing.StartSessionSpan(r.Context(), doc.ID(), session.InputClick)
	err := doc.Click(geometry.PixelCoords{X: req.X, Y: req.Y})
	endSpan(err)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.View())
}

// command handles POST /sessions/{id}/commands.
func (h *SessionHandlers) command(w http.ResponseWriter, r *http.Request, doc *session.Document) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	_, endSpan := tracing.StartSessionSpan(r.Context(), doc.ID(), req.Command)
	var err error
	switch req.Command {
	case CommandStartArea:
		err = doc.StartArea()
	case CommandFinishArea:
		err = doc.FinishArea()
	case CommandConfirm:
		err = doc.Confirm(req.Name)
	case CommandCancel:
		err = doc.Cancel()
	case CommandReset:
		err = doc.Reset()
	default:
		endSpan(nil)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Unknown command: "+req.Command)
		return
	}
	endSpan(err)

	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.View())
}

// preview handles GET /sessions/{id}/preview?x=&y=. It measures the
// cursor position without changing anything.
func (h *SessionHandlers) preview(w http.ResponseWriter, r *http.Request, doc *session.Document) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	p, ok := parseCoords(w, r)
	if !ok {
		return
	}

	preview, err := doc.Preview(p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// referenceDirectionRequest rotates the session's zero bearing.
type referenceDirectionRequest struct {
	Degrees float64 `json:"degrees"`
}

// referenceDirection handles PUT /sessions/{id}/reference-direction.
// Every stored point bearing is recomputed in the same transition.
func (h *SessionHandlers) referenceDirection(w http.ResponseWriter, r *http.Request, doc *session.Document) {
	if r.Method != http.MethodPut {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req referenceDirectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	_, endSpan := tracing.StartSessionSpan(r.Context(), doc.ID(), session.InputReference)
	err := doc.SetReferenceDirection(req.Degrees)
	endSpan(err)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.View())
}

// calibrationDistanceRequest carries the physical reference distance.
type calibrationDistanceRequest struct {
	Distance float64 `json:"distance"`
}

// calibrationDistance handles PUT /sessions/{id}/calibration/distance.
func (h *SessionHandlers) calibrationDistance(w http.ResponseWriter, r *http.Request, doc *session.Document) {
	if r.Method != http.MethodPut {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req calibrationDistanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	_, endSpan := tracing.StartSessionSpan(r.Context(), doc.ID(), session.InputKnownDistance)
	err := doc.SetKnownDistance(req.Distance)
	endSpan(err)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.View())
}

// calibrationOrigin handles PUT /sessions/{id}/calibration/origin. Only
// accepted while the session has no measurements yet.
func (h *SessionHandlers) calibrationOrigin(w http.ResponseWriter, r *http.Request, doc *session.Document) {
	if r.Method != http.MethodPut {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	_, endSpan := tracing.StartSessionSpan(r.Context(), doc.ID(), session.InputRelocateOrigin)
	err := doc.RelocateOrigin(geometry.PixelCoords{X: req.X, Y: req.Y})
	endSpan(err)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.View())
}

// points handles GET /sessions/{id}/points.
func (h *SessionHandlers) points(w http.ResponseWriter, r *http.Request, doc *session.Document) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]session.Point{"points": doc.View().Points})
}

// renameRequest carries the new name for a point.
type renameRequest struct {
	Name string `json:"name"`
}

// point handles PATCH and DELETE /sessions/{id}/points/{pid}.
func (h *SessionHandlers) point(w http.ResponseWriter, r *http.Request, doc *session.Document, pointID string) {
	switch r.Method {
	case http.MethodPatch:
		var req renameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
			return
		}
		if err := doc.RenamePoint(pointID, req.Name); err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := doc.DeletePoint(pointID); err != nil {
			writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

// areas handles GET /sessions/{id}/areas.
func (h *SessionHandlers) areas(w http.ResponseWriter, r *http.Request, doc *session.Document) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]session.Area{"areas": doc.View().Areas})
}

// area handles DELETE /sessions/{id}/areas/{aid}.
func (h *SessionHandlers) area(w http.ResponseWriter, r *http.Request, doc *session.Document, areaID string) {
	if r.Method != http.MethodDelete {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	if err := doc.DeleteArea(areaID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseCoords reads x and y query parameters as pixel coordinates.
func parseCoords(w http.ResponseWriter, r *http.Request) (geometry.PixelCoords, bool) {
	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if errX != nil || errY != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "x and y must be numeric query parameters")
		return geometry.PixelCoords{}, false
	}
	return geometry.PixelCoords{X: x, Y: y}, true
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
