package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quaywood/mapmeasure/internal/auth"
	"github.com/quaywood/mapmeasure/internal/imaging"
	"github.com/quaywood/mapmeasure/internal/session"
)

// stubProber returns fixed metadata without touching libvips.
type stubProber struct {
	meta imaging.Meta
	err  error
}

func (s stubProber) Probe(r io.Reader) (imaging.Meta, error) {
	_, _ = io.Copy(io.Discard, r)
	if s.err != nil {
		return imaging.Meta{}, s.err
	}
	return s.meta, nil
}

func testProber() stubProber {
	return stubProber{meta: imaging.Meta{Width: 1000, Height: 800, Format: "png"}}
}

func newTestMux(t *testing.T, tokens *auth.TokenService) (*http.ServeMux, *session.Store) {
	t.Helper()
	store := session.NewStore(30*time.Minute, nil)
	handlers := NewSessionHandlers(store, testProber(), tokens, 0)
	mux := http.NewServeMux()
	handlers.Register(mux)
	return mux, store
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) session.View {
	t.Helper()
	var view session.View
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decoding view: %v", err)
	}
	return view
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	return resp.Error.Code
}

// createSession drives POST /sessions and returns the new session ID.
func createSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	rec := doJSON(t, mux, http.MethodPost, "/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, want 201", rec.Code)
	}
	var resp CreateSessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	if resp.Session.State != session.StateAwaitingImage {
		t.Fatalf("new session state = %q, want %q", resp.Session.State, session.StateAwaitingImage)
	}
	return resp.Session.ID
}

// calibrate walks a fresh session to the ready state over HTTP: attach
// the map, set the reference distance, two reference clicks 100px apart
// for a 10-unit distance, then the origin click at (50, 50).
func calibrate(t *testing.T, mux *http.ServeMux, id string) {
	t.Helper()

	rec := doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/image", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("attach image status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPut, "/sessions/"+id+"/calibration/distance", map[string]float64{"distance": 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("set distance status = %d: %s", rec.Code, rec.Body.String())
	}

	for _, click := range []map[string]float64{
		{"x": 0, "y": 0},
		{"x": 100, "y": 0},
		{"x": 50, "y": 50},
	} {
		rec = doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", click)
		if rec.Code != http.StatusOK {
			t.Fatalf("calibration click %v status = %d: %s", click, rec.Code, rec.Body.String())
		}
	}

	view := decodeView(t, rec)
	if view.State != session.StateReady {
		t.Fatalf("state after calibration = %q, want %q", view.State, session.StateReady)
	}
}

func TestCreateSession_NoToken(t *testing.T) {
	mux, _ := newTestMux(t, nil)

	rec := doJSON(t, mux, http.MethodPost, "/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var resp CreateSessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Token != "" {
		t.Errorf("token issued with auth disabled: %q", resp.Token)
	}
}

func TestCreateSession_WithToken(t *testing.T) {
	tokens := auth.NewTokenService("test-secret")
	mux, _ := newTestMux(t, tokens)

	rec := doJSON(t, mux, http.MethodPost, "/sessions", nil)
	var resp CreateSessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a session token")
	}

	claims, err := tokens.Validate(resp.Token)
	if err != nil {
		t.Fatalf("validating issued token: %v", err)
	}
	if claims.Subject != resp.Session.ID {
		t.Errorf("token subject = %q, want %q", claims.Subject, resp.Session.ID)
	}
}

func TestSessions_MethodNotAllowed(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	rec := doJSON(t, mux, http.MethodGet, "/sessions", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestGetSession_Unknown(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	rec := doJSON(t, mux, http.MethodGet, "/sessions/no-such-id", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeSessionNotFound {
		t.Errorf("error code = %q, want %q", code, ErrCodeSessionNotFound)
	}
}

func TestDeleteSession(t *testing.T) {
	mux, store := newTestMux(t, nil)
	id := createSession(t, mux)

	rec := doJSON(t, mux, http.MethodDelete, "/sessions/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	if store.Count() != 0 {
		t.Errorf("store count = %d after delete, want 0", store.Count())
	}

	rec = doJSON(t, mux, http.MethodGet, "/sessions/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestClick_BeforeImage(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 10, "y": 10})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeInvalidState {
		t.Errorf("error code = %q, want %q", code, ErrCodeInvalidState)
	}
}

func TestClick_BeforeKnownDistance(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/image", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("attach image status = %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 0, "y": 0})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeKnownDistanceNotSet {
		t.Errorf("error code = %q, want %q", code, ErrCodeKnownDistanceNotSet)
	}
}

func TestClick_Degenerate(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)

	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/image", nil)
	doJSON(t, mux, http.MethodPut, "/sessions/"+id+"/calibration/distance", map[string]float64{"distance": 10})
	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 0, "y": 0})

	rec := doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 0, "y": 0})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeDegenerateCalibration {
		t.Errorf("error code = %q, want %q", code, ErrCodeDegenerateCalibration)
	}

	// A corrected second click still completes the calibration.
	rec = doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 100, "y": 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("corrected click status = %d: %s", rec.Code, rec.Body.String())
	}
	if view := decodeView(t, rec); view.State != session.StateSetOrigin {
		t.Errorf("state = %q, want %q", view.State, session.StateSetOrigin)
	}
}

func TestClick_OutOfBounds(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)
	calibrate(t, mux, id)

	rec := doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 5000, "y": 5})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeOutOfBounds {
		t.Errorf("error code = %q, want %q", code, ErrCodeOutOfBounds)
	}
}

func TestPointWorkflow(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)
	calibrate(t, mux, id)

	// Click (150, 50) is 100px east of the origin: 10 units away, due east.
	rec := doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 150, "y": 50})
	view := decodeView(t, rec)
	if view.State != session.StateNamingPoint {
		t.Fatalf("state = %q, want %q", view.State, session.StateNamingPoint)
	}
	if view.PendingPoint == nil || view.PendingPoint.DefaultName != "Point 1" {
		t.Fatalf("pending point = %+v, want default name Point 1", view.PendingPoint)
	}

	// Blank name keeps the naming state.
	rec = doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "confirm", "name": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank confirm status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeEmptyName {
		t.Errorf("error code = %q, want %q", code, ErrCodeEmptyName)
	}

	rec = doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "confirm", "name": "east gate"})
	view = decodeView(t, rec)
	if view.State != session.StateReady {
		t.Fatalf("state = %q, want %q", view.State, session.StateReady)
	}
	if len(view.Points) != 1 {
		t.Fatalf("points = %d, want 1", len(view.Points))
	}

	p := view.Points[0]
	if p.Name != "east gate" {
		t.Errorf("name = %q, want east gate", p.Name)
	}
	if p.Distance != 10 || p.Bearing != 90 {
		t.Errorf("measurement = (%v, %v), want (10, 90)", p.Distance, p.Bearing)
	}

	rec = doJSON(t, mux, http.MethodGet, "/sessions/"+id+"/points", nil)
	var listing struct {
		Points []session.Point `json:"points"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listing); err != nil {
		t.Fatalf("decoding points listing: %v", err)
	}
	if len(listing.Points) != 1 || listing.Points[0].ID != p.ID {
		t.Errorf("points listing = %+v", listing.Points)
	}
}

func TestAreaWorkflow(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)
	calibrate(t, mux, id)

	rec := doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "start_area"})
	if view := decodeView(t, rec); view.State != session.StateDefiningArea {
		t.Fatalf("state = %q, want %q", view.State, session.StateDefiningArea)
	}

	// Finishing with two vertices is rejected and capture continues.
	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 50, "y": 50})
	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 150, "y": 50})
	rec = doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "finish_area"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("early finish status = %d, want 422", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeInsufficientVertices {
		t.Errorf("error code = %q, want %q", code, ErrCodeInsufficientVertices)
	}

	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 150, "y": 150})
	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 50, "y": 150})

	rec = doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "finish_area"})
	if view := decodeView(t, rec); view.State != session.StateNamingArea {
		t.Fatalf("state = %q, want %q", view.State, session.StateNamingArea)
	}

	rec = doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "confirm", "name": "yard"})
	view := decodeView(t, rec)
	if len(view.Areas) != 1 {
		t.Fatalf("areas = %d, want 1", len(view.Areas))
	}

	// A 100x100 pixel square at scale 10 px/unit encloses 100 square units.
	a := view.Areas[0]
	if a.Name != "yard" || a.RealArea != 100 {
		t.Errorf("area = %q %v, want yard 100", a.Name, a.RealArea)
	}
	if len(a.Vertices) != 4 {
		t.Errorf("vertices = %d, want 4", len(a.Vertices))
	}
}

func TestCommand_Unknown(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "teleport"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeValidation {
		t.Errorf("error code = %q, want %q", code, ErrCodeValidation)
	}
}

func TestReferenceDirection_RecomputesBearings(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)
	calibrate(t, mux, id)

	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 150, "y": 50})
	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "confirm", "name": "east gate"})

	rec := doJSON(t, mux, http.MethodPut, "/sessions/"+id+"/reference-direction", map[string]float64{"degrees": 90})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	view := decodeView(t, rec)
	if view.ReferenceDirection != 90 {
		t.Errorf("reference direction = %v, want 90", view.ReferenceDirection)
	}
	if view.Points[0].Bearing != 0 {
		t.Errorf("bearing after rotation = %v, want 0", view.Points[0].Bearing)
	}
	if view.Points[0].Distance != 10 {
		t.Errorf("distance changed by rotation: %v", view.Points[0].Distance)
	}
}

func TestReferenceDirection_BeforeCalibration(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)

	rec := doJSON(t, mux, http.MethodPut, "/sessions/"+id+"/reference-direction", map[string]float64{"degrees": 45})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeNotCalibrated {
		t.Errorf("error code = %q, want %q", code, ErrCodeNotCalibrated)
	}
}

func TestCalibrationOrigin_Relocate(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)
	calibrate(t, mux, id)

	rec := doJSON(t, mux, http.MethodPut, "/sessions/"+id+"/calibration/origin", map[string]float64{"x": 100, "y": 100})
	if rec.Code != http.StatusOK {
		t.Fatalf("relocate status = %d: %s", rec.Code, rec.Body.String())
	}
	view := decodeView(t, rec)
	if view.Origin == nil || view.Origin.X != 100 || view.Origin.Y != 100 {
		t.Errorf("origin = %+v, want (100, 100)", view.Origin)
	}

	// After the first measurement the origin is locked.
	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 150, "y": 50})
	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "confirm", "name": "p"})

	rec = doJSON(t, mux, http.MethodPut, "/sessions/"+id+"/calibration/origin", map[string]float64{"x": 10, "y": 10})
	if rec.Code != http.StatusConflict {
		t.Fatalf("locked relocate status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeOriginLocked {
		t.Errorf("error code = %q, want %q", code, ErrCodeOriginLocked)
	}
}

func TestPreview(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)
	calibrate(t, mux, id)

	rec := doJSON(t, mux, http.MethodGet, "/sessions/"+id+"/preview?x=150&y=50", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var preview session.Preview
	if err := json.NewDecoder(rec.Body).Decode(&preview); err != nil {
		t.Fatalf("decoding preview: %v", err)
	}
	if preview.Distance != 10 || preview.Bearing != 90 {
		t.Errorf("preview = (%v, %v), want (10, 90)", preview.Distance, preview.Bearing)
	}

	// Preview is pure: the session has no staged work afterwards.
	rec = doJSON(t, mux, http.MethodGet, "/sessions/"+id, nil)
	if view := decodeView(t, rec); view.State != session.StateReady || view.PendingPoint != nil {
		t.Errorf("preview mutated session: state=%q pending=%+v", view.State, view.PendingPoint)
	}
}

func TestPreview_BadQuery(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)

	rec := doJSON(t, mux, http.MethodGet, "/sessions/"+id+"/preview?x=abc&y=5", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRenameAndDeletePoint(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)
	calibrate(t, mux, id)

	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 150, "y": 50})
	rec := doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "confirm", "name": "old name"})
	pointID := decodeView(t, rec).Points[0].ID

	rec = doJSON(t, mux, http.MethodPatch, "/sessions/"+id+"/points/"+pointID, map[string]string{"name": "new name"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("rename status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodGet, "/sessions/"+id, nil)
	if view := decodeView(t, rec); view.Points[0].Name != "new name" {
		t.Errorf("name after rename = %q", view.Points[0].Name)
	}

	rec = doJSON(t, mux, http.MethodDelete, "/sessions/"+id+"/points/"+pointID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodDelete, "/sessions/"+id+"/points/"+pointID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", rec.Code)
	}
}

func TestAttachImage_Invalid(t *testing.T) {
	store := session.NewStore(30*time.Minute, nil)
	handlers := NewSessionHandlers(store, stubProber{err: imaging.ErrUnsupportedImage}, nil, 0)
	mux := http.NewServeMux()
	handlers.Register(mux)

	id := createSession(t, mux)
	rec := doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/image", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeInvalidImage {
		t.Errorf("error code = %q, want %q", code, ErrCodeInvalidImage)
	}
}

func TestTokenScope_Enforced(t *testing.T) {
	tokens := auth.NewTokenService("test-secret")
	store := session.NewStore(30*time.Minute, nil)
	handlers := NewSessionHandlers(store, testProber(), tokens, 0)
	routes := handlers.Routes()

	// Two sessions; authenticate as the first, touch the second.
	first := store.Create()
	second := store.Create()

	token, err := tokens.Generate(first.ID())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+second.ID(), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-session status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/"+first.ID(), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("own-session status = %d, want 200", rec.Code)
	}
}

// A fresh client with no token must be able to create a session and
// receive its token even when auth is on; everything else stays gated.
func TestRoutes_CreateReachableWithAuthEnabled(t *testing.T) {
	tokens := auth.NewTokenService("test-secret")
	store := session.NewStore(30*time.Minute, nil)
	handlers := NewSessionHandlers(store, testProber(), tokens, 0)
	routes := handlers.Routes()

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("tokenless create status = %d, want 201", rec.Code)
	}
	var resp CreateSessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a session token in the create response")
	}
	id := resp.Session.ID

	// Tokenless access to the created session is rejected.
	req = httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("tokenless get status = %d, want 401", rec.Code)
	}

	// The issued token opens the session.
	req = httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("tokened get status = %d, want 200", rec.Code)
	}
}

func TestRoutes_AuthDisabledPassesThrough(t *testing.T) {
	store := session.NewStore(30*time.Minute, nil)
	handlers := NewSessionHandlers(store, testProber(), nil, 0)
	routes := handlers.Routes()

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", rec.Code)
	}
	var resp CreateSessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/"+resp.Session.ID, nil)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("tokenless get status = %d, want 200", rec.Code)
	}
}

func TestRoute_UnknownSubresource(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)

	rec := doJSON(t, mux, http.MethodGet, "/sessions/"+id+"/teleport", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestClick_InvalidJSON(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/clicks", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != ErrCodeBadRequest {
		t.Errorf("error code = %q, want %q", code, ErrCodeBadRequest)
	}
}

func TestResetCommand(t *testing.T) {
	mux, _ := newTestMux(t, nil)
	id := createSession(t, mux)
	calibrate(t, mux, id)

	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/clicks", map[string]float64{"x": 150, "y": 50})
	doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "confirm", "name": "p"})

	rec := doJSON(t, mux, http.MethodPost, "/sessions/"+id+"/commands", map[string]string{"command": "reset"})
	view := decodeView(t, rec)
	if view.State != session.StateAwaitingImage {
		t.Errorf("state after reset = %q, want %q", view.State, session.StateAwaitingImage)
	}
	if len(view.Points) != 0 || view.Image != nil || view.Origin != nil {
		t.Errorf("reset left data behind: %+v", view)
	}
}
