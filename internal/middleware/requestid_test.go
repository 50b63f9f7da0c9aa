package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen == "" {
		t.Fatal("no request ID in context")
	}
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("generated request ID %q is not a UUID: %v", seen, err)
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q = %q, want %q", RequestIDHeader, got, seen)
	}
}

func TestRequestID_HonorsIncomingHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen != "upstream-id" {
		t.Errorf("request ID = %q, want %q", seen, "upstream-id")
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := req.Context()

	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID on empty context = %q", got)
	}
	if got := GetSessionID(ctx); got != "" {
		t.Errorf("GetSessionID on empty context = %q", got)
	}
	if got := GetErrorCode(ctx); got != "" {
		t.Errorf("GetErrorCode on empty context = %q", got)
	}

	ctx = SetSessionID(ctx, "s1")
	ctx = SetErrorCode(ctx, "validation_error")
	if got := GetSessionID(ctx); got != "s1" {
		t.Errorf("GetSessionID = %q, want s1", got)
	}
	if got := GetErrorCode(ctx); got != "validation_error" {
		t.Errorf("GetErrorCode = %q, want validation_error", got)
	}
}
