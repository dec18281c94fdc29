package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/hangar/pkg/apperr"
)

func TestWriteError_MapsStatusAndBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/projects", nil)

	writeError(w, r, apperr.Project(apperr.ProjectNameTaken, "This project name is already taken."))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Code != apperr.ProjectNameTaken {
		t.Errorf("Code = %q, want %q", body.Code, apperr.ProjectNameTaken)
	}
}

func TestWriteError_InternalNeverLeaksCause(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/projects", nil)

	writeError(w, r, apperr.Internal(errorString("a sensitive database DSN")))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Message != "internal server error" {
		t.Errorf("Message = %q, should be the generic internal message", body.Message)
	}
}

func TestWriteError_NonAppErrorDefaultsToInternal(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/projects", nil)

	writeError(w, r, errorString("unexpected plain error"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }
