package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeAuthenticator struct {
	claims *Claims
	err    error
}

func (f *fakeAuthenticator) Authenticate(r *http.Request) (*Claims, error) {
	return f.claims, f.err
}

func TestRequireAuth_RejectsWithoutValidSession(t *testing.T) {
	s := &Server{auth: &fakeAuthenticator{err: errors.New("no credential")}}

	called := false
	handler := s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

	if called {
		t.Error("handler should not run when authentication fails")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireAuth_AttachesClaims(t *testing.T) {
	s := &Server{auth: &fakeAuthenticator{claims: &Claims{UserID: "alice"}}}

	var seen *Claims
	handler := s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = claimsFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

	if seen == nil || seen.UserID != "alice" {
		t.Errorf("claims in context = %+v, want UserID alice", seen)
	}
}

func TestRequireAdmin_RejectsNonAdmin(t *testing.T) {
	called := false
	handler := requireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/admin/stream", nil)
	r = r.WithContext(withClaims(r.Context(), &Claims{UserID: "alice", IsAdmin: false}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if called {
		t.Error("handler should not run for a non-admin caller")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireAdmin_AllowsAdmin(t *testing.T) {
	called := false
	handler := requireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/admin/stream", nil)
	r = r.WithContext(withClaims(r.Context(), &Claims{UserID: "admin", IsAdmin: true}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if !called {
		t.Error("handler should run for an admin caller")
	}
}

func TestRecoverPanic_Returns500InsteadOfCrashing(t *testing.T) {
	handler := recoverPanic(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestWithTimeout_DeadlineIsSet(t *testing.T) {
	var hasDeadline bool
	handler := withTimeout(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !hasDeadline {
		t.Error("request context should carry a deadline")
	}
}
