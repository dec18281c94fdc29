package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJWTAuthenticator_ValidCookie(t *testing.T) {
	token, err := IssueSessionToken("s3cr3t", "alice", false, time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})

	auth := NewJWTAuthenticator("s3cr3t")
	claims, err := auth.Authenticate(r)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if claims.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", claims.UserID)
	}
	if claims.IsAdmin {
		t.Error("IsAdmin = true, want false")
	}
}

func TestJWTAuthenticator_BearerHeader(t *testing.T) {
	token, err := IssueSessionToken("s3cr3t", "bob", true, time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	auth := NewJWTAuthenticator("s3cr3t")
	claims, err := auth.Authenticate(r)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if claims.UserID != "bob" || !claims.IsAdmin {
		t.Errorf("claims = %+v, want bob/admin", claims)
	}
}

func TestJWTAuthenticator_WrongSecret(t *testing.T) {
	token, err := IssueSessionToken("s3cr3t", "alice", false, time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})

	auth := NewJWTAuthenticator("different-secret")
	if _, err := auth.Authenticate(r); err == nil {
		t.Error("Authenticate() should reject a token signed with a different secret")
	}
}

func TestJWTAuthenticator_Expired(t *testing.T) {
	token, err := IssueSessionToken("s3cr3t", "alice", false, -time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})

	auth := NewJWTAuthenticator("s3cr3t")
	if _, err := auth.Authenticate(r); err == nil {
		t.Error("Authenticate() should reject an expired token")
	}
}

func TestJWTAuthenticator_NoCredential(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	auth := NewJWTAuthenticator("s3cr3t")
	if _, err := auth.Authenticate(r); err == nil {
		t.Error("Authenticate() should reject a request with no session credential")
	}
}

func TestClaimsFromContext_Empty(t *testing.T) {
	if claimsFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()) != nil {
		t.Error("claimsFromContext() should return nil when no claims were set")
	}
}
