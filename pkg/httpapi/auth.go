package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the httpapi layer needs from a validated session: who the
// caller is and whether they hold the platform's admin role. Everything
// about how a user obtained these claims (the ticket validator, the
// session-token issuance flow) is an external collaborator; httpapi
// only ever consumes the result.
type Claims struct {
	UserID  string
	IsAdmin bool
}

// Authenticator resolves a request's session cookie or bearer token into
// Claims. Implementations are free to call out to whatever ticket
// validation or token-introspection service the deployment uses.
type Authenticator interface {
	Authenticate(r *http.Request) (*Claims, error)
}

// sessionClaims is the JWT claim set a JWTAuthenticator expects, matching
// the session-token shape issued by the out-of-scope session service.
type sessionClaims struct {
	Subject string `json:"sub"`
	Admin   bool   `json:"admin"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HS256 session-cookie bearer tokens signed
// with the platform's shared session secret. This is the default wiring
// cmd/hangar provides; a deployment that fronts hangar with a different
// session mechanism can supply its own Authenticator instead.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator builds an Authenticator around the configured
// session-signing secret.
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

const sessionCookieName = "hangar_session"

// Authenticate reads the session cookie (falling back to an Authorization:
// Bearer header for non-browser clients) and validates it as an HS256 JWT.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (*Claims, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, fmt.Errorf("no session credential presented")
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid session credential")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("session credential has no subject")
	}

	return &Claims{UserID: claims.Subject, IsAdmin: claims.Admin}, nil
}

func bearerToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

type ctxKey string

const claimsCtxKey ctxKey = "httpapi.claims"

func withClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, c)
}

// claimsFromContext returns the authenticated caller's claims. Only valid
// inside a handler reached through requireAuth.
func claimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsCtxKey).(*Claims)
	return c
}

// IssueSessionToken mints an HS256 session token for userID, valid for
// ttl. Exposed for local development and test fixtures; production
// deployments issue this token from the out-of-scope session service, not
// from hangar itself.
func IssueSessionToken(secret string, userID string, admin bool, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		Subject: userID,
		Admin:   admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
