package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"talent-source/models"
)

const CookieName = "session"

var (
	ErrUnauthenticated = errors.New("not signed in")
	ErrInvalidSession  = errors.New("invalid session")
)

// Principal is the signed-in account attached to a request.
type Principal struct {
	ID   string      `json:"id"`
	Role models.Role `json:"role"`
}

type sessionClaims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Sessions issues and parses HS256 session cookies.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration, secure bool) *Sessions {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, secure: secure, now: time.Now}
}

func (s *Sessions) Token(p Principal) (string, error) {
	now := s.now()
	claims := sessionClaims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

func (s *Sessions) Parse(token string) (Principal, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	switch claims.Role {
	case models.RoleCandidate, models.RoleEmployer, models.RoleAdmin:
	default:
		return Principal{}, ErrInvalidSession
	}
	if claims.Subject == "" {
		return Principal{}, ErrInvalidSession
	}
	return Principal{ID: claims.Subject, Role: claims.Role}, nil
}

// SetCookie signs p into the session cookie.
func (s *Sessions) SetCookie(w http.ResponseWriter, p Principal) error {
	token, err := s.Token(p)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Middleware attaches the principal of a valid session cookie. Requests
// without one pass through anonymously.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err == nil && cookie.Value != "" {
			if p, err := s.Parse(cookie.Value); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects anonymous requests with ErrUnauthenticated and other
// roles with models.ErrForbidden, reported through fail.
func RequireRole(fail func(http.ResponseWriter, *http.Request, error), roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				fail(w, r, ErrUnauthenticated)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			fail(w, r, models.ErrForbidden)
		})
	}
}

// AccountCheck reports whether the account behind p may still act.
type AccountCheck func(ctx context.Context, p Principal) error

// RequireActive re-checks the signed-in account on every request so a
// suspension takes effect before the session cookie expires. It must run
// behind RequireRole.
func RequireActive(fail func(http.ResponseWriter, *http.Request, error), check AccountCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				fail(w, r, ErrUnauthenticated)
				return
			}
			if err := check(r.Context(), p); err != nil {
				fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
