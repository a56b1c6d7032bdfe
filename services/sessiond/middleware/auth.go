// Package middleware holds the HTTP guards in front of the sessiond write
// endpoints.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type contextKey string

// ContextKeySubject carries the authenticated token subject.
const ContextKeySubject contextKey = "sessiond.subject"

// Authenticator checks HS256 bearer tokens. With an empty secret every
// request passes.
type Authenticator struct {
	secret []byte
	leeway time.Duration
	logger *slog.Logger
}

// NewAuthenticator returns an authenticator for secret.
func NewAuthenticator(secret string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secret: []byte(strings.TrimSpace(secret)),
		leeway: time.Minute,
		logger: logger.With(slog.String("component", "auth")),
	}
}

// Enabled reports whether tokens are checked.
func (a *Authenticator) Enabled() bool { return a != nil && len(a.secret) > 0 }

// Middleware rejects requests without a valid token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		raw := bearer(r.Header.Get("Authorization"))
		if raw == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		subject, err := a.verify(raw)
		if err != nil {
			a.logger.Warn("token rejected", slog.Any("error", err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeySubject, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) verify(raw string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.leeway), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}
	return claims.Subject, nil
}

// Sign issues a token for subject valid for ttl. Operators use it through
// the CLI; tests use it to exercise the middleware.
func Sign(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString([]byte(strings.TrimSpace(secret)))
}

func bearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
