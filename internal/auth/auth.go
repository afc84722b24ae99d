// Package auth turns verified bearer tokens into principals. Privileged
// handlers receive the authenticated principal from the request context; a
// client-supplied user id is never trusted for authorization.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type Principal struct {
	UserID string
	Role   domain.Role
}

type contextKey struct{}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	logger *slog.Logger
}

func NewVerifier(secret []byte, logger *slog.Logger) *Verifier {
	return &Verifier{secret: secret, logger: logger}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !parsed.Valid || c.Subject == "" {
		return Principal{}, domain.ErrUnauthorized
	}

	return Principal{UserID: c.Subject, Role: domain.Role(c.Role)}, nil
}

// RequireAdmin authenticates the bearer token and rejects non-admin
// principals before invoking the wrapped handler.
func (v *Verifier) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		principal, err := v.Verify(token)
		if err != nil {
			v.logger.Warn("token verification failed", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		if principal.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}

		next(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
