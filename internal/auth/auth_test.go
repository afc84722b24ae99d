package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/joao-fontenele/storefront/internal/domain"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, subject, role string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newTestVerifier() *Verifier {
	return NewVerifier(testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestVerifier_Verify(t *testing.T) {
	v := newTestVerifier()

	t.Run("accepts a valid token", func(t *testing.T) {
		token := signToken(t, testSecret, "user-1", "admin", time.Now().Add(time.Hour))

		principal, err := v.Verify(token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if principal.UserID != "user-1" {
			t.Errorf("expected user-1, got %s", principal.UserID)
		}
		if principal.Role != domain.RoleAdmin {
			t.Errorf("expected admin role, got %s", principal.Role)
		}
	})

	t.Run("rejects a token signed with another secret", func(t *testing.T) {
		token := signToken(t, []byte("other-secret"), "user-1", "admin", time.Now().Add(time.Hour))

		if _, err := v.Verify(token); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		token := signToken(t, testSecret, "user-1", "admin", time.Now().Add(-time.Hour))

		if _, err := v.Verify(token); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("rejects a token without a subject", func(t *testing.T) {
		token := signToken(t, testSecret, "", "admin", time.Now().Add(time.Hour))

		if _, err := v.Verify(token); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := v.Verify("not.a.token"); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestVerifier_RequireAdmin(t *testing.T) {
	v := newTestVerifier()

	handler := v.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Error("expected principal in context")
		}
		if principal.UserID != "admin-1" {
			t.Errorf("unexpected principal %+v", principal)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not a bearer token", "Basic abc", http.StatusUnauthorized},
		{"invalid token", "Bearer garbage", http.StatusUnauthorized},
		{
			"wrong secret",
			"Bearer " + signToken(t, []byte("other"), "admin-1", "admin", time.Now().Add(time.Hour)),
			http.StatusUnauthorized,
		},
		{
			"non-admin role",
			"Bearer " + signToken(t, testSecret, "user-1", "user", time.Now().Add(time.Hour)),
			http.StatusForbidden,
		},
		{
			"admin",
			"Bearer " + signToken(t, testSecret, "admin-1", "admin", time.Now().Add(time.Hour)),
			http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders/admin/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
