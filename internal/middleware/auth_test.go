package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeStaff struct {
	staff map[int64]bool
	err   error
}

func (f fakeStaff) IsStaff(_ context.Context, userID int64) (bool, error) {
	return f.staff[userID], f.err
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserID(r.Context()); !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	a := NewAuth([]byte("test-secret"), fakeStaff{})
	good, err := a.IssueToken(42)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	other := NewAuth([]byte("other-secret"), fakeStaff{})
	forged, _ := other.IssueToken(42)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	expiredToken, _ := expired.SignedString([]byte("test-secret"))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + good, http.StatusOK},
		{"lowercase scheme", "bearer " + good, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"no scheme", good, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, http.StatusUnauthorized},
		{"expired", "Bearer " + expiredToken, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			a.AuthMiddleware(echoUser()).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	a := NewAuth([]byte("s"), fakeStaff{})
	tok, _ := a.IssueToken(7)
	id, err := a.ParseToken(tok)
	if err != nil || id != 7 {
		t.Fatalf("ParseToken = %d, %v; want 7", id, err)
	}
}

func TestRequireStaff(t *testing.T) {
	tests := []struct {
		name    string
		checker fakeStaff
		userID  int64
		auth    bool
		want    int
	}{
		{"staff", fakeStaff{staff: map[int64]bool{1: true}}, 1, true, http.StatusOK},
		{"not staff", fakeStaff{staff: map[int64]bool{1: true}}, 2, true, http.StatusForbidden},
		{"lookup error", fakeStaff{err: errors.New("db down")}, 1, true, http.StatusInternalServerError},
		{"unauthenticated", fakeStaff{}, 0, false, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAuth([]byte("s"), tt.checker)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.auth {
				req = req.WithContext(WithUserID(req.Context(), tt.userID))
			}
			rec := httptest.NewRecorder()
			a.RequireStaff(echoUser()).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
