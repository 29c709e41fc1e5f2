package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/neuro-mcq/backend/internal/models"
)

type contextKey string

const userIDKey contextKey = "user_id"

// StaffChecker reports whether a user may use staff endpoints.
type StaffChecker interface {
	IsStaff(ctx context.Context, userID int64) (bool, error)
}

type Auth struct {
	secret []byte
	staff  StaffChecker
}

func NewAuth(secret []byte, staff StaffChecker) *Auth {
	return &Auth{secret: secret, staff: staff}
}

// IssueToken signs a 72 hour HS256 token for the user.
func (a *Auth) IssueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(72 * time.Hour).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ParseToken validates a token and returns its user ID.
func (a *Auth) ParseToken(raw string) (int64, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("invalid token claims")
	}
	switch v := claims["user_id"].(type) {
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	default:
		return 0, fmt.Errorf("token missing user_id")
	}
}

func (a *Auth) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid authorization header"})
			return
		}

		userID, err := a.ParseToken(parts[1])
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid or expired token"})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// RequireStaff must run after AuthMiddleware.
func (a *Auth) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
			return
		}
		staff, err := a.staff.IsStaff(r.Context(), userID)
		if err != nil {
			log.Printf("[middleware] staff lookup for user %d failed: %v", userID, err)
			writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
			return
		}
		if !staff {
			writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "Staff access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID extracts the authenticated user ID from the request context.
func UserID(ctx context.Context) (int64, bool) {
	uid, ok := ctx.Value(userIDKey).(int64)
	return uid, ok
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
