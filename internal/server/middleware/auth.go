package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/auth/apikey"
	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/logger"
)

// KeyValidator checks a raw admin key for a scope.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey, scope string) (*apikey.KeyInfo, error)
}

type keyInfoKey struct{}

// RequireKey rejects requests that do not present an admin key granting
// scope. The key is read from "Authorization: Bearer" or X-API-Key.
func RequireKey(v KeyValidator, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractKey(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing admin key")
				return
			}
			info, err := v.Validate(r.Context(), raw, scope)
			if err != nil {
				status := apperrors.HTTPStatusCode(err)
				msg := "authentication error"
				switch {
				case errors.Is(err, apikey.ErrExpiredKey):
					msg = "expired admin key"
				case errors.Is(err, apperrors.ErrUnauthorized):
					msg = "invalid admin key"
				case errors.Is(err, apperrors.ErrForbidden):
					msg = "admin key lacks scope " + scope
				default:
					logger.FromContext(r.Context()).Error("admin key check failed", "error", err)
				}
				writeError(w, status, msg)
				return
			}
			logger.FromContext(r.Context()).Info("admin request",
				slog.String("key_id", info.ID),
				slog.String("key_name", info.Name),
				slog.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), keyInfoKey{}, info)))
		})
	}
}

// KeyInfo returns the admin key RequireKey accepted, or nil.
func KeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(keyInfoKey{}).(*apikey.KeyInfo)
	return info
}

func extractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.Header.Get("X-API-Key")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
