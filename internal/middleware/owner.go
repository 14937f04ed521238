package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

const ownerIDKey contextKey = "owner_id"

// OwnerHeader carries the authenticated owner identity, set by the gateway
// in front of this service.
const OwnerHeader = "X-Owner-ID"

// Owner requires a valid owner UUID on every request and stores it on the
// request context for handlers and the rate limiter.
func Owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(OwnerHeader)
		if raw == "" {
			writeOwnerError(w, http.StatusUnauthorized, "missing owner identity")
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			writeOwnerError(w, http.StatusUnauthorized, "invalid owner identity")
			return
		}
		ctx := context.WithValue(r.Context(), ownerIDKey, id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerFromContext returns the owner ID set by Owner, or "" when absent.
func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerIDKey).(string); ok {
		return v
	}
	return ""
}

func writeOwnerError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
