package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey string

// APIKeyContextKey stores the caller's raw API key in the request context.
const APIKeyContextKey contextKey = "api_key"

// AuthMiddleware validates that an API key is present on mutating requests.
// It does not call out to a separate identity service — SOMS's internal
// collaborators (Brain, TaskScheduler, dashboards) share a single
// pre-shared key per deployment, configured out of band.
type AuthMiddleware struct {
	logger    zerolog.Logger
	headerKey string
	keys      map[string]bool
}

// NewAuthMiddleware creates an auth middleware. An empty allowedKeys set
// disables key checking (useful for local development).
func NewAuthMiddleware(logger zerolog.Logger, headerKey string, allowedKeys []string) *AuthMiddleware {
	if headerKey == "" {
		headerKey = "Authorization"
	}
	keys := make(map[string]bool, len(allowedKeys))
	for _, k := range allowedKeys {
		keys[k] = true
	}
	return &AuthMiddleware{logger: logger, headerKey: headerKey, keys: keys}
}

// Handler returns the middleware handler function.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(am.keys) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		// Read-only requests are not mutating and pass without a key.
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get(am.headerKey)
		apiKey := strings.TrimSpace(authHeader)
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			apiKey = strings.TrimSpace(authHeader[7:])
		}

		if apiKey == "" || !am.keys[apiKey] {
			http.Error(w, `{"error":"unauthorized","message":"missing or invalid API key"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), APIKeyContextKey, apiKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAPIKey extracts the API key from the request context.
func GetAPIKey(ctx context.Context) string {
	if v, ok := ctx.Value(APIKeyContextKey).(string); ok {
		return v
	}
	return ""
}
