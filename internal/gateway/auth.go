package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/agentmem/internal/config"
)

type ctxKey int

const tenantCtxKey ctxKey = iota

// tenantID returns the tenant bound to the request by authMiddleware.
func tenantID(ctx context.Context) string {
	id, _ := ctx.Value(tenantCtxKey).(string)
	return id
}

// authMiddleware validates the API key from Authorization: Bearer or
// X-API-Key, resolves the tenant it maps to, and stores the tenant id
// in the request context. Authenticated requests are counted.
func authMiddleware(keys []config.APIKey, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "Missing Authorization: Bearer <key> or X-API-Key")
				return
			}

			tenant, ok := resolveTenant(keys, key)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Invalid API key")
				return
			}

			metrics.RecordRequest()
			ctx := context.WithValue(r.Context(), tenantCtxKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractAPIKey pulls the key from Authorization: Bearer <key>, falling
// back to the X-API-Key header.
func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if key, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return key
		}
	}
	return r.Header.Get("X-API-Key")
}

// resolveTenant maps an API key to its tenant. Every configured key is
// compared in constant time so response timing does not reveal how far
// a candidate got.
func resolveTenant(keys []config.APIKey, candidate string) (string, bool) {
	tenant := ""
	found := false
	for _, k := range keys {
		if constantTimeEqual(candidate, k.Key) && !found {
			tenant = k.Tenant
			found = true
		}
	}
	return tenant, found
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
