package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/corbado-session-sdk/app"
	"github.com/upb/corbado-session-sdk/utils"
)

// readinessFetchTimeout bounds the JWKS fetch a readiness probe may trigger
const readinessFetchTimeout = 2 * time.Second

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadinessCheck reports ready once the JWKS has been fetched. With an empty cache it
// attempts a fetch.
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		status := "ready"

		if deps.KeyResolver == nil {
			status = "not_ready"
			checks["jwks"] = "not_initialized"
		} else if deps.KeyResolver.Stats().Cached {
			checks["jwks"] = "healthy"
		} else {
			ctx, cancel := context.WithTimeout(r.Context(), readinessFetchTimeout)
			defer cancel()

			if err := deps.KeyResolver.Refresh(ctx); err != nil {
				status = "not_ready"
				checks["jwks"] = "unavailable"
				deps.Logger.Error("jwks readiness check failed", zap.Error(err))
			} else {
				checks["jwks"] = "healthy"
			}
		}

		code := http.StatusOK
		if status != "ready" {
			code = http.StatusServiceUnavailable
		}
		_ = utils.WriteJSON(w, code, map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	}
}

// StatusHandler returns project and key cache information
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := deps.KeyResolver.Stats()

		response := map[string]interface{}{
			"environment": deps.Config.Environment,
			"project_id":  deps.Config.Corbado.ProjectID,
			"issuer":      deps.Config.Corbado.Issuer,
			"jwks": map[string]interface{}{
				"uri":       deps.Config.Corbado.JWKSURI,
				"cached":    stats.Cached,
				"key_count": stats.KeyCount,
				"fetches":   stats.Fetches,
			},
		}
		if stats.Cached {
			response["jwks"].(map[string]interface{})["expires_at"] = stats.ExpiresAt.UTC().Format(time.RFC3339)
		}

		_ = utils.WriteJSON(w, http.StatusOK, response)
	}
}
