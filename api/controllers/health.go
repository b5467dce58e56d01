package controllers

import (
	"net/http"

	"github.com/shoplytics/shoplytics-backend/api/responses"
	"github.com/shoplytics/shoplytics-backend/pkg/config"
	"github.com/shoplytics/shoplytics-backend/pkg/db"
	pkgerrors "github.com/shoplytics/shoplytics-backend/pkg/errors"
	"github.com/shoplytics/shoplytics-backend/pkg/logger"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Shoplytics-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when both the database and redis answer
// a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, cacheP db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-Shoplytics-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				checks["db"] = "unreachable"
				healthy = false
			} else {
				checks["db"] = "ok"
			}
		}
		if cacheP != nil {
			if err := cacheP.Ping(ctx); err != nil {
				checks["redis"] = "unreachable"
				healthy = false
			} else {
				checks["redis"] = "ok"
			}
		}

		if !healthy {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
