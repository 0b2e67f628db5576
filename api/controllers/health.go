package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/simvoyage/esim-backend/api/responses"
	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Esim-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, db, redis pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("X-Esim-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true
		for name, p := range map[string]pinger{"db": db, "redis": redis} {
			if p == nil {
				checks[name] = "skipped"
				continue
			}
			if err := p.Ping(ctx); err != nil {
				if logg != nil {
					logg.Error(ctx, name+" health check failed", err)
				}
				checks[name] = "down"
				healthy = false
				continue
			}
			checks[name] = "up"
		}

		if !healthy {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, checks)
			return
		}
		responses.WriteSuccess(w, checks)
	}
}
