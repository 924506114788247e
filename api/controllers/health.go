package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/angelmondragon/symmetri/api/responses"
	"github.com/angelmondragon/symmetri/pkg/config"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

const readyTimeout = 3 * time.Second

// Pinger is any dependency that can report its health.
type Pinger interface {
	Ping(context.Context) error
}

func Healthz(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Symmetri-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// Readyz pings every dependency and fails when any of them is down.
func Readyz(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Symmetri-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		status := map[string]string{}
		var failed []string
		for _, name := range names {
			if err := deps[name].Ping(ctx); err != nil {
				status[name] = "down"
				failed = append(failed, name)
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{"dependency": name, "error": err.Error()}), "health.dependency_down")
				}
				continue
			}
			status[name] = "up"
		}

		if len(failed) > 0 {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"dependencies": status}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "dependencies": status})
	}
}
