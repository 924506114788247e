package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/symmetri/api/controllers"
	orgcontrollers "github.com/angelmondragon/symmetri/api/controllers/organizations"
	schemacontrollers "github.com/angelmondragon/symmetri/api/controllers/schema"
	"github.com/angelmondragon/symmetri/api/middleware"
	"github.com/angelmondragon/symmetri/internal/organizations"
	"github.com/angelmondragon/symmetri/internal/schemaanalyzer"
	"github.com/angelmondragon/symmetri/pkg/auth"
	"github.com/angelmondragon/symmetri/pkg/config"
	"github.com/angelmondragon/symmetri/pkg/db"
	"github.com/angelmondragon/symmetri/pkg/logger"
	"github.com/angelmondragon/symmetri/pkg/redis"
)

// NewRouter wires the HTTP surface. redisClient may be nil, which disables
// rate limiting.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	orgService organizations.Service,
	schemaService schemaanalyzer.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.API.CORSOrigins),
	)

	ready := map[string]controllers.Pinger{"database": dbP}
	rateLimit := func(next http.Handler) http.Handler { return next }
	if redisClient != nil {
		ready["redis"] = redisClient
		policy := middleware.NewRateLimitPolicy("api", cfg.API.RateLimit, cfg.API.RateLimitWindow)
		rateLimit = middleware.RateLimit(policy, redisClient, logg)
	}

	r.Get("/healthz", controllers.Healthz(cfg))
	r.Get("/readyz", controllers.Readyz(cfg, logg, ready))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(rateLimit)

		r.Route("/organizations", func(r chi.Router) {
			r.Get("/", orgcontrollers.List(orgService, logg))
			r.With(middleware.RequireRole(auth.RoleAdmin, logg)).Post("/", orgcontrollers.Create(orgService, logg))

			r.Route("/{orgID}", func(r chi.Router) {
				r.Get("/", orgcontrollers.Get(orgService, logg))
				r.With(middleware.RequireRole(auth.RoleAdmin, logg)).Patch("/", orgcontrollers.Update(orgService, logg))
				r.With(middleware.RequireRole(auth.RoleAdmin, logg)).Delete("/", orgcontrollers.Delete(orgService, logg))

				r.Get("/schema/tables", schemacontrollers.Tables(orgService, schemaService, logg))
				r.Get("/schema/tables/{table}", schemacontrollers.Table(orgService, schemaService, logg))
			})
		})
	})

	return r
}
