package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(g.logger))
	r.Use(traceMiddleware())

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", g.metrics.Handler())
	r.Get("/dashboard", g.handleDashboard())

	// Episode API: key auth first, then the optional per-tenant limit.
	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware(g.cfg.Keys, g.metrics))
		r.Use(rateLimitMiddleware(g.limiter))
		r.Post("/episodes", g.handleStoreEpisode())
		r.Post("/episodes/batch", g.handleStoreEpisodes())
		r.Post("/query", g.handleQuery())
		r.Post("/save", g.handleSave())
		r.Post("/load", g.handleLoad())
		r.Post("/prune/older-than", g.handlePruneOlderThan())
		r.Post("/prune/keep-newest", g.handlePruneKeepNewest())
		r.Post("/prune/keep-highest-reward", g.handlePruneKeepHighestReward())
		r.Post("/checkpoint", g.handleCheckpoint())
		r.Get("/events", g.events.ServeHTTP)
	})

	return r
}
