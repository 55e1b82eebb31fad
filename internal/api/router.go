package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/massy-ia/citydesk/internal/store"
)

// RouterConfig sets the cross-cutting HTTP policies. Zero limits disable
// rate limiting.
type RouterConfig struct {
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// AuthRateLimit caps login and registration attempts per IP and minute.
	AuthRateLimit int
}

func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimitRequests > 0 {
		r.Use(httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP), httprate.WithLimitHandler(rateLimited)))
	}

	r.Handle("/metrics", promhttp.Handler())

	g := h.guard
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if cfg.AuthRateLimit > 0 {
					r.Use(httprate.Limit(cfg.AuthRateLimit, time.Minute,
						httprate.WithKeyFuncs(httprate.KeyByIP), httprate.WithLimitHandler(rateLimited)))
				}
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
			})
			r.Post("/refresh", g.Refresh(h.Refresh))
			r.Post("/logout", g.Authenticated(h.Logout))
			r.Get("/me", g.Authenticated(h.Me))
			r.Get("/users", g.WithRole(h.ListUsers, store.RolePolice))
			r.Put("/users/{userID}", g.Authenticated(h.UpdateUser))
		})

		r.Route("/chatbot", func(r chi.Router) {
			r.Post("/chat", g.Authenticated(h.Chat))
			r.Get("/conversations", g.Authenticated(h.ListConversations))
			r.Get("/conversations/{conversationID}", g.Authenticated(h.GetConversation))
			r.Delete("/conversations/{conversationID}", g.Authenticated(h.DeleteConversation))
		})

		r.Route("/massy", func(r chi.Router) {
			r.Get("/metrics", g.Optional(h.DashboardMetrics))
			r.Get("/recent-activity", g.Optional(h.RecentActivity))
			r.Get("/overview", g.Authenticated(h.DashboardMetrics))
		})

		r.Route("/transport", func(r chi.Router) {
			r.Get("/sncf", g.Optional(h.SNCFJourneys))
			r.Get("/ratp", g.Optional(h.RATPJourneys))
			r.Get("/stations", g.Optional(h.Stations))
		})

		r.Route("/shops", func(r chi.Router) {
			r.Get("/nearby", g.Optional(h.NearbyShops))
			r.Get("/search", g.Optional(h.SearchShops))
		})

		r.Route("/police", func(r chi.Router) {
			r.Get("/detect-suspects", g.WithRole(h.DetectSuspects, store.RolePolice))
			r.Get("/optimize-patrols", g.WithRole(h.OptimizePatrols, store.RolePolice))
			r.Get("/alerts", g.WithRole(h.ListAlerts, store.RolePolice))
			r.Put("/alerts/{alertID}", g.WithRole(h.UpdateAlert, store.RolePolice))
		})

		r.Route("/university", func(r chi.Router) {
			r.Post("/research", g.WithRole(h.Research, store.RoleUniversity))
			r.Get("/projects", g.WithRole(h.ListProjects, store.RoleUniversity))
			r.Get("/projects/{projectID}", g.WithRole(h.GetProject, store.RoleUniversity))
		})

		r.Route("/urbanism", func(r chi.Router) {
			r.Post("/analyze", g.Authenticated(h.AnalyzeUrbanism))
			r.Get("/templates", g.Authenticated(h.UrbanismTemplates))
		})

		r.Route("/market", func(r chi.Router) {
			r.Post("/analyze", g.Authenticated(h.AnalyzeMarket))
			r.Get("/templates", g.Authenticated(h.MarketTemplates))
		})

		r.Route("/media", func(r chi.Router) {
			r.Get("/generate-image", g.Authenticated(h.GenerateImage))
			r.Post("/generate-image", g.Authenticated(h.GenerateImage))
			r.Post("/analyze-video", g.Authenticated(h.AnalyzeVideo))
		})

		r.Get("/news", h.News)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, envelope{Message: "resource not found", Status: http.StatusNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, envelope{Message: "method not allowed", Status: http.StatusMethodNotAllowed})
	})
	return r
}
