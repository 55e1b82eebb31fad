package api

import (
	"context"
	"net/http"
	"time"

	"github.com/massy-ia/citydesk/internal/adapters"
	"github.com/massy-ia/citydesk/internal/apperr"
	"github.com/massy-ia/citydesk/internal/auth"
	"github.com/massy-ia/citydesk/internal/core"
	"github.com/massy-ia/citydesk/internal/store"
)

// UserStore is the account slice of the store used by the auth handlers.
type UserStore interface {
	UserLookup
	CreateUser(ctx context.Context, user *store.User) error
	GetActiveUserByEmail(ctx context.Context, email string) (*store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	UpdateUser(ctx context.Context, user *store.User) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

type PlaceFinder interface {
	Nearby(ctx context.Context, lat, lng float64, radius int, placeType string) ([]adapters.Place, error)
	Search(ctx context.Context, query string, lat, lng float64) ([]adapters.Place, error)
}

type JourneyPlanner interface {
	Journeys(ctx context.Context, departure, arrival string) ([]adapters.Journey, error)
}

type NewsSource interface {
	News(ctx context.Context, category string) ([]adapters.NewsItem, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the services the handlers delegate to. They are built once at
// startup and shared by every request.
type Deps struct {
	Users     UserStore
	Tokens    *auth.TokenIssuer
	Chat      *core.ChatService
	Police    *core.PoliceService
	Research  *core.ResearchService
	Dashboard *core.DashboardService
	Analysis  *core.AnalysisService
	Places    PlaceFinder
	SNCF      JourneyPlanner
	RATP      JourneyPlanner
	News      NewsSource
	Health    HealthChecker
}

type Handler struct {
	deps  Deps
	guard *Guard
	now   func() time.Time
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:  deps,
		guard: NewGuard(deps.Tokens, deps.Users),
		now:   time.Now,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health.Ping(r.Context()); err != nil {
			respondError(w, r, apperr.Unavailable("database unavailable", err))
			return
		}
	}
	respond(w, http.StatusOK, "service healthy", map[string]string{"status": "ok"})
}
