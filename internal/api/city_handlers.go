package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/massy-ia/citydesk/internal/adapters"
	"github.com/massy-ia/citydesk/internal/apperr"
	"github.com/massy-ia/citydesk/internal/store"
)

func queryString(r *http.Request, key, fallback string) string {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		return v
	}
	return fallback
}

func queryFloat(r *http.Request, key string, fallback float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Validation(key + " must be a number")
	}
	return v, nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(key + " must be an integer")
	}
	return v, nil
}

func queryLocation(r *http.Request) (lat, lng float64, err error) {
	if lat, err = queryFloat(r, "lat", adapters.DefaultLat); err != nil {
		return 0, 0, err
	}
	if lng, err = queryFloat(r, "lng", adapters.DefaultLng); err != nil {
		return 0, 0, err
	}
	return lat, lng, nil
}

func (h *Handler) DashboardMetrics(w http.ResponseWriter, r *http.Request, _ *store.User) {
	m, err := h.deps.Dashboard.Metrics(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "metrics retrieved", m)
}

func (h *Handler) RecentActivity(w http.ResponseWriter, r *http.Request, _ *store.User) {
	activities, err := h.deps.Dashboard.RecentActivity(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, fmt.Sprintf("%d activities retrieved", len(activities)),
		map[string]any{"activities": activities})
}

func (h *Handler) SNCFJourneys(w http.ResponseWriter, r *http.Request, _ *store.User) {
	h.journeys(w, r, h.deps.SNCF, "SNCF", adapters.DefaultSNCFDeparture, adapters.DefaultSNCFArrival)
}

func (h *Handler) RATPJourneys(w http.ResponseWriter, r *http.Request, _ *store.User) {
	h.journeys(w, r, h.deps.RATP, "RATP", adapters.DefaultRATPDeparture, adapters.DefaultRATPArrival)
}

func (h *Handler) journeys(w http.ResponseWriter, r *http.Request, planner JourneyPlanner, network, departure, arrival string) {
	journeys, err := planner.Journeys(r.Context(),
		queryString(r, "departure", departure), queryString(r, "arrival", arrival))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, fmt.Sprintf("%d %s journeys retrieved", len(journeys), network),
		map[string]any{"journeys": journeys})
}

func (h *Handler) Stations(w http.ResponseWriter, _ *http.Request, _ *store.User) {
	stations := adapters.Stations()
	respond(w, http.StatusOK, fmt.Sprintf("%d stations retrieved", len(stations)),
		map[string]any{"stations": stations})
}

func (h *Handler) NearbyShops(w http.ResponseWriter, r *http.Request, _ *store.User) {
	lat, lng, err := queryLocation(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	radius, err := queryInt(r, "radius", adapters.DefaultNearbyRadius)
	if err != nil {
		respondError(w, r, err)
		return
	}
	shops, err := h.deps.Places.Nearby(r.Context(), lat, lng, radius, queryString(r, "type", adapters.DefaultPlaceType))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, fmt.Sprintf("%d shops found nearby", len(shops)), map[string]any{"shops": shops})
}

func (h *Handler) SearchShops(w http.ResponseWriter, r *http.Request, _ *store.User) {
	lat, lng, err := queryLocation(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	query := queryString(r, "query", "")
	shops, err := h.deps.Places.Search(r.Context(), query, lat, lng)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, fmt.Sprintf("%d shops found for %q", len(shops), query), map[string]any{"shops": shops})
}

func (h *Handler) News(w http.ResponseWriter, r *http.Request) {
	category := strings.ToLower(queryString(r, "category", adapters.AllNewsCategories))
	items, err := h.deps.News.News(r.Context(), category)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, fmt.Sprintf("%d news items retrieved", len(items)), map[string]any{"news_items": items})
}
