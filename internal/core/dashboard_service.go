package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/massy-ia/citydesk/internal/store"
)

const recentPerKind = 5

// DashboardStore is the read-only slice of the store behind the dashboard.
type DashboardStore interface {
	CountUrbanismProjects(ctx context.Context, status string) (int, error)
	CountAlerts(ctx context.Context, status string) (int, error)
	CountResearchProjects(ctx context.Context, status string) (int, error)
	ListUrbanismProjects(ctx context.Context, limit int) ([]store.UrbanismProject, error)
	ListAlerts(ctx context.Context, filter store.AlertFilter) ([]store.SuspectAlert, error)
	ListResearchProjects(ctx context.Context, ownerID string, limit int) ([]store.ResearchProject, error)
}

// Metrics are the dashboard KPIs. CacheHits mirrors Analyses for older clients.
type Metrics struct {
	Opportunities      int    `json:"opportunities"`
	OpportunitiesCount int    `json:"opportunities_count"`
	Risks              int    `json:"risks"`
	Analyses           int    `json:"analyses"`
	CacheHits          int    `json:"cache_hits"`
	Summary            string `json:"summary"`
}

type Activity struct {
	Title       string    `json:"title"`
	Time        string    `json:"time"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Type        string    `json:"type"`
	At          time.Time `json:"-"`
}

type DashboardService struct {
	store DashboardStore
}

func NewDashboardService(s DashboardStore) *DashboardService {
	return &DashboardService{store: s}
}

// Metrics counts open urbanism projects, new alerts and research in progress.
func (s *DashboardService) Metrics(ctx context.Context) (*Metrics, error) {
	opportunities, err := s.store.CountUrbanismProjects(ctx, store.UrbanismStatusOpen)
	if err != nil {
		return nil, err
	}
	risks, err := s.store.CountAlerts(ctx, store.AlertStatusNew)
	if err != nil {
		return nil, err
	}
	analyses, err := s.store.CountResearchProjects(ctx, store.ResearchStatusInProgress)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		Opportunities:      opportunities,
		OpportunitiesCount: opportunities,
		Risks:              risks,
		Analyses:           analyses,
		CacheHits:          analyses,
		Summary: fmt.Sprintf("%d opportunité(s) d'urbanisme, %d alerte(s) de sécurité, %d analyse(s) en cours",
			opportunities, risks, analyses),
	}, nil
}

// RecentActivity merges the latest urbanism projects, alerts and research
// projects, newest first.
func (s *DashboardService) RecentActivity(ctx context.Context) ([]Activity, error) {
	urbanism, err := s.store.ListUrbanismProjects(ctx, recentPerKind)
	if err != nil {
		return nil, err
	}
	alerts, err := s.store.ListAlerts(ctx, store.AlertFilter{Limit: recentPerKind})
	if err != nil {
		return nil, err
	}
	research, err := s.store.ListResearchProjects(ctx, "", recentPerKind)
	if err != nil {
		return nil, err
	}

	activities := make([]Activity, 0, len(urbanism)+len(alerts)+len(research))
	for _, p := range urbanism {
		activities = append(activities, activity("Projet "+p.Title, p.Description, "building", "opportunity", p.UpdatedAt))
	}
	for _, a := range alerts {
		activities = append(activities, activity("Alerte "+a.Type, a.Description, "triangle-exclamation", "security", a.ReportedAt))
	}
	for _, p := range research {
		activities = append(activities, activity("Analyse "+p.Title, p.Description, "flask", "info", p.UpdatedAt))
	}
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].At.After(activities[j].At)
	})
	return activities, nil
}

func activity(title, description, icon, kind string, at time.Time) Activity {
	return Activity{
		Title:       title,
		Time:        at.Format("15:04"),
		Description: description,
		Icon:        icon,
		Type:        kind,
		At:          at,
	}
}
