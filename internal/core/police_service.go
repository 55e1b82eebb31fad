package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/massy-ia/citydesk/internal/store"
)

const (
	simulatedAlerts = 5
	patrolRoutes    = 3
	patrolPathSteps = 5
	// AllStatuses disables the status filter of Alerts.
	AllStatuses = "all"
)

var (
	alertTypes = []string{
		"Comportement erratique", "Vol à la tire", "Agression verbale",
		"Objet abandonné", "Rassemblement illégal", "Véhicule suspect",
	}
	suspectTraits = []string{"agité", "masqué", "armé", "en fuite"}
	evidenceKinds = []string{"video", "photo", "témoignage"}
	patrolActions = []string{"Surveillance renforcée", "Contact avec les témoins", "Vérification des caméras à proximité"}
)

type hotspot struct {
	name     string
	lat, lng float64
}

var hotspots = []hotspot{
	{"Gare de Massy TGV", 48.735, 2.29},
	{"Centre commercial Vilgénis", 48.732, 2.295},
	{"Place de France", 48.738, 2.289},
	{"Parc Georges Brassens", 48.729, 2.301},
}

// AlertStore is the slice of the store the police service needs.
type AlertStore interface {
	CreateAlerts(ctx context.Context, alerts ...*store.SuspectAlert) error
	ListAlerts(ctx context.Context, filter store.AlertFilter) ([]store.SuspectAlert, error)
	GetAlert(ctx context.Context, id string) (*store.SuspectAlert, error)
	UpdateAlertStatus(ctx context.Context, id, status string) (*store.SuspectAlert, error)
}

type PatrolRoute struct {
	ID                 string           `json:"id"`
	AlertID            string           `json:"alert_id"`
	AlertType          string           `json:"alert_type"`
	Path               []store.GeoPoint `json:"path"`
	Duration           int              `json:"duration"`
	Priority           string           `json:"priority"`
	RecommendedActions []string         `json:"recommended_actions"`
}

type PatrolPlan struct {
	Routes     []PatrolRoute
	AlertCount int
}

// PoliceService simulates suspect detection and patrol planning.
type PoliceService struct {
	alerts AlertStore
	now    func() time.Time

	mu    sync.Mutex
	faker *gofakeit.Faker
}

// NewPoliceService seeds the simulation; seed 0 picks a random seed.
func NewPoliceService(alerts AlertStore, seed uint64) *PoliceService {
	return &PoliceService{alerts: alerts, now: time.Now, faker: gofakeit.New(seed)}
}

func priority(risk int) string {
	if risk > 7 {
		return "high"
	}
	return "medium"
}

// DetectSuspects stores five simulated alerts reported by caller.
func (s *PoliceService) DetectSuspects(ctx context.Context, caller *store.User) ([]store.SuspectAlert, error) {
	s.mu.Lock()
	alerts := make([]*store.SuspectAlert, 0, simulatedAlerts)
	for range simulatedAlerts {
		spot := hotspots[s.faker.Number(0, len(hotspots)-1)]
		kind := s.faker.RandomString(alertTypes)
		risk := s.faker.Number(5, 10)
		alerts = append(alerts, &store.SuspectAlert{
			Type: kind,
			Description: fmt.Sprintf("%s détecté près de %s. Témoins rapportent un individu %s.",
				kind, spot.name, s.faker.RandomString(suspectTraits)),
			Location: store.GeoPoint{
				Lat: spot.lat + s.faker.Float64Range(-0.001, 0.001),
				Lng: spot.lng + s.faker.Float64Range(-0.001, 0.001),
			},
			RiskLevel:  risk,
			Status:     store.AlertStatusNew,
			ReportedAt: s.now().UTC().Add(-time.Duration(s.faker.Number(1, 120)) * time.Minute),
			OwnerID:    &caller.ID,
			AdditionalData: map[string]any{
				"witnesses": s.faker.Number(1, 5),
				"evidence":  s.faker.RandomString(evidenceKinds),
				"priority":  priority(risk),
			},
		})
	}
	s.mu.Unlock()

	if err := s.alerts.CreateAlerts(ctx, alerts...); err != nil {
		return nil, err
	}
	out := make([]store.SuspectAlert, 0, len(alerts))
	for _, alert := range alerts {
		alert.Reporter = caller.Public()
		out = append(out, *alert)
	}
	return out, nil
}

// OptimizePatrols plans a route around each of the three riskiest new alerts.
func (s *PoliceService) OptimizePatrols(ctx context.Context) (*PatrolPlan, error) {
	alerts, err := s.alerts.ListAlerts(ctx, store.AlertFilter{Status: store.AlertStatusNew, ByRisk: true})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	routes := []PatrolRoute{}
	for _, alert := range alerts[:min(len(alerts), patrolRoutes)] {
		path := make([]store.GeoPoint, 0, patrolPathSteps)
		for step := range patrolPathSteps {
			path = append(path, store.GeoPoint{
				Lat: alert.Location.Lat + s.faker.Float64Range(-0.0005, 0.0005)*float64(step),
				Lng: alert.Location.Lng + s.faker.Float64Range(-0.0005, 0.0005)*float64(step),
			})
		}
		routes = append(routes, PatrolRoute{
			ID:                 s.faker.UUID(),
			AlertID:            alert.ID,
			AlertType:          alert.Type,
			Path:               path,
			Duration:           s.faker.Number(20, 60),
			Priority:           priority(alert.RiskLevel),
			RecommendedActions: append([]string(nil), patrolActions...),
		})
	}
	return &PatrolPlan{Routes: routes, AlertCount: len(alerts)}, nil
}

// Alerts lists alerts, newest first. An empty status means new; "all"
// disables the filter. riskLevel 0 disables the risk filter.
func (s *PoliceService) Alerts(ctx context.Context, status string, riskLevel int) ([]store.SuspectAlert, error) {
	switch status {
	case "":
		status = store.AlertStatusNew
	case AllStatuses:
		status = ""
	}
	return s.alerts.ListAlerts(ctx, store.AlertFilter{Status: status, RiskLevel: riskLevel})
}

// UpdateAlert sets the alert status. An empty status leaves the alert unchanged.
func (s *PoliceService) UpdateAlert(ctx context.Context, id, status string) (*store.SuspectAlert, error) {
	if status == "" {
		return s.alerts.GetAlert(ctx, id)
	}
	return s.alerts.UpdateAlertStatus(ctx, id, status)
}
