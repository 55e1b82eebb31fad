package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/goccy/go-json"

	"github.com/massy-ia/citydesk/internal/apperr"
	"github.com/massy-ia/citydesk/internal/store"
	"github.com/massy-ia/citydesk/internal/utils"
)

const researchSummaries = 3

type researchArea struct {
	name string
	tags []string
}

var researchAreas = []researchArea{
	{"Impact économique", []string{"économie", "transport", "emploi"}},
	{"Analyse sociologique", []string{"sociologie", "population", "comportement"}},
	{"Optimisation urbaine", []string{"urbanisme", "infrastructure", "mobilité"}},
}

var (
	trendWords      = []string{"une augmentation", "une stabilisation", "une diminution"}
	recommendations = []string{
		"renforcer les investissements publics",
		"mener une consultation citoyenne",
		"poursuivre l'observation sur douze mois",
	}
	trends        = []string{"positive", "neutral", "negative"}
	methodologies = []string{"quantitative", "qualitative", "mixte"}
	approaches    = []string{"Enquête terrain", "Analyse de données", "Modélisation"}
	dataSources   = []string{"INSEE", "RATP", "Enquêtes locales", "OpenStreetMap"}
)

// ResearchStore is the slice of the store the research service needs.
type ResearchStore interface {
	CreateResearchProjects(ctx context.Context, projects ...*store.ResearchProject) error
	ListResearchProjects(ctx context.Context, ownerID string, limit int) ([]store.ResearchProject, error)
	GetResearchProject(ctx context.Context, id, ownerID string) (*store.ResearchProject, error)
}

type ResearchSummary struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	DataPoints int      `json:"data_points"`
	Trend      string   `json:"trend"`
}

type Statistic struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

type ResearchResult struct {
	ProjectID  string            `json:"project_id"`
	Summaries  []ResearchSummary `json:"summaries"`
	Statistics []Statistic       `json:"statistics"`
}

// ProjectDetail is a research project with its stored results.
type ProjectDetail struct {
	Project     store.ResearchProject
	FullResults map[string]any
}

func (d ProjectDetail) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(d.Project)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["full_results"] = d.FullResults
	return json.Marshal(fields)
}

// ResearchService produces simulated academic studies about Massy.
type ResearchService struct {
	projects ResearchStore
	now      func() time.Time

	mu    sync.Mutex
	faker *gofakeit.Faker
}

func NewResearchService(projects ResearchStore, seed uint64) *ResearchService {
	return &ResearchService{projects: projects, now: time.Now, faker: gofakeit.New(seed)}
}

// Research simulates a study of query and saves it as a project owned by caller.
func (s *ResearchService) Research(ctx context.Context, caller *store.User, query string) (*ResearchResult, error) {
	query = utils.SanitizeInput(query)
	if query == "" {
		return nil, apperr.Validation("query is required")
	}

	s.mu.Lock()
	summaries, tags := s.summaries(query)
	statistics := []Statistic{
		{"Échantillons analysés", s.faker.Number(1000, 10000)},
		{"Impact économique (k€)", s.faker.Number(50, 500)},
		{"Satisfaction citoyenne (%)", s.faker.Number(60, 95)},
		{"Risque identifié (1-10)", s.faker.Number(1, 10)},
		{"Potentiel d'amélioration (%)", s.faker.Number(10, 80)},
	}
	methodology := s.faker.RandomString(methodologies)
	approach := s.faker.RandomString(approaches)
	s.mu.Unlock()

	project := &store.ResearchProject{
		Title:       "Recherche: " + query,
		Description: fmt.Sprintf("Étude approfondie sur %s. Méthodologie: %s.", query, approach),
		Status:      store.ResearchStatusInProgress,
		OwnerID:     &caller.ID,
		Tags:        tags,
		Results: map[string]any{
			"summaries":    summaries,
			"statistics":   statistics,
			"methodology":  methodology,
			"data_sources": dataSources,
		},
	}
	if err := s.projects.CreateResearchProjects(ctx, project); err != nil {
		return nil, err
	}
	return &ResearchResult{ProjectID: project.ID, Summaries: summaries, Statistics: statistics}, nil
}

// summaries must be called with s.mu held.
func (s *ResearchService) summaries(query string) ([]ResearchSummary, []string) {
	var tags []string
	summaries := make([]ResearchSummary, 0, researchSummaries)
	for i := range researchSummaries {
		area := researchAreas[s.faker.Number(0, len(researchAreas)-1)]
		summary := ResearchSummary{
			ID:    s.faker.UUID(),
			Title: fmt.Sprintf("Étude %d: %s - %s", i+1, query, area.name),
			Content: fmt.Sprintf("Analyse de %s à Massy sur un échantillon de %d habitants. "+
				"Les données montrent %s de %d%% sur la période étudiée. Il est recommandé de %s.",
				query, s.faker.Number(500, 5000), s.faker.RandomString(trendWords),
				s.faker.Number(5, 50), s.faker.RandomString(recommendations)),
			Tags:       append(append([]string(nil), area.tags...), fmt.Sprintf("massy_%d", s.faker.Number(1, 5))),
			DataPoints: s.faker.Number(100, 1000),
			Trend:      s.faker.RandomString(trends),
		}
		tags = append(tags, summary.Tags...)
		summaries = append(summaries, summary)
	}
	return summaries, tags
}

// Projects lists the projects owned by caller, newest first.
func (s *ResearchService) Projects(ctx context.Context, caller *store.User) ([]store.ResearchProject, error) {
	return s.projects.ListResearchProjects(ctx, caller.ID, 0)
}

// Project returns one of caller's projects with its stored results.
func (s *ResearchService) Project(ctx context.Context, caller *store.User, id string) (*ProjectDetail, error) {
	project, err := s.projects.GetResearchProject(ctx, id, caller.ID)
	if err != nil {
		return nil, err
	}
	results := project.Results
	if results == nil {
		results = map[string]any{}
	}
	return &ProjectDetail{Project: *project, FullResults: results}, nil
}
