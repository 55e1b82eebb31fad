package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/massy-ia/citydesk/internal/adapters"
	"github.com/massy-ia/citydesk/internal/apperr"
	"github.com/massy-ia/citydesk/internal/store"
	"github.com/massy-ia/citydesk/internal/utils"
)

type fakeCompleter struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts [][]ChatMessage
	models  []string
}

func (f *fakeCompleter) Complete(_ context.Context, model string, messages []ChatMessage, _ float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, messages)
	f.models = append(f.models, model)
	return f.answer, f.err
}

func (f *fakeCompleter) lastSystem() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1][0].Content
}

type notification struct {
	workflow string
	payload  any
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (f *fakeNotifier) Notify(_ context.Context, workflow string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notification{workflow, payload})
}

type fakeRetriever struct {
	snippets string
	err      error
}

func (f fakeRetriever) RelevantContext(context.Context, string) (string, error) {
	return f.snippets, f.err
}

type fakeEmbedder map[string][]float32

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := f[text]
	if !ok {
		return nil, errors.New("no embedding")
	}
	return v, nil
}

type fakeChunks []store.DataChunk

func (f fakeChunks) GetAllDataChunks(context.Context) ([]store.DataChunk, error) {
	return f, nil
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newUser(t *testing.T, s *store.SQLiteStore, username string, role store.Role) *store.User {
	t.Helper()
	user := &store.User{Email: username + "@massy.fr", Username: username, PasswordHash: "hash", Role: role}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

func TestAssistant(t *testing.T) {
	ctx := context.Background()

	llm := &fakeCompleter{answer: "La mairie ouvre à 9h."}
	a := NewAssistant(llm, "gemini-1.5-pro-latest", 0.3)
	assert.Equal(t, "La mairie ouvre à 9h.", a.CityAnswer(ctx, "horaires", "Mairie: 9h-17h"))
	assert.Contains(t, llm.lastSystem(), "Contexte: Mairie: 9h-17h")
	assert.Equal(t, []string{"gemini-1.5-pro-latest"}, llm.models)

	a.CityAnswer(ctx, "horaires", "")
	assert.NotContains(t, llm.lastSystem(), "Contexte")

	failing := NewAssistant(&fakeCompleter{err: errors.New("quota")}, "", 0.3)
	assert.Equal(t, CityFallback, failing.CityAnswer(ctx, "q", ""))
	assert.Equal(t, MarketFallback, failing.AnalyzeMarketOffer(ctx, "offre"))
	assert.Equal(t, UrbanismFallback, failing.AnalyzeUrbanismDocument(ctx, "plan"))

	blank := NewAssistant(&fakeCompleter{answer: "  "}, "", 0.3)
	assert.Equal(t, CityFallback, blank.CityAnswer(ctx, "q", ""))

	assert.Equal(t, "https://dummyimage.com/512x512/000/fff&text=parc+de+Massy", ImageURL("parc de Massy"))
	assert.Len(t, UrbanismTemplates(), 3)
	assert.Len(t, MarketTemplates(), 3)
}

func TestRAGService(t *testing.T) {
	ctx := context.Background()
	chunks := fakeChunks{
		{ID: 1, Content: "Piscine", Embedding: []float32{1, 0, 0}},
		{ID: 2, Content: "Médiathèque", Embedding: []float32{0, 1, 0}},
		{ID: 3, Content: "Piscine municipale", Embedding: []float32{0.9, 0.1, 0}},
		{ID: 4, Content: "Sans vecteur"},
	}
	rag, err := NewRAGService(ctx, chunks, fakeEmbedder{
		"piscine": {1, 0, 0},
		"rien":    {0, 0, 1},
	})
	require.NoError(t, err)

	got, err := rag.RelevantContext(ctx, "piscine")
	require.NoError(t, err)
	assert.Equal(t, "Piscine\n\nPiscine municipale", got)

	got, err = rag.RelevantContext(ctx, "rien")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = rag.RelevantContext(ctx, "inconnu")
	assert.Error(t, err)

	empty, err := NewRAGService(ctx, fakeChunks{}, fakeEmbedder{})
	require.NoError(t, err)
	got, err = empty.RelevantContext(ctx, "inconnu")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChatService(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	alice := newUser(t, s, "alice", store.RoleCitizen)
	bob := newUser(t, s, "bob", store.RoleCitizen)
	notifier := &fakeNotifier{}
	chat := NewChatService(s, fakeRetriever{snippets: "Mairie: 9h-17h"}, NewAssistant(&fakeCompleter{answer: "Bonjour"}, "", 0.3), notifier)

	first := "Quels sont les horaires d'ouverture de la mairie de Massy le samedi matin"
	reply, err := chat.Chat(ctx, alice, first)
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", reply.Response)
	assert.True(t, reply.ContextUsed)

	conv, err := chat.Conversation(ctx, alice, reply.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, utils.Truncate(utils.SanitizeInput(first), 50), conv.Title)
	assert.True(t, strings.HasSuffix(conv.Title, "..."))
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, store.SenderUser, conv.Messages[0].Sender)
	assert.Equal(t, store.SenderBot, conv.Messages[1].Sender)

	second, err := chat.Chat(ctx, alice, "Et le dimanche")
	require.NoError(t, err)
	assert.Equal(t, reply.ConversationID, second.ConversationID)
	conv, err = chat.Conversation(ctx, alice, reply.ConversationID)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)

	conversations, err := chat.Conversations(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, conversations, 1)

	_, err = chat.Conversation(ctx, bob, reply.ConversationID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(chat.DeleteConversation(ctx, bob, reply.ConversationID), apperr.KindNotFound))
	require.NoError(t, chat.DeleteConversation(ctx, alice, reply.ConversationID))

	_, err = chat.Chat(ctx, alice, "  !!! ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	require.Len(t, notifier.calls, 2)
	assert.Equal(t, adapters.WorkflowElectionBot, notifier.calls[0].workflow)
}

func TestChatServiceWithoutContext(t *testing.T) {
	s := newStore(t)
	alice := newUser(t, s, "alice", store.RoleCitizen)
	chat := NewChatService(s, fakeRetriever{err: errors.New("embedding failed")}, NewAssistant(&fakeCompleter{err: errors.New("down")}, "", 0.3), nil)

	reply, err := chat.Chat(context.Background(), alice, "bonjour")
	require.NoError(t, err)
	assert.False(t, reply.ContextUsed)
	assert.Equal(t, CityFallback, reply.Response)
}

func TestPoliceService(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	officer := newUser(t, s, "officer", store.RolePolice)
	police := NewPoliceService(s, 42)

	plan, err := police.OptimizePatrols(ctx)
	require.NoError(t, err)
	assert.NotNil(t, plan.Routes)
	assert.Empty(t, plan.Routes)

	alerts, err := police.DetectSuspects(ctx, officer)
	require.NoError(t, err)
	require.Len(t, alerts, simulatedAlerts)
	for _, alert := range alerts {
		assert.NotEmpty(t, alert.ID)
		assert.Equal(t, store.AlertStatusNew, alert.Status)
		assert.GreaterOrEqual(t, alert.RiskLevel, 5)
		assert.LessOrEqual(t, alert.RiskLevel, 10)
		assert.Equal(t, priority(alert.RiskLevel), alert.AdditionalData["priority"])
		assert.Equal(t, officer.ID, alert.Reporter.ID)
		assert.True(t, alert.ReportedAt.Before(time.Now()))
	}

	resolved, err := police.UpdateAlert(ctx, alerts[0].ID, store.AlertStatusResolved)
	require.NoError(t, err)
	assert.Equal(t, store.AlertStatusResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	unchanged, err := police.UpdateAlert(ctx, alerts[1].ID, "")
	require.NoError(t, err)
	assert.Equal(t, store.AlertStatusNew, unchanged.Status)

	_, err = police.UpdateAlert(ctx, "missing", store.AlertStatusResolved)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	fresh, err := police.Alerts(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, fresh, simulatedAlerts-1)
	for _, alert := range fresh {
		assert.Equal(t, store.AlertStatusNew, alert.Status)
	}
	all, err := police.Alerts(ctx, AllStatuses, 0)
	require.NoError(t, err)
	assert.Len(t, all, simulatedAlerts)

	plan, err = police.OptimizePatrols(ctx)
	require.NoError(t, err)
	assert.Equal(t, simulatedAlerts-1, plan.AlertCount)
	require.Len(t, plan.Routes, patrolRoutes)
	for i, route := range plan.Routes {
		assert.Len(t, route.Path, patrolPathSteps)
		assert.GreaterOrEqual(t, route.Duration, 20)
		assert.LessOrEqual(t, route.Duration, 60)
		assert.Len(t, route.RecommendedActions, 3)
		assert.NotEqual(t, alerts[0].ID, route.AlertID)
		if i > 0 {
			assert.LessOrEqual(t, riskOf(t, fresh, route.AlertID), riskOf(t, fresh, plan.Routes[i-1].AlertID))
		}
	}
}

func riskOf(t *testing.T, alerts []store.SuspectAlert, id string) int {
	t.Helper()
	for _, alert := range alerts {
		if alert.ID == id {
			return alert.RiskLevel
		}
	}
	t.Fatalf("alert %s not found", id)
	return 0
}

func TestResearchService(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	researcher := newUser(t, s, "researcher", store.RoleUniversity)
	other := newUser(t, s, "other", store.RoleUniversity)
	research := NewResearchService(s, 7)

	_, err := research.Research(ctx, researcher, "  ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	result, err := research.Research(ctx, researcher, "mobilité douce")
	require.NoError(t, err)
	assert.NotEmpty(t, result.ProjectID)
	require.Len(t, result.Summaries, researchSummaries)
	assert.Len(t, result.Statistics, 5)
	for i, summary := range result.Summaries {
		assert.True(t, strings.HasPrefix(summary.Title, "Étude "))
		assert.Contains(t, summary.Title, "mobilité douce")
		assert.Len(t, summary.Tags, 4)
		assert.True(t, strings.HasPrefix(summary.Tags[3], "massy_"), "summary %d", i)
	}

	projects, err := research.Projects(ctx, researcher)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Recherche: mobilité douce", projects[0].Title)
	assert.Equal(t, store.ResearchStatusInProgress, projects[0].Status)

	others, err := research.Projects(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, others)

	_, err = research.Project(ctx, other, result.ProjectID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	detail, err := research.Project(ctx, researcher, result.ProjectID)
	require.NoError(t, err)
	raw, err := json.Marshal(detail)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, result.ProjectID, body["id"])
	assert.Equal(t, true, body["has_results"])
	full, ok := body["full_results"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, full["summaries"], researchSummaries)
	assert.Len(t, full["data_sources"], 4)
}

func TestDashboardService(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	dashboard := NewDashboardService(s)

	m, err := dashboard.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0 opportunité(s) d'urbanisme, 0 alerte(s) de sécurité, 0 analyse(s) en cours", m.Summary)

	now := time.Now().UTC()
	require.NoError(t, s.CreateUrbanismProject(ctx, &store.UrbanismProject{Title: "Marché de Noël", Description: "Événement"}))
	require.NoError(t, s.CreateUrbanismProject(ctx, &store.UrbanismProject{Title: "Analyse PLU", Status: store.UrbanismStatusAnalyzed}))
	require.NoError(t, s.CreateAlerts(ctx,
		&store.SuspectAlert{Type: "Incendie", RiskLevel: 9, ReportedAt: now.Add(-2 * time.Hour)},
		&store.SuspectAlert{Type: "Intrusion", RiskLevel: 7, Status: store.AlertStatusResolved, ReportedAt: now.Add(-3 * time.Hour)},
	))
	require.NoError(t, s.CreateResearchProjects(ctx,
		&store.ResearchProject{Title: "Analyse du trafic", Status: store.ResearchStatusInProgress},
		&store.ResearchProject{Title: "Brouillon"},
	))

	m, err = dashboard.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Opportunities)
	assert.Equal(t, 1, m.OpportunitiesCount)
	assert.Equal(t, 1, m.Risks)
	assert.Equal(t, 1, m.Analyses)
	assert.Equal(t, m.Analyses, m.CacheHits)
	assert.Equal(t, "1 opportunité(s) d'urbanisme, 1 alerte(s) de sécurité, 1 analyse(s) en cours", m.Summary)

	activities, err := dashboard.RecentActivity(ctx)
	require.NoError(t, err)
	require.Len(t, activities, 6)
	for i := 1; i < len(activities); i++ {
		assert.False(t, activities[i].At.After(activities[i-1].At))
	}
	last := activities[len(activities)-1]
	assert.Equal(t, "Alerte Intrusion", last.Title)
	assert.Equal(t, "triangle-exclamation", last.Icon)
	assert.Equal(t, "security", last.Type)
	assert.Equal(t, last.At.Format("15:04"), last.Time)
}

func TestAnalysisService(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	planner := newUser(t, s, "planner", store.RoleCitizen)
	notifier := &fakeNotifier{}
	analysis := NewAnalysisService(NewAssistant(&fakeCompleter{answer: "Projet viable"}, "", 0.3), s, notifier)

	_, err := analysis.AnalyzeUrbanism(ctx, planner, " \n ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	market, err := analysis.AnalyzeMarket(ctx, planner, "Offre de fournitures")
	require.NoError(t, err)
	assert.Empty(t, market.ProjectID)
	assert.Equal(t, "Projet viable", market.Analysis)
	assert.Equal(t, 20, market.TextLength)

	urbanism, err := analysis.AnalyzeUrbanism(ctx, planner, "Réhabilitation du quartier")
	require.NoError(t, err)
	assert.NotEmpty(t, urbanism.ProjectID)
	assert.Equal(t, 26, urbanism.TextLength)

	projects, err := s.ListUrbanismProjects(ctx, 0)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, store.UrbanismStatusAnalyzed, projects[0].Status)
	assert.Equal(t, "Projet viable", projects[0].Analysis)
	assert.True(t, strings.HasPrefix(projects[0].Title, "Analyse Urbanisme "))

	require.Len(t, notifier.calls, 2)
	for _, call := range notifier.calls {
		assert.Equal(t, adapters.WorkflowMarketAnalysis, call.workflow)
	}
}
