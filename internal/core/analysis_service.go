package core

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/massy-ia/citydesk/internal/adapters"
	"github.com/massy-ia/citydesk/internal/apperr"
	"github.com/massy-ia/citydesk/internal/store"
)

// UrbanismStore persists analysed urbanism documents.
type UrbanismStore interface {
	CreateUrbanismProject(ctx context.Context, project *store.UrbanismProject) error
}

type DocumentAnalysis struct {
	ProjectID  string `json:"project_id,omitempty"`
	Analysis   string `json:"analysis"`
	TextLength int    `json:"text_length"`
}

// AnalysisService runs market and urbanism document analyses.
type AnalysisService struct {
	assistant *Assistant
	projects  UrbanismStore
	notifier  Notifier
	now       func() time.Time
}

func NewAnalysisService(assistant *Assistant, projects UrbanismStore, notifier Notifier) *AnalysisService {
	return &AnalysisService{assistant: assistant, projects: projects, notifier: notifier, now: time.Now}
}

func documentText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Validation("text or PDF file is required")
	}
	return text, nil
}

// AnalyzeMarket analyses a market offer without storing it.
func (s *AnalysisService) AnalyzeMarket(ctx context.Context, caller *store.User, text string) (*DocumentAnalysis, error) {
	text, err := documentText(text)
	if err != nil {
		return nil, err
	}
	analysis := s.assistant.AnalyzeMarketOffer(ctx, text)
	s.notify(ctx, caller, text, analysis)
	return &DocumentAnalysis{Analysis: analysis, TextLength: utf8.RuneCountInString(text)}, nil
}

// AnalyzeUrbanism analyses an urbanism document and stores it as a project
// owned by caller.
func (s *AnalysisService) AnalyzeUrbanism(ctx context.Context, caller *store.User, text string) (*DocumentAnalysis, error) {
	text, err := documentText(text)
	if err != nil {
		return nil, err
	}
	analysis := s.assistant.AnalyzeUrbanismDocument(ctx, text)
	s.notify(ctx, caller, text, analysis)

	project := &store.UrbanismProject{
		Title:       "Analyse Urbanisme " + s.now().UTC().Format(time.RFC3339),
		Description: "Analyse automatique d'un document d'urbanisme",
		Status:      store.UrbanismStatusAnalyzed,
		Content:     text,
		Analysis:    analysis,
		OwnerID:     &caller.ID,
	}
	if err := s.projects.CreateUrbanismProject(ctx, project); err != nil {
		return nil, err
	}
	return &DocumentAnalysis{
		ProjectID:  project.ID,
		Analysis:   analysis,
		TextLength: utf8.RuneCountInString(text),
	}, nil
}

func (s *AnalysisService) notify(ctx context.Context, caller *store.User, text, analysis string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, adapters.WorkflowMarketAnalysis, map[string]any{
		"user":     caller.Username,
		"text":     text,
		"analysis": analysis,
	})
}
