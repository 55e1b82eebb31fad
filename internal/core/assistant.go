package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/massy-ia/citydesk/internal/logging"
)

const (
	citySystemPrompt     = "Vous êtes un assistant officiel de la Ville de Massy."
	marketSystemPrompt   = "Vous êtes un expert en analyse d'offres de marchés publics pour la ville de Massy."
	urbanismSystemPrompt = "Vous êtes un expert en urbanisme et projets municipaux de la ville de Massy."

	CityFallback     = "Désolé, problème technique. Contactez la mairie."
	MarketFallback   = "Erreur lors de l'analyse de l'offre."
	UrbanismFallback = "Erreur lors de l'analyse du document."
)

// Assistant holds the municipal prompts. Every method answers with a fixed
// fallback text when generation fails; generation errors never reach callers.
type Assistant struct {
	llm         Completer
	model       string
	temperature float32
}

func NewAssistant(llm Completer, model string, temperature float32) *Assistant {
	return &Assistant{llm: llm, model: model, temperature: temperature}
}

func (a *Assistant) ask(ctx context.Context, system, user, fallback string) string {
	answer, err := a.llm.Complete(ctx, a.model, []ChatMessage{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}, a.temperature)
	if err != nil || strings.TrimSpace(answer) == "" {
		logging.Warn().Err(err).Msg("Chat completion failed, using fallback")
		return fallback
	}
	return answer
}

// CityAnswer answers a citizen question, grounded on snippets when present.
func (a *Assistant) CityAnswer(ctx context.Context, question, snippets string) string {
	system := citySystemPrompt
	if snippets != "" {
		system += "\nContexte: " + snippets
	}
	return a.ask(ctx, system, question, CityFallback)
}

func (a *Assistant) AnalyzeMarketOffer(ctx context.Context, text string) string {
	return a.ask(ctx, marketSystemPrompt, "Analyse: "+text, MarketFallback)
}

func (a *Assistant) AnalyzeUrbanismDocument(ctx context.Context, text string) string {
	return a.ask(ctx, urbanismSystemPrompt, "Analyse: "+text, UrbanismFallback)
}

// ImageURL renders prompt through a placeholder image service.
func ImageURL(prompt string) string {
	return fmt.Sprintf("https://dummyimage.com/512x512/000/fff&text=%s", strings.ReplaceAll(prompt, " ", "+"))
}

type VideoReport struct {
	Filename        string `json:"filename,omitempty"`
	Summary         string `json:"summary"`
	DurationSeconds int    `json:"duration_seconds"`
}

// AnalyzeVideo returns a placeholder report; no video model is wired.
func AnalyzeVideo(filename string) VideoReport {
	return VideoReport{Filename: filename, Summary: "Vidéo analysée avec succès", DurationSeconds: 120}
}

type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	FileURL     string `json:"file_url"`
}

func UrbanismTemplates() []Template {
	return []Template{
		{ID: "1", Name: "Modèle de plan local d'urbanisme", Description: "Modèle standard pour un PLU", Category: "Urbanisme", FileURL: "/templates/plu.docx"},
		{ID: "2", Name: "Modèle de permis de construire", Description: "Modèle standard pour permis de construire", Category: "Urbanisme", FileURL: "/templates/permis-construire.docx"},
		{ID: "3", Name: "Modèle de règlement de lotissement", Description: "Modèle standard pour règlement de lotissement", Category: "Urbanisme", FileURL: "/templates/reglement-lotissement.docx"},
	}
}

func MarketTemplates() []Template {
	return []Template{
		{ID: "1", Name: "Modèle de marché de services", Description: "Modèle standard pour les marchés de services", Category: "Services", FileURL: "/templates/marche-services.docx"},
		{ID: "2", Name: "Modèle de marché de travaux", Description: "Modèle standard pour les marchés de travaux", Category: "Travaux", FileURL: "/templates/marche-travaux.docx"},
		{ID: "3", Name: "Modèle de marché de fournitures", Description: "Modèle standard pour les marchés de fournitures", Category: "Fournitures", FileURL: "/templates/marche-fournitures.docx"},
	}
}
